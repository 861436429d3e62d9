/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package signaling

import "encoding/json"

// MessageType represents the type of a coordinator protocol message
type MessageType string

const (
	// Client -> coordinator

	// MessageTypeJoin asks to join a room
	MessageTypeJoin MessageType = "join"
	// MessageTypeSignal carries a negotiation payload, in both directions
	MessageTypeSignal MessageType = "signal"
	// MessageTypeSync requests (and answers with) a fresh membership snapshot
	MessageTypeSync MessageType = "sync"

	// Coordinator -> client

	// MessageTypeJoined confirms a join with the assigned role
	MessageTypeJoined MessageType = "joined"
	// MessageTypePeerJoined announces a new room member
	MessageTypePeerJoined MessageType = "peer-joined"
	// MessageTypePeerLeft announces a departed room member
	MessageTypePeerLeft MessageType = "peer-left"
	// MessageTypeMainChanged names a new hub
	MessageTypeMainChanged MessageType = "main-changed"
)

// Role is the role assigned to a participant within a room
type Role string

const (
	RoleMain Role = "main"
	RolePeer Role = "peer"
)

// User is a membership entry
type User struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
}

// ClientMessage is a frame sent by a participant to the coordinator
type ClientMessage struct {
	Type     MessageType     `json:"type"`
	RoomID   string          `json:"roomId,omitempty"`
	UserName string          `json:"userName,omitempty"`
	To       string          `json:"to,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage is a frame sent by the coordinator to a participant
type ServerMessage struct {
	Type     MessageType     `json:"type"`
	ID       string          `json:"id,omitempty"`
	UserName string          `json:"userName,omitempty"`
	RoomID   string          `json:"roomId,omitempty"`
	Role     Role            `json:"role,omitempty"`
	Users    []User          `json:"users,omitempty"`
	From     string          `json:"from,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	MainID   string          `json:"mainId,omitempty"`
}

// RoomInfo describes a room for the status endpoint
type RoomInfo struct {
	RoomID    string `json:"roomId"`
	MainID    string `json:"mainId"`
	PeerCount int    `json:"peerCount"`
	Users     []User `json:"users"`
}

// Join builds a join request
func Join(roomID, userName string) *ClientMessage {
	return &ClientMessage{Type: MessageTypeJoin, RoomID: roomID, UserName: userName}
}

// Signal builds a directed signal request
func Signal(to string, payload json.RawMessage) *ClientMessage {
	return &ClientMessage{Type: MessageTypeSignal, To: to, Payload: payload}
}

// Sync builds a membership snapshot request
func Sync() *ClientMessage {
	return &ClientMessage{Type: MessageTypeSync}
}
