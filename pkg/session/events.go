/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package session

import (
	"time"

	"github.com/maiguangyang/star_relay/pkg/signaling"
)

// EventType identifies a session event
type EventType string

const (
	EventJoined            EventType = "joined"
	EventPeerJoined        EventType = "peer-joined"
	EventPeerLeft          EventType = "peer-left"
	EventHubChanged        EventType = "hub-changed"
	EventWaiting           EventType = "waiting"
	EventRejected          EventType = "rejected"
	EventPeerConnected     EventType = "peer-connected"
	EventChat              EventType = "chat"
	EventTrack             EventType = "track"
	EventNegotiationFailed EventType = "negotiation-failed"
	EventSync              EventType = "sync"
	EventDisconnected      EventType = "disconnected"
)

// Event is delivered to the session's observer
type Event struct {
	Type     EventType
	PeerID   string
	UserName string
	Text     string
	Role     signaling.Role
	// Kind and StreamID describe the track for EventTrack
	Kind     string
	StreamID string
	Err      error
	SentAt   time.Time
}
