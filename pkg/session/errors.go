/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package session

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomIDRequired indicates a join without a room id
	ErrRoomIDRequired = errors.New("room id required")

	// ErrNotJoined indicates an operation that needs room membership
	ErrNotJoined = errors.New("not joined to a room")

	// ErrClientClosed indicates the coordinator connection is gone
	ErrClientClosed = errors.New("coordinator client closed")

	// ErrSendQueueFull indicates the outbound queue to the coordinator is full
	ErrSendQueueFull = errors.New("coordinator send queue full")

	// ErrPeerNotFound indicates the peer was not found
	ErrPeerNotFound = errors.New("peer not found")

	// ErrPeerClosed indicates the peer has been closed
	ErrPeerClosed = errors.New("peer is closed")

	// ErrChannelNotOpen indicates the chat data channel is not open yet
	ErrChannelNotOpen = errors.New("chat channel not open")

	// ErrNoHub indicates there is no connected hub to send through
	ErrNoHub = errors.New("no connected hub")

	// ErrNotWaiting indicates Accept/Reject for a peer that is not waiting
	ErrNotWaiting = errors.New("peer is not waiting for approval")

	// ErrNoLocalAudio indicates mute without an active audio track
	ErrNoLocalAudio = errors.New("no local audio")
)

// Error is an operation error. Peer is empty for session-wide operations.
type Error struct {
	Op   string
	Peer string
	Err  error
}

func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("session: %s %s: %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("session: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a session-wide operation error
func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

// NewPeerError creates an operation error for one peer
func NewPeerError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}
