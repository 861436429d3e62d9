/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package coordinator

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maiguangyang/star_relay/pkg/signaling"
	"github.com/maiguangyang/star_relay/pkg/utils"
)

// Conn is the coordinator's view of one participant's duplex channel.
// Send must not block; a connection that cannot keep up reports an error
// and is expected to close itself.
type Conn interface {
	Send(msg *signaling.ServerMessage) error
	Close() error
}

// Participant is one connected client
type Participant struct {
	id          string
	conn        Conn
	connectedAt time.Time

	mu       sync.RWMutex
	userName string
	roomID   string
}

// NewParticipant wraps conn with a fresh unique id
func NewParticipant(conn Conn) *Participant {
	return NewParticipantWithID(uuid.NewString(), conn)
}

// NewParticipantWithID wraps conn with a caller-chosen id
func NewParticipantWithID(id string, conn Conn) *Participant {
	return &Participant{
		id:          id,
		conn:        conn,
		connectedAt: time.Now(),
	}
}

// ID returns the participant id
func (p *Participant) ID() string {
	return p.id
}

// UserName returns the display name assigned at join
func (p *Participant) UserName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userName
}

// RoomID returns the joined room, or ""
func (p *Participant) RoomID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roomID
}

func (p *Participant) setRoom(roomID, userName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roomID = roomID
	p.userName = userName
}

func (p *Participant) clearRoom() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roomID = ""
}

func (p *Participant) user() signaling.User {
	return signaling.User{ID: p.id, UserName: p.UserName()}
}

func (p *Participant) send(msg *signaling.ServerMessage) {
	if err := p.conn.Send(msg); err != nil {
		utils.Debug("[Registry] send %s to %s failed: %v", msg.Type, p.id, err)
	}
}
