/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/maiguangyang/star_relay/pkg/media"
	"github.com/maiguangyang/star_relay/pkg/negotiation"
	"github.com/maiguangyang/star_relay/pkg/utils"
)

// Peer is the connection state for one remote participant
type Peer struct {
	id          string
	userName    string
	initiator   bool
	pc          *webrtc.PeerConnection
	engine      *negotiation.Engine
	connectedAt time.Time

	mu      sync.Mutex
	chat    *webrtc.DataChannel
	senders map[media.Kind]*webrtc.RTPSender
	// local tracks changed before the first exchange finished
	dirty       bool
	established bool

	closed atomic.Bool
}

func newPeer(id, userName string, initiator bool, pc *webrtc.PeerConnection, engine *negotiation.Engine) *Peer {
	return &Peer{
		id:        id,
		userName:  userName,
		initiator: initiator,
		pc:        pc,
		engine:    engine,
		senders:   make(map[media.Kind]*webrtc.RTPSender),
	}
}

// ID returns the remote participant id
func (p *Peer) ID() string {
	return p.id
}

// UserName returns the remote display name
func (p *Peer) UserName() string {
	return p.userName
}

// State returns the negotiation state
func (p *Peer) State() negotiation.State {
	return p.engine.State()
}

// Engine exposes the negotiation engine
func (p *Peer) Engine() *negotiation.Engine {
	return p.engine
}

// ChatOpen reports whether the chat channel is usable
func (p *Peer) ChatOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chat != nil && p.chat.ReadyState() == webrtc.DataChannelStateOpen
}

func (p *Peer) setChat(dc *webrtc.DataChannel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chat = dc
}

// SendChat writes an encoded chat frame to the data channel
func (p *Peer) SendChat(raw []byte) error {
	if p.closed.Load() {
		return ErrPeerClosed
	}
	p.mu.Lock()
	dc := p.chat
	p.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	return dc.Send(raw)
}

// AddTrack adds a local or forwarded track to the connection
func (p *Peer) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	if p.closed.Load() {
		return nil, ErrPeerClosed
	}
	return p.pc.AddTrack(track)
}

// RemoveTrack removes a sender from the connection
func (p *Peer) RemoveTrack(sender *webrtc.RTPSender) error {
	if p.closed.Load() {
		return ErrPeerClosed
	}
	return p.pc.RemoveTrack(sender)
}

// Renegotiate starts a new exchange for this peer. On an established
// connection a request during an in-flight exchange is skipped. Before the
// connection is established the change is remembered and offered once the
// first exchange completes; an initiator that has not offered yet needs
// nothing since its first offer carries the change.
func (p *Peer) Renegotiate() error {
	if p.closed.Load() {
		return ErrPeerClosed
	}
	if p.initiator && p.engine.State() == negotiation.StateIdle {
		return nil
	}

	err := p.engine.Renegotiate()
	if !errors.Is(err, negotiation.ErrNotStable) {
		return err
	}

	p.mu.Lock()
	if p.established {
		p.mu.Unlock()
		return nil
	}
	p.dirty = true
	p.mu.Unlock()
	// 可能在标记之前已经进入 stable
	if p.engine.State() == negotiation.StateStable {
		p.onStable()
	}
	return nil
}

// onStable runs inside the engine transition
func (p *Peer) onStable() {
	p.mu.Lock()
	p.established = true
	dirty := p.dirty
	p.dirty = false
	p.mu.Unlock()
	if !dirty {
		return
	}
	go func() {
		if err := p.engine.Renegotiate(); err != nil {
			utils.Debug("[Peer] %s: deferred renegotiate: %v", p.id, err)
		}
	}()
}

// addLocal attaches a local media track. It reports whether the connection changed.
func (p *Peer) addLocal(kind media.Kind, track webrtc.TrackLocal) (bool, error) {
	p.mu.Lock()
	_, exists := p.senders[kind]
	p.mu.Unlock()
	if exists {
		return false, nil
	}

	sender, err := p.AddTrack(track)
	if err != nil {
		return false, err
	}
	go drainRTCP(sender)

	p.mu.Lock()
	p.senders[kind] = sender
	p.mu.Unlock()
	return true, nil
}

// removeLocal detaches a local media track. It reports whether the connection changed.
func (p *Peer) removeLocal(kind media.Kind) bool {
	p.mu.Lock()
	sender, exists := p.senders[kind]
	delete(p.senders, kind)
	p.mu.Unlock()
	if !exists {
		return false
	}
	if err := p.RemoveTrack(sender); err != nil {
		utils.Debug("[Peer] %s: remove %s: %v", p.id, kind, err)
	}
	return true
}

// hasLocal reports whether a local track of kind is attached
func (p *Peer) hasLocal(kind media.Kind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.senders[kind]
	return ok
}

// Close releases the engine, the buffered candidates and the connection
func (p *Peer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.engine.Close()
}

// IsClosed reports whether Close was called
func (p *Peer) IsClosed() bool {
	return p.closed.Load()
}

// drainRTCP reads RTCP so pion's interceptors can process receiver reports
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// drainTrack discards inbound RTP that nothing else consumes
func drainTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
