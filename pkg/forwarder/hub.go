/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Hub Forwarder - 星型拓扑的中心转发
 *
 * 仅在本端是 hub 时转发：
 *   - 聊天: 来自 A 的消息原样发给除 A 以外的所有 peer
 *   - 媒体: 来自 A 的新 track 挂到其他所有 peer 上并逐个重协商
 * 失去 hub 身份时立即停止转发并撤回已转发的 track。
 */
package forwarder

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/maiguangyang/star_relay/pkg/utils"
)

// HubPeer is a connected remote peer as seen by the hub
type HubPeer interface {
	ID() string
	SendChat(raw []byte) error
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	RemoveTrack(sender *webrtc.RTPSender) error
	// Renegotiate starts a new offer/answer cycle for this peer only
	Renegotiate() error
}

// HubStats is a snapshot of hub counters
type HubStats struct {
	Active           bool   `json:"active"`
	Peers            int    `json:"peers"`
	Tracks           int    `json:"tracks"`
	ChatForwarded    uint64 `json:"chat_forwarded"`
	ChatFailed       uint64 `json:"chat_failed"`
	TracksForwarded  uint64 `json:"tracks_forwarded"`
	PacketsForwarded uint64 `json:"packets_forwarded"`
	BytesForwarded   uint64 `json:"bytes_forwarded"`
}

// Hub fans chat and media out over the pairwise links of the local participant
type Hub struct {
	mu      sync.RWMutex
	localID string
	active  bool

	peers map[string]HubPeer
	// publisherID/trackID -> forwarder
	tracks map[string]*TrackForwarder

	chatForwarded   atomic.Uint64
	chatFailed      atomic.Uint64
	tracksForwarded atomic.Uint64
}

// NewHub creates an inactive hub for the local participant
func NewHub(localID string) *Hub {
	return &Hub{
		localID: localID,
		peers:   make(map[string]HubPeer),
		tracks:  make(map[string]*TrackForwarder),
	}
}

func trackKey(publisherID, trackID string) string {
	return publisherID + "/" + trackID
}

// Start enables fan-out
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active {
		return
	}
	h.active = true
	utils.Info("[Hub] %s is now hub", h.localID)
}

// Stop disables fan-out and retracts every forwarded track
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.active {
		h.mu.Unlock()
		return
	}
	h.active = false
	forwarders := make([]*TrackForwarder, 0, len(h.tracks))
	for key, f := range h.tracks {
		forwarders = append(forwarders, f)
		delete(h.tracks, key)
	}
	h.mu.Unlock()

	affected := make(map[string]HubPeer)
	for _, f := range forwarders {
		f.Close()
		for _, p := range f.Retract() {
			affected[p.ID()] = p
		}
	}
	renegotiateAll(affected)
	utils.Info("[Hub] %s stopped, %d tracks retracted", h.localID, len(forwarders))
}

// IsActive reports whether the local participant is forwarding
func (h *Hub) IsActive() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

// AttachPeer registers a connected peer and, while active, gives it
// every track already being forwarded
func (h *Hub) AttachPeer(peer HubPeer) {
	h.mu.Lock()
	h.peers[peer.ID()] = peer
	var forwarders []*TrackForwarder
	if h.active {
		forwarders = make([]*TrackForwarder, 0, len(h.tracks))
		for _, f := range h.tracks {
			forwarders = append(forwarders, f)
		}
	}
	h.mu.Unlock()

	added := 0
	for _, f := range forwarders {
		ok, err := f.Subscribe(peer)
		if err != nil {
			utils.Warn("[Hub] attach %s to %s failed: %v", f.TrackID(), peer.ID(), err)
			continue
		}
		if ok {
			added++
		}
	}
	if added > 0 {
		renegotiate(peer)
	}
}

// RemovePeer drops a departed peer: its subscriptions go, and the tracks it
// published are retracted from everyone else
func (h *Hub) RemovePeer(peerID string) {
	h.mu.Lock()
	delete(h.peers, peerID)
	var published, others []*TrackForwarder
	for key, f := range h.tracks {
		if f.PublisherID() == peerID {
			published = append(published, f)
			delete(h.tracks, key)
		} else {
			others = append(others, f)
		}
	}
	h.mu.Unlock()

	for _, f := range others {
		f.Unsubscribe(peerID)
	}

	affected := make(map[string]HubPeer)
	for _, f := range published {
		f.Close()
		for _, p := range f.Retract() {
			affected[p.ID()] = p
		}
	}
	renegotiateAll(affected)
}

// ForwardChat relays raw from peer `from` to every other peer. It returns
// the number of peers the copy was sent to.
func (h *Hub) ForwardChat(from string, raw []byte) int {
	h.mu.RLock()
	if !h.active {
		h.mu.RUnlock()
		return 0
	}
	targets := make([]HubPeer, 0, len(h.peers))
	for id, p := range h.peers {
		if id != from {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, p := range targets {
		if err := p.SendChat(raw); err != nil {
			h.chatFailed.Add(1)
			utils.Warn("[Hub] forward chat to %s failed: %v", p.ID(), err)
			continue
		}
		sent++
	}
	h.chatForwarded.Add(uint64(sent))
	return sent
}

// AddTrack forwards a track received from publisherID to every other peer.
// A track that is already forwarded is returned as is.
func (h *Hub) AddTrack(publisherID string, source RTPSource) (*TrackForwarder, error) {
	h.mu.Lock()
	if !h.active {
		h.mu.Unlock()
		return nil, ErrHubInactive
	}
	key := trackKey(publisherID, source.ID())
	if f, exists := h.tracks[key]; exists {
		h.mu.Unlock()
		return f, nil
	}
	f := NewTrackForwarder(publisherID, source)
	f.onDone = func() { h.trackEnded(key, f) }
	h.tracks[key] = f
	peers := make([]HubPeer, 0, len(h.peers))
	for id, p := range h.peers {
		if id != publisherID {
			peers = append(peers, p)
		}
	}
	h.mu.Unlock()

	h.tracksForwarded.Add(1)
	affected := make(map[string]HubPeer)
	for _, p := range peers {
		added, err := f.Subscribe(p)
		if err != nil {
			utils.Warn("[Hub] attach %s to %s failed: %v", source.ID(), p.ID(), err)
			continue
		}
		if added {
			affected[p.ID()] = p
		}
	}
	renegotiateAll(affected)
	go f.Start()

	utils.Info("[Hub] forwarding %s track %s from %s to %d peers",
		source.Kind(), source.ID(), publisherID, len(affected))
	return f, nil
}

// trackEnded cleans up after a forwarder whose source stopped
func (h *Hub) trackEnded(key string, f *TrackForwarder) {
	h.mu.Lock()
	if h.tracks[key] == f {
		delete(h.tracks, key)
	}
	h.mu.Unlock()

	f.Close()
	affected := make(map[string]HubPeer)
	for _, p := range f.Retract() {
		affected[p.ID()] = p
	}
	renegotiateAll(affected)
}

// Tracks returns the forwarders currently running
func (h *Hub) Tracks() []*TrackForwarder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*TrackForwarder, 0, len(h.tracks))
	for _, f := range h.tracks {
		out = append(out, f)
	}
	return out
}

// Stats returns a snapshot of hub counters
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	s := HubStats{
		Active: h.active,
		Peers:  len(h.peers),
		Tracks: len(h.tracks),
	}
	forwarders := make([]*TrackForwarder, 0, len(h.tracks))
	for _, f := range h.tracks {
		forwarders = append(forwarders, f)
	}
	h.mu.RUnlock()

	for _, f := range forwarders {
		packets, bytes := f.Stats()
		s.PacketsForwarded += packets
		s.BytesForwarded += bytes
	}
	s.ChatForwarded = h.chatForwarded.Load()
	s.ChatFailed = h.chatFailed.Load()
	s.TracksForwarded = h.tracksForwarded.Load()
	return s
}

func renegotiateAll(peers map[string]HubPeer) {
	for _, p := range peers {
		renegotiate(p)
	}
}

func renegotiate(p HubPeer) {
	if err := p.Renegotiate(); err != nil {
		utils.Debug("[Hub] renegotiate %s: %v", p.ID(), err)
	}
}
