/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Session - 房间内的参与者
 * 处理协调服务器消息, 为每个远端维护一个 Peer, 担任 Hub 时负责转发
 */
package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/maiguangyang/star_relay/pkg/forwarder"
	"github.com/maiguangyang/star_relay/pkg/media"
	"github.com/maiguangyang/star_relay/pkg/negotiation"
	"github.com/maiguangyang/star_relay/pkg/signaling"
	"github.com/maiguangyang/star_relay/pkg/utils"
)

// Config holds session configuration
type Config struct {
	UserName    string
	ICEServers  []webrtc.ICEServer
	Negotiation negotiation.Config
	// Hold new members until Accept is called (hub only)
	ManualApprove bool
	// Media provides local audio/video. Nil means no local media.
	Media media.Source
	// API overrides the pion API used for new connections
	API *webrtc.API
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		Negotiation: negotiation.DefaultConfig(),
	}
}

// NewAPI builds a pion API that logs through utils
func NewAPI() *webrtc.API {
	se := webrtc.SettingEngine{}
	se.LoggerFactory = utils.NewPionLoggerFactory()
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

// PeerInfo is a snapshot of one connection
type PeerInfo struct {
	ID         string `json:"id"`
	UserName   string `json:"userName"`
	State      string `json:"state"`
	ChatOpen   bool   `json:"chatOpen"`
	IsHub      bool   `json:"isHub"`
	OffersSent uint64 `json:"offersSent"`
}

// Session is one participant's view of a room
type Session struct {
	mu     sync.RWMutex
	config Config
	api    *webrtc.API
	sender Sender

	selfID   string
	userName string
	roomID   string
	hubID    string

	members  map[string]signaling.User
	waiting  map[string]signaling.User
	rejected map[string]struct{}
	peers    map[string]*Peer
	local    map[media.Kind]*media.Track
	muted    bool

	hub     *forwarder.Hub
	onEvent func(Event)
}

// New creates a session that sends coordinator frames through sender
func New(sender Sender, config Config) *Session {
	api := config.API
	if api == nil {
		api = NewAPI()
	}
	return &Session{
		config:   config,
		api:      api,
		sender:   sender,
		members:  make(map[string]signaling.User),
		waiting:  make(map[string]signaling.User),
		rejected: make(map[string]struct{}),
		peers:    make(map[string]*Peer),
		local:    make(map[media.Kind]*media.Track),
	}
}

// SetOnEvent sets the observer. It is called outside the session lock.
func (s *Session) SetOnEvent(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = fn
}

func (s *Session) emit(e Event) {
	s.mu.RLock()
	fn := s.onEvent
	s.mu.RUnlock()
	if fn != nil {
		fn(e)
	}
}

// Join asks the coordinator for a place in roomID
func (s *Session) Join(roomID string) error {
	if roomID == "" {
		return NewError("join", ErrRoomIDRequired)
	}
	if err := s.sender.Send(signaling.Join(roomID, s.config.UserName)); err != nil {
		return NewError("join", err)
	}
	return nil
}

// Resync asks the coordinator for a fresh membership snapshot
func (s *Session) Resync() error {
	if s.SelfID() == "" {
		return NewError("sync", ErrNotJoined)
	}
	if err := s.sender.Send(signaling.Sync()); err != nil {
		return NewError("sync", err)
	}
	return nil
}

// Run handles coordinator frames until ctx ends or incoming closes
func (s *Session) Run(ctx context.Context, incoming <-chan *signaling.ServerMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-incoming:
			if !ok {
				s.emit(Event{Type: EventDisconnected})
				return ErrClientClosed
			}
			s.Handle(msg)
		}
	}
}

// Handle dispatches one coordinator frame
func (s *Session) Handle(msg *signaling.ServerMessage) {
	if msg == nil {
		return
	}
	switch msg.Type {
	case signaling.MessageTypeJoined:
		s.handleJoined(msg)
	case signaling.MessageTypePeerJoined:
		s.handlePeerJoined(msg)
	case signaling.MessageTypePeerLeft:
		s.handlePeerLeft(msg)
	case signaling.MessageTypeMainChanged:
		s.handleMainChanged(msg)
	case signaling.MessageTypeSignal:
		s.handleSignal(msg)
	case signaling.MessageTypeSync:
		s.handleSync(msg)
	default:
		utils.Debug("[Session] ignored frame %s", msg.Type)
	}
}

func (s *Session) handleJoined(msg *signaling.ServerMessage) {
	s.mu.Lock()
	// 重新加入: 旧连接全部作废
	stale := s.takePeersLocked()
	oldHub := s.hub

	s.selfID = msg.ID
	s.userName = msg.UserName
	s.roomID = msg.RoomID
	s.hubID = msg.MainID
	if msg.Role == signaling.RoleMain {
		s.hubID = msg.ID
	}
	s.members = make(map[string]signaling.User)
	for _, u := range msg.Users {
		if u.ID != msg.ID {
			s.members[u.ID] = u
		}
	}
	s.waiting = make(map[string]signaling.User)
	s.rejected = make(map[string]struct{})
	hub := forwarder.NewHub(msg.ID)
	s.hub = hub
	isHub := s.hubID == s.selfID
	s.mu.Unlock()

	if oldHub != nil {
		oldHub.Stop()
	}
	for _, p := range stale {
		p.Close()
	}

	utils.Info("[Session] joined room %s as %s (%s)", msg.RoomID, msg.ID, msg.Role)
	if isHub {
		hub.Start()
		s.connectMissing(true)
	}
	s.emit(Event{Type: EventJoined, PeerID: msg.ID, UserName: msg.UserName, Role: msg.Role})
}

func (s *Session) handlePeerJoined(msg *signaling.ServerMessage) {
	if msg.ID == "" {
		return
	}
	user := signaling.User{ID: msg.ID, UserName: msg.UserName}

	s.mu.Lock()
	if s.selfID == "" || msg.ID == s.selfID {
		s.mu.Unlock()
		return
	}
	s.members[user.ID] = user
	isHub := s.hubID == s.selfID
	hold := isHub && s.config.ManualApprove
	if hold {
		s.waiting[user.ID] = user
	}
	s.mu.Unlock()

	s.emit(Event{Type: EventPeerJoined, PeerID: user.ID, UserName: user.UserName})
	if !isHub {
		return
	}
	if hold {
		utils.Info("[Session] %s (%s) waiting for approval", user.UserName, user.ID)
		s.emit(Event{Type: EventWaiting, PeerID: user.ID, UserName: user.UserName})
		return
	}
	s.connect(user)
}

func (s *Session) handlePeerLeft(msg *signaling.ServerMessage) {
	s.mu.Lock()
	if s.selfID == "" {
		s.mu.Unlock()
		return
	}
	user, known := s.members[msg.ID]
	delete(s.members, msg.ID)
	delete(s.waiting, msg.ID)
	delete(s.rejected, msg.ID)
	peer := s.peers[msg.ID]
	delete(s.peers, msg.ID)
	hub := s.hub
	s.mu.Unlock()

	hub.RemovePeer(msg.ID)
	if peer != nil {
		peer.Close()
	}

	name := msg.UserName
	if name == "" && known {
		name = user.UserName
	}
	s.emit(Event{Type: EventPeerLeft, PeerID: msg.ID, UserName: name})
}

func (s *Session) handleMainChanged(msg *signaling.ServerMessage) {
	if s.SelfID() == "" || msg.ID == "" {
		return
	}
	if s.setHub(msg.ID) {
		utils.Info("[Session] hub is now %s", msg.ID)
		s.emit(Event{Type: EventHubChanged, PeerID: msg.ID, UserName: msg.UserName})
	}
}

// setHub switches the hub role. It reports whether the hub changed.
func (s *Session) setHub(hubID string) bool {
	s.mu.Lock()
	old := s.hubID
	if old == hubID {
		s.mu.Unlock()
		return false
	}
	s.hubID = hubID
	self := s.selfID
	hub := s.hub

	var stale []*Peer
	if old == self {
		// 卸任: 只保留与新 Hub 的连接
		for id, p := range s.peers {
			if id != hubID {
				stale = append(stale, p)
				delete(s.peers, id)
			}
		}
		s.waiting = make(map[string]signaling.User)
	}
	s.mu.Unlock()

	switch {
	case hubID == self:
		hub.Start()
		s.connectMissing(true)
	case old == self:
		hub.Stop()
		for _, p := range stale {
			hub.RemovePeer(p.ID())
			p.Close()
		}
	}
	return true
}

func (s *Session) handleSignal(msg *signaling.ServerMessage) {
	if msg.From == "" || s.SelfID() == "" {
		return
	}
	payload, err := signaling.DecodePayload(msg.Payload)
	if err != nil {
		utils.Debug("[Session] dropped signal from %s: %v", msg.From, err)
		return
	}

	peer, _, err := s.getOrCreatePeer(msg.From, msg.UserName, false)
	if err != nil {
		utils.Warn("[Session] %s: %v", msg.From, err)
		return
	}
	if err := peer.engine.HandleSignal(payload); err != nil {
		utils.Warn("[Session] %s: %s: %v", msg.From, payload.Type, err)
	}
}

func (s *Session) handleSync(msg *signaling.ServerMessage) {
	s.mu.Lock()
	if s.selfID == "" {
		s.mu.Unlock()
		return
	}
	present := make(map[string]bool, len(msg.Users))
	members := make(map[string]signaling.User, len(msg.Users))
	for _, u := range msg.Users {
		present[u.ID] = true
		if u.ID != s.selfID {
			members[u.ID] = u
		}
	}
	s.members = members

	var gone []*Peer
	for id, p := range s.peers {
		if !present[id] {
			gone = append(gone, p)
			delete(s.peers, id)
		}
	}
	for id := range s.waiting {
		if !present[id] {
			delete(s.waiting, id)
		}
	}
	for id := range s.rejected {
		if !present[id] {
			delete(s.rejected, id)
		}
	}
	hub := s.hub
	s.mu.Unlock()

	for _, p := range gone {
		hub.RemovePeer(p.ID())
		p.Close()
	}

	changed := false
	if msg.MainID != "" {
		changed = s.setHub(msg.MainID)
	}
	if !changed && s.IsHub() {
		s.connectMissing(false)
	}
	utils.Debug("[Session] synced %d members, %d dropped", len(msg.Users), len(gone))
	s.emit(Event{Type: EventSync, PeerID: s.HubID()})
}

// connectMissing offers to every member without a connection. With
// approveAll false, manual approval holds them instead.
func (s *Session) connectMissing(approveAll bool) {
	s.mu.Lock()
	var connect, hold []signaling.User
	for id, u := range s.members {
		if _, ok := s.peers[id]; ok {
			continue
		}
		if _, ok := s.waiting[id]; ok {
			continue
		}
		if _, ok := s.rejected[id]; ok {
			continue
		}
		if s.config.ManualApprove && !approveAll {
			s.waiting[id] = u
			hold = append(hold, u)
			continue
		}
		connect = append(connect, u)
	}
	s.mu.Unlock()

	for _, u := range hold {
		s.emit(Event{Type: EventWaiting, PeerID: u.ID, UserName: u.UserName})
	}
	for _, u := range connect {
		s.connect(u)
	}
}

// connect opens a connection to user and sends the first offer
func (s *Session) connect(user signaling.User) {
	peer, created, err := s.getOrCreatePeer(user.ID, user.UserName, true)
	if err != nil {
		utils.Warn("[Session] connect %s: %v", user.ID, err)
		return
	}
	if !created {
		return
	}
	if err := peer.engine.Initiate(); err != nil {
		utils.Warn("[Session] %s: initiate: %v", user.ID, err)
	}
}

// getOrCreatePeer returns the peer for id, creating it on first reference
func (s *Session) getOrCreatePeer(id, userName string, initiator bool) (*Peer, bool, error) {
	s.mu.Lock()
	if p, ok := s.peers[id]; ok {
		s.mu.Unlock()
		return p, false, nil
	}
	if userName == "" {
		userName = s.members[id].UserName
	}
	peer, err := s.newPeerLocked(id, userName, initiator)
	if err != nil {
		s.mu.Unlock()
		return nil, false, NewPeerError("create peer", id, err)
	}
	s.peers[id] = peer
	hub := s.hub
	s.mu.Unlock()

	hub.AttachPeer(peer)
	utils.Debug("[Session] peer %s created (initiator=%v)", id, initiator)
	return peer, true, nil
}

// newPeerLocked builds the connection and wires its callbacks. Requires s.mu.
func (s *Session) newPeerLocked(id, userName string, initiator bool) (*Peer, error) {
	pc, err := s.api.NewPeerConnection(webrtc.Configuration{ICEServers: s.config.ICEServers})
	if err != nil {
		return nil, err
	}

	engine := negotiation.NewEngine(s.selfID, id, negotiation.NewPeerTransport(pc), s.config.Negotiation)
	peer := newPeer(id, userName, initiator, pc, engine)

	engine.SetOnSignal(func(p signaling.Payload) {
		s.sendSignal(id, p)
	})
	engine.SetOnStateChange(func(state negotiation.State) {
		utils.Debug("[Session] %s: negotiation %s", id, state)
		if state == negotiation.StateStable {
			peer.onStable()
		}
	})
	engine.SetOnFailed(func(err error) {
		s.emit(Event{Type: EventNegotiationFailed, PeerID: id, UserName: userName, Err: NewPeerError("negotiate", id, err)})
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		s.sendSignal(id, signaling.CandidatePayload(c.ToJSON()))
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != forwarder.ChatLabel {
			return
		}
		peer.setChat(dc)
		s.bindChat(peer, dc)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.handleTrack(peer, track)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		utils.Info("[Session] %s: connection %s", id, state)
	})

	if initiator {
		dc, err := pc.CreateDataChannel(forwarder.ChatLabel, nil)
		if err != nil {
			engine.Close()
			return nil, err
		}
		peer.setChat(dc)
		s.bindChat(peer, dc)
	}

	for kind, track := range s.local {
		if _, err := peer.addLocal(kind, track.Local()); err != nil {
			utils.Warn("[Session] %s: add local %s: %v", id, kind, err)
		}
	}
	return peer, nil
}

func (s *Session) sendSignal(to string, p signaling.Payload) {
	raw, err := p.Marshal()
	if err != nil {
		utils.Warn("[Session] encode %s for %s: %v", p.Type, to, err)
		return
	}
	if err := s.sender.Send(signaling.Signal(to, raw)); err != nil {
		utils.Warn("[Session] send %s to %s: %v", p.Type, to, err)
	}
}

func (s *Session) bindChat(peer *Peer, dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		utils.Info("[Session] chat open with %s", peer.ID())
		s.emit(Event{Type: EventPeerConnected, PeerID: peer.ID(), UserName: peer.UserName()})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.handleChat(peer, msg.Data)
	})
}

func (s *Session) handleChat(peer *Peer, raw []byte) {
	msg, err := forwarder.DecodeChat(raw)
	if err != nil {
		utils.Debug("[Session] dropped chat from %s: %v", peer.ID(), err)
		return
	}
	s.emit(Event{Type: EventChat, PeerID: msg.From, UserName: msg.UserName, Text: msg.Text, SentAt: msg.SentAt})

	s.mu.RLock()
	hub := s.hub
	s.mu.RUnlock()
	hub.ForwardChat(peer.ID(), raw)
}

func (s *Session) handleTrack(peer *Peer, track *webrtc.TrackRemote) {
	s.emit(Event{
		Type:     EventTrack,
		PeerID:   peer.ID(),
		UserName: peer.UserName(),
		Kind:     track.Kind().String(),
		StreamID: track.StreamID(),
	})

	s.mu.RLock()
	hub := s.hub
	s.mu.RUnlock()
	if hub.IsActive() {
		if _, err := hub.AddTrack(peer.ID(), forwarder.FromRemoteTrack(track, peer.pc)); err == nil {
			return
		}
	}
	go drainTrack(track)
}

// SendChat sends text to the room. The hub writes to every peer, a member
// writes to the hub which fans it out. It returns the number of peers reached.
func (s *Session) SendChat(text string) (int, error) {
	s.mu.RLock()
	self, name, hubID := s.selfID, s.userName, s.hubID
	var targets []*Peer
	if hubID == self {
		for _, p := range s.peers {
			targets = append(targets, p)
		}
	} else if p, ok := s.peers[hubID]; ok {
		targets = append(targets, p)
	}
	s.mu.RUnlock()

	if self == "" {
		return 0, NewError("chat", ErrNotJoined)
	}
	if hubID != self && len(targets) == 0 {
		return 0, NewError("chat", ErrNoHub)
	}

	raw, err := forwarder.NewChatMessage(self, name, text).Encode()
	if err != nil {
		return 0, NewError("chat", err)
	}

	sent := 0
	var errs []error
	for _, p := range targets {
		if err := p.SendChat(raw); err != nil {
			errs = append(errs, NewPeerError("chat", p.ID(), err))
			continue
		}
		sent++
	}
	if sent == 0 && len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return sent, nil
}

// StartAudio publishes local audio to every connection
func (s *Session) StartAudio() error {
	return s.startMedia("start audio", media.KindAudio)
}

// StopAudio withdraws local audio
func (s *Session) StopAudio() error {
	return s.stopMedia(media.KindAudio)
}

// StartVideo publishes local video to every connection
func (s *Session) StartVideo() error {
	return s.startMedia("start video", media.KindVideo)
}

// StopVideo withdraws local video
func (s *Session) StopVideo() error {
	return s.stopMedia(media.KindVideo)
}

// startMedia acquires a local track. Failures stay local: connections and
// room membership are untouched.
func (s *Session) startMedia(op string, kind media.Kind) error {
	if s.config.Media == nil {
		return NewError(op, media.ErrMediaUnavailable)
	}
	if s.hasLocal(kind) {
		return nil
	}

	track, err := s.config.Media.Acquire(kind)
	if err != nil {
		return NewError(op, err)
	}

	s.mu.Lock()
	if _, ok := s.local[kind]; ok {
		s.mu.Unlock()
		track.Stop()
		return nil
	}
	if kind == media.KindAudio {
		track.SetMuted(s.muted)
	}
	s.local[kind] = track
	peers := s.peerListLocked()
	s.mu.Unlock()

	for _, p := range peers {
		changed, err := p.addLocal(kind, track.Local())
		if err != nil {
			utils.Warn("[Session] %s: add %s: %v", p.ID(), kind, err)
			continue
		}
		if changed {
			if err := p.Renegotiate(); err != nil {
				utils.Debug("[Session] %s: renegotiate: %v", p.ID(), err)
			}
		}
	}
	utils.Info("[Session] local %s started", kind)
	return nil
}

func (s *Session) stopMedia(kind media.Kind) error {
	s.mu.Lock()
	track, ok := s.local[kind]
	delete(s.local, kind)
	peers := s.peerListLocked()
	s.mu.Unlock()
	if !ok {
		return nil
	}

	for _, p := range peers {
		if p.removeLocal(kind) {
			if err := p.Renegotiate(); err != nil {
				utils.Debug("[Session] %s: renegotiate: %v", p.ID(), err)
			}
		}
	}
	track.Stop()
	utils.Info("[Session] local %s stopped", kind)
	return nil
}

// SetMuted silences local audio without renegotiating
func (s *Session) SetMuted(muted bool) error {
	s.mu.Lock()
	s.muted = muted
	track := s.local[media.KindAudio]
	s.mu.Unlock()
	if track == nil {
		return NewError("mute", ErrNoLocalAudio)
	}
	track.SetMuted(muted)
	return nil
}

// Muted reports the mute setting
func (s *Session) Muted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muted
}

func (s *Session) hasLocal(kind media.Kind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.local[kind]
	return ok
}

// LocalMedia returns the kinds currently published
func (s *Session) LocalMedia() []media.Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kinds := make([]media.Kind, 0, len(s.local))
	for k := range s.local {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Accept connects a member held for approval
func (s *Session) Accept(peerID string) error {
	s.mu.Lock()
	user, ok := s.waiting[peerID]
	delete(s.waiting, peerID)
	s.mu.Unlock()
	if !ok {
		return NewPeerError("accept", peerID, ErrNotWaiting)
	}
	utils.Info("[Session] accepted %s", peerID)
	s.connect(user)
	return nil
}

// Reject drops a member held for approval. It stays in the room unconnected.
func (s *Session) Reject(peerID string) error {
	s.mu.Lock()
	user, ok := s.waiting[peerID]
	delete(s.waiting, peerID)
	if ok {
		s.rejected[peerID] = struct{}{}
	}
	s.mu.Unlock()
	if !ok {
		return NewPeerError("reject", peerID, ErrNotWaiting)
	}
	s.emit(Event{Type: EventRejected, PeerID: user.ID, UserName: user.UserName})
	return nil
}

// SelfID returns the id the coordinator assigned
func (s *Session) SelfID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID
}

// UserName returns the display name the coordinator confirmed
func (s *Session) UserName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userName
}

// RoomID returns the joined room
func (s *Session) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

// HubID returns the current hub
func (s *Session) HubID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hubID
}

// IsHub reports whether this participant is the hub
func (s *Session) IsHub() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID != "" && s.hubID == s.selfID
}

// Members returns the other room members sorted by id
func (s *Session) Members() []signaling.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedUsers(s.members)
}

// Waiting returns members held for approval
func (s *Session) Waiting() []signaling.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedUsers(s.waiting)
}

// Peer returns the connection to peerID
func (s *Session) Peer(peerID string) (*Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[peerID]
	if !ok {
		return nil, ErrPeerNotFound
	}
	return p, nil
}

// Peers returns a snapshot of every connection
func (s *Session) Peers() []PeerInfo {
	s.mu.RLock()
	hubID := s.hubID
	peers := s.peerListLocked()
	s.mu.RUnlock()

	infos := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		infos = append(infos, PeerInfo{
			ID:         p.ID(),
			UserName:   p.UserName(),
			State:      p.State().String(),
			ChatOpen:   p.ChatOpen(),
			IsHub:      p.ID() == hubID,
			OffersSent: p.engine.Stats().OffersSent,
		})
	}
	return infos
}

// Hub returns the forwarding hub. It is nil before joined.
func (s *Session) Hub() *forwarder.Hub {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hub
}

// Close releases every connection and local track
func (s *Session) Close() {
	s.mu.Lock()
	peers := s.takePeersLocked()
	tracks := s.local
	s.local = make(map[media.Kind]*media.Track)
	hub := s.hub
	s.mu.Unlock()

	if hub != nil {
		hub.Stop()
	}
	for _, p := range peers {
		p.Close()
	}
	for _, t := range tracks {
		t.Stop()
	}
}

// peerListLocked returns the peers sorted by id. Requires s.mu.
func (s *Session) peerListLocked() []*Peer {
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID() < peers[j].ID() })
	return peers
}

// takePeersLocked empties the peer table. Requires s.mu.
func (s *Session) takePeersLocked() []*Peer {
	peers := s.peerListLocked()
	s.peers = make(map[string]*Peer)
	return peers
}

func sortedUsers(m map[string]signaling.User) []signaling.User {
	users := make([]signaling.User, 0, len(m))
	for _, u := range m {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}
