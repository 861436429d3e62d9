/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * TrackForwarder - 将一条入站 RTP 流原样转发给多个订阅者
 * 不解码，只做 RTP 中继
 */
package forwarder

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/maiguangyang/star_relay/pkg/utils"
)

// RTPSource is an inbound track the hub receives from a publisher
type RTPSource interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	Capability() webrtc.RTPCodecCapability
	// Read fills b with one raw RTP packet
	Read(b []byte) (int, error)
}

// KeyframeRequester is implemented by sources that can ask the publisher
// for a fresh keyframe
type KeyframeRequester interface {
	RequestKeyframe() error
}

// RTCPWriter sends RTCP back toward the publisher. *webrtc.PeerConnection implements it.
type RTCPWriter interface {
	WriteRTCP(pkts []rtcp.Packet) error
}

// keyframeInterval 限制向发布者请求关键帧的频率
const keyframeInterval = 500 * time.Millisecond

type remoteTrackSource struct {
	track  *webrtc.TrackRemote
	writer RTCPWriter
}

// FromRemoteTrack adapts a pion TrackRemote. writer may be nil, in which
// case keyframe requests are not sent.
func FromRemoteTrack(track *webrtc.TrackRemote, writer RTCPWriter) RTPSource {
	return &remoteTrackSource{track: track, writer: writer}
}

func (s *remoteTrackSource) ID() string                { return s.track.ID() }
func (s *remoteTrackSource) StreamID() string          { return s.track.StreamID() }
func (s *remoteTrackSource) Kind() webrtc.RTPCodecType { return s.track.Kind() }

func (s *remoteTrackSource) Capability() webrtc.RTPCodecCapability {
	return s.track.Codec().RTPCodecCapability
}

func (s *remoteTrackSource) Read(b []byte) (int, error) {
	n, _, err := s.track.Read(b)
	return n, err
}

func (s *remoteTrackSource) RequestKeyframe() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(s.track.SSRC())},
	})
}

// subscription holds one subscriber's local track and sender
type subscription struct {
	peer   HubPeer
	track  *webrtc.TrackLocalStaticRTP
	sender *webrtc.RTPSender
}

// TrackForwarder fans one publisher track out to every subscriber
type TrackForwarder struct {
	mu          sync.RWMutex
	publisherID string
	source      RTPSource

	// peerID -> subscription
	subscribers map[string]*subscription

	closed  atomic.Bool
	closeCh chan struct{}
	onDone  func()

	packetsForwarded  atomic.Uint64
	bytesForwarded    atomic.Uint64
	writeErrors       atomic.Uint64
	keyframeRequests  atomic.Uint64
	lastKeyframeNanos atomic.Int64
}

// NewTrackForwarder creates a forwarder for source published by publisherID
func NewTrackForwarder(publisherID string, source RTPSource) *TrackForwarder {
	return &TrackForwarder{
		publisherID: publisherID,
		source:      source,
		subscribers: make(map[string]*subscription),
		closeCh:     make(chan struct{}),
	}
}

// Subscribe attaches the track to peer. added is false when the peer
// already has it or is the publisher.
func (f *TrackForwarder) Subscribe(peer HubPeer) (added bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed.Load() {
		return false, ErrForwarderClosed
	}
	if peer.ID() == f.publisherID {
		return false, nil
	}
	if _, exists := f.subscribers[peer.ID()]; exists {
		return false, nil
	}

	// 与源相同的 codec
	localTrack, err := webrtc.NewTrackLocalStaticRTP(
		f.source.Capability(),
		f.source.ID(),
		f.source.StreamID(),
	)
	if err != nil {
		return false, err
	}

	sender, err := peer.AddTrack(localTrack)
	if err != nil {
		return false, err
	}

	f.subscribers[peer.ID()] = &subscription{
		peer:   peer,
		track:  localTrack,
		sender: sender,
	}
	if sender != nil {
		go f.readRTCP(sender)
	}
	// 新订阅者需要关键帧才能开始解码
	if f.source.Kind() == webrtc.RTPCodecTypeVideo {
		go f.requestKeyframe()
	}
	return true, nil
}

// readRTCP relays a subscriber's picture loss reports to the publisher
func (f *TrackForwarder) readRTCP(sender *webrtc.RTPSender) {
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				f.requestKeyframe()
			}
		}
	}
}

// requestKeyframe asks the publisher for a keyframe, at most once per keyframeInterval
func (f *TrackForwarder) requestKeyframe() {
	req, ok := f.source.(KeyframeRequester)
	if !ok || f.closed.Load() {
		return
	}
	now := time.Now().UnixNano()
	last := f.lastKeyframeNanos.Load()
	if now-last < int64(keyframeInterval) || !f.lastKeyframeNanos.CompareAndSwap(last, now) {
		return
	}
	if err := req.RequestKeyframe(); err != nil {
		utils.Debug("[Forwarder] keyframe request for %s: %v", f.source.ID(), err)
		return
	}
	f.keyframeRequests.Add(1)
}

// Unsubscribe removes peerID's sender. It reports whether the peer was subscribed.
func (f *TrackForwarder) Unsubscribe(peerID string) bool {
	f.mu.Lock()
	sub, exists := f.subscribers[peerID]
	delete(f.subscribers, peerID)
	f.mu.Unlock()

	if !exists {
		return false
	}
	f.removeSender(sub)
	return true
}

// Retract removes the track from every subscriber and returns the peers
// whose connections changed
func (f *TrackForwarder) Retract() []HubPeer {
	f.mu.Lock()
	subs := make([]*subscription, 0, len(f.subscribers))
	for id, sub := range f.subscribers {
		subs = append(subs, sub)
		delete(f.subscribers, id)
	}
	f.mu.Unlock()

	peers := make([]HubPeer, 0, len(subs))
	for _, sub := range subs {
		f.removeSender(sub)
		peers = append(peers, sub.peer)
	}
	return peers
}

func (f *TrackForwarder) removeSender(sub *subscription) {
	if sub.sender == nil {
		return
	}
	if err := sub.peer.RemoveTrack(sub.sender); err != nil {
		utils.Debug("[Forwarder] remove %s from %s: %v", f.source.ID(), sub.peer.ID(), err)
	}
}

// Start runs the forwarding loop until the source ends or Close is called
func (f *TrackForwarder) Start() {
	defer func() {
		if f.onDone != nil {
			f.onDone()
		}
	}()

	for {
		select {
		case <-f.closeCh:
			return
		default:
		}

		buf := utils.GetBuffer(utils.RTPBufferSize)
		n, err := f.source.Read(buf)
		if err != nil {
			utils.PutBuffer(buf)
			if !errors.Is(err, io.EOF) {
				utils.Debug("[Forwarder] %s read ended: %v", f.source.ID(), err)
			}
			return
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			utils.PutBuffer(buf)
			continue
		}
		f.forwardPacket(pkt, n)
		utils.PutBuffer(buf)
	}
}

// forwardPacket writes pkt to all subscribers. WriteRTP copies, so buf can be reused after.
func (f *TrackForwarder) forwardPacket(pkt *rtp.Packet, size int) {
	f.mu.RLock()
	subs := make([]*subscription, 0, len(f.subscribers))
	for _, sub := range f.subscribers {
		subs = append(subs, sub)
	}
	f.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.track.WriteRTP(pkt); err != nil {
			// 单个订阅者失败不影响其他订阅者
			f.writeErrors.Add(1)
			continue
		}
		f.packetsForwarded.Add(1)
		f.bytesForwarded.Add(uint64(size))
	}
}

// Close stops the forwarding loop. Subscriptions stay until Retract.
func (f *TrackForwarder) Close() {
	if !f.closed.CompareAndSwap(false, true) {
		return
	}
	close(f.closeCh)
}

// IsClosed reports whether Close was called
func (f *TrackForwarder) IsClosed() bool {
	return f.closed.Load()
}

// Stats returns forwarding statistics
func (f *TrackForwarder) Stats() (packetsForwarded, bytesForwarded uint64) {
	return f.packetsForwarded.Load(), f.bytesForwarded.Load()
}

// KeyframeRequests returns how many keyframe requests reached the publisher
func (f *TrackForwarder) KeyframeRequests() uint64 {
	return f.keyframeRequests.Load()
}

// SubscriberCount returns the number of subscribers
func (f *TrackForwarder) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// HasSubscriber reports whether peerID receives this track
func (f *TrackForwarder) HasSubscriber(peerID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.subscribers[peerID]
	return ok
}

// PublisherID returns the peer the track comes from
func (f *TrackForwarder) PublisherID() string {
	return f.publisherID
}

// TrackID returns the track ID being forwarded
func (f *TrackForwarder) TrackID() string {
	return f.source.ID()
}

// TrackKind returns the track kind (audio/video)
func (f *TrackForwarder) TrackKind() webrtc.RTPCodecType {
	return f.source.Kind()
}
