/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Negotiation Engine - 单个远端 Peer 的协商状态机
 *
 * idle -> have-local-offer -> stable   (本端发起)
 * idle -> have-remote-offer -> stable  (远端发起)
 * stable -> have-local-offer -> stable (重协商)
 *
 * 同一个 Peer 的所有状态转换都在 mu 内串行执行。
 */
package negotiation

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/maiguangyang/star_relay/pkg/signaling"
	"github.com/maiguangyang/star_relay/pkg/utils"
)

// State is the negotiation phase of one peer pair
type State int32

const (
	StateIdle State = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateStable
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds engine configuration
type Config struct {
	// An offer unanswered for this long is rolled back. Zero disables the timer.
	OfferTimeout time.Duration
	// Re-offers after a timeout before the engine reports ErrNegotiationStalled
	OfferRetries int
}

// DefaultConfig returns default engine configuration
func DefaultConfig() Config {
	return Config{
		OfferTimeout: 15 * time.Second,
		OfferRetries: 1,
	}
}

// Option configures an Engine
type Option func(*Engine)

// WithPolite overrides the politeness derived from the peer ids
func WithPolite(polite bool) Option {
	return func(e *Engine) {
		e.polite = polite
	}
}

// IsPolite is the default glare tie-break: the lower id yields.
// Both sides compute it from the same pair, so exactly one is polite.
func IsPolite(localID, remoteID string) bool {
	return localID < remoteID
}

// Stats counts engine events
type Stats struct {
	OffersSent        uint64 `json:"offers_sent"`
	AnswersSent       uint64 `json:"answers_sent"`
	StaleDiscarded    uint64 `json:"stale_discarded"`
	Rollbacks         uint64 `json:"rollbacks"`
	CandidatesApplied uint64 `json:"candidates_applied"`
	CandidatesDropped uint64 `json:"candidates_dropped"`
	Stalls            uint64 `json:"stalls"`
}

// Engine drives offer/answer/candidate exchange with one remote peer
type Engine struct {
	mu        sync.Mutex
	localID   string
	remoteID  string
	polite    bool
	config    Config
	transport Transport

	state         State
	offerBase     State // state to return to when the pending offer is rolled back
	remoteDescSet bool
	pending       []webrtc.ICECandidateInit
	reoffer       bool // a rolled-back local change still has to be offered

	offerTimer *time.Timer
	offerGen   uint64
	retries    int

	onSignal      func(payload signaling.Payload)
	onStateChange func(state State)
	onFailed      func(err error)

	stats struct {
		offersSent        atomic.Uint64
		answersSent       atomic.Uint64
		staleDiscarded    atomic.Uint64
		rollbacks         atomic.Uint64
		candidatesApplied atomic.Uint64
		candidatesDropped atomic.Uint64
		stalls            atomic.Uint64
	}
}

// NewEngine creates an idle engine for the pair (localID, remoteID)
func NewEngine(localID, remoteID string, transport Transport, config Config, opts ...Option) *Engine {
	e := &Engine{
		localID:   localID,
		remoteID:  remoteID,
		polite:    IsPolite(localID, remoteID),
		config:    config,
		transport: transport,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetOnSignal sets the sink for outbound payloads. It runs inside the
// transition and must not call back into the engine.
func (e *Engine) SetOnSignal(fn func(payload signaling.Payload)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onSignal = fn
}

// SetOnStateChange sets the state observer. Same rule as SetOnSignal.
func (e *Engine) SetOnStateChange(fn func(state State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStateChange = fn
}

// SetOnFailed sets the callback for a stalled negotiation. It runs outside the lock.
func (e *Engine) SetOnFailed(fn func(err error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFailed = fn
}

// RemoteID returns the remote peer id
func (e *Engine) RemoteID() string {
	return e.remoteID
}

// Polite reports whether this side yields on glare
func (e *Engine) Polite() bool {
	return e.polite
}

// State returns the current state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// PendingCandidates returns the number of buffered remote candidates
func (e *Engine) PendingCandidates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Stats returns a snapshot of engine counters
func (e *Engine) Stats() Stats {
	return Stats{
		OffersSent:        e.stats.offersSent.Load(),
		AnswersSent:       e.stats.answersSent.Load(),
		StaleDiscarded:    e.stats.staleDiscarded.Load(),
		Rollbacks:         e.stats.rollbacks.Load(),
		CandidatesApplied: e.stats.candidatesApplied.Load(),
		CandidatesDropped: e.stats.candidatesDropped.Load(),
		Stalls:            e.stats.stalls.Load(),
	}
}

// Initiate sends the first offer. Only valid from idle.
func (e *Engine) Initiate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		return ErrEngineClosed
	}
	if e.state != StateIdle {
		return fmt.Errorf("%w: initiate from %s", ErrInvalidState, e.state)
	}
	return e.sendOffer("initiate")
}

// Renegotiate sends a fresh offer on an established connection. When an
// exchange is in flight the request is skipped and ErrNotStable returned.
func (e *Engine) Renegotiate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		return ErrEngineClosed
	}
	if e.state != StateStable {
		utils.Info("[Negotiation] %s: renegotiate skipped in %s", e.remoteID, e.state)
		return ErrNotStable
	}
	return e.sendOffer("renegotiate")
}

// HandleSignal dispatches a decoded payload from the remote peer
func (e *Engine) HandleSignal(p signaling.Payload) error {
	switch p.Type {
	case signaling.PayloadOffer, signaling.PayloadAnswer:
		if p.Description == nil {
			return ErrInvalidDescription
		}
		desc := *p.Description
		if desc.Type == webrtc.SDPTypeUnknown {
			desc.Type = webrtc.NewSDPType(string(p.Type))
		}
		return e.ApplyRemote(desc)
	case signaling.PayloadCandidate:
		if p.Candidate == nil {
			return signaling.ErrMalformedMessage
		}
		return e.AddRemoteCandidate(*p.Candidate)
	default:
		return signaling.ErrMalformedMessage
	}
}

// ApplyRemote applies a remote offer or answer
func (e *Engine) ApplyRemote(desc webrtc.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		return ErrEngineClosed
	}

	switch desc.Type {
	case webrtc.SDPTypeAnswer:
		return e.applyAnswer(desc)
	case webrtc.SDPTypeOffer:
		return e.applyOffer(desc)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidDescription, desc.Type)
	}
}

func (e *Engine) applyAnswer(desc webrtc.SessionDescription) error {
	if e.state != StateHaveLocalOffer {
		// 重复或迟到的 answer
		e.stats.staleDiscarded.Add(1)
		utils.Debug("[Negotiation] %s: stale answer discarded in %s", e.remoteID, e.state)
		return nil
	}

	if err := e.transport.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	e.stopOfferTimer()
	e.retries = 0
	e.remoteDescSet = true
	e.setState(StateStable)
	e.flushCandidates()
	return e.afterStable()
}

func (e *Engine) applyOffer(desc webrtc.SessionDescription) error {
	switch e.state {
	case StateHaveLocalOffer:
		if !e.polite {
			// glare: 对端会回滚
			e.stats.staleDiscarded.Add(1)
			utils.Debug("[Negotiation] %s: glare, keeping own offer", e.remoteID)
			return nil
		}
		if err := e.transport.Rollback(); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		e.stopOfferTimer()
		e.stats.rollbacks.Add(1)
		e.setState(e.offerBase)
		e.reoffer = true
		utils.Debug("[Negotiation] %s: glare, rolled back own offer", e.remoteID)
	case StateHaveRemoteOffer:
		e.stats.staleDiscarded.Add(1)
		utils.Debug("[Negotiation] %s: offer discarded, already answering", e.remoteID)
		return nil
	}

	if err := e.transport.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	prevState, prevRemoteSet := e.state, e.remoteDescSet
	e.remoteDescSet = true
	e.setState(StateHaveRemoteOffer)
	e.flushCandidates()

	answer, err := e.transport.CreateAnswer()
	if err != nil {
		e.abortAnswer(prevState, prevRemoteSet)
		return fmt.Errorf("create answer: %w", err)
	}
	if err := e.transport.SetLocalDescription(answer); err != nil {
		e.abortAnswer(prevState, prevRemoteSet)
		return fmt.Errorf("set local answer: %w", err)
	}
	e.setState(StateStable)
	e.stats.answersSent.Add(1)
	e.emit(signaling.AnswerPayload(answer))
	return e.afterStable()
}

// abortAnswer rolls the remote offer back so the next offer can be answered
func (e *Engine) abortAnswer(prevState State, prevRemoteSet bool) {
	if err := e.transport.Rollback(); err != nil {
		utils.Warn("[Negotiation] %s: rollback remote offer: %v", e.remoteID, err)
	}
	e.stats.rollbacks.Add(1)
	e.remoteDescSet = prevRemoteSet
	e.setState(prevState)
	utils.Debug("[Negotiation] %s: answer failed, back to %s", e.remoteID, prevState)
}

// AddRemoteCandidate applies a candidate, or buffers it until the remote
// description is known. A rejected candidate is dropped on its own.
func (e *Engine) AddRemoteCandidate(candidate webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		return ErrEngineClosed
	}
	if !e.remoteDescSet {
		e.pending = append(e.pending, candidate)
		return nil
	}
	e.applyCandidate(candidate)
	return nil
}

// Close releases the transport and buffered state
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		return nil
	}
	e.stopOfferTimer()
	e.pending = nil
	e.reoffer = false
	e.setState(StateClosed)
	return e.transport.Close()
}

// The helpers below require e.mu.

func (e *Engine) sendOffer(reason string) error {
	offer, err := e.transport.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := e.transport.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	e.offerBase = e.state
	e.setState(StateHaveLocalOffer)
	e.startOfferTimer()
	e.stats.offersSent.Add(1)
	utils.Debug("[Negotiation] %s: offer sent (%s)", e.remoteID, reason)
	e.emit(signaling.OfferPayload(offer))
	return nil
}

// afterStable sends the offer that glare rolled back, if any
func (e *Engine) afterStable() error {
	if !e.reoffer || e.state != StateStable {
		return nil
	}
	e.reoffer = false
	return e.sendOffer("after glare")
}

func (e *Engine) flushCandidates() {
	pending := e.pending
	e.pending = nil
	for _, c := range pending {
		e.applyCandidate(c)
	}
}

func (e *Engine) applyCandidate(c webrtc.ICECandidateInit) {
	if err := e.transport.AddICECandidate(c); err != nil {
		e.stats.candidatesDropped.Add(1)
		utils.Warn("[Negotiation] %s: candidate dropped: %v", e.remoteID, err)
		return
	}
	e.stats.candidatesApplied.Add(1)
}

func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	e.state = s
	if e.onStateChange != nil {
		e.onStateChange(s)
	}
}

func (e *Engine) emit(p signaling.Payload) {
	if e.onSignal != nil {
		e.onSignal(p)
	}
}

func (e *Engine) startOfferTimer() {
	e.stopOfferTimer()
	if e.config.OfferTimeout <= 0 {
		return
	}
	gen := e.offerGen
	e.offerTimer = time.AfterFunc(e.config.OfferTimeout, func() {
		e.onOfferTimeout(gen)
	})
}

func (e *Engine) stopOfferTimer() {
	e.offerGen++
	if e.offerTimer != nil {
		e.offerTimer.Stop()
		e.offerTimer = nil
	}
}

func (e *Engine) onOfferTimeout(gen uint64) {
	e.mu.Lock()
	if gen != e.offerGen || e.state != StateHaveLocalOffer {
		e.mu.Unlock()
		return
	}

	utils.Warn("[Negotiation] %s: no answer within %v", e.remoteID, e.config.OfferTimeout)
	if err := e.transport.Rollback(); err != nil {
		utils.Warn("[Negotiation] %s: rollback after timeout failed: %v", e.remoteID, err)
	}
	e.stopOfferTimer()
	e.stats.rollbacks.Add(1)
	e.setState(e.offerBase)

	if e.retries < e.config.OfferRetries {
		e.retries++
		err := e.sendOffer(fmt.Sprintf("retry %d", e.retries))
		e.mu.Unlock()
		if err != nil {
			utils.Warn("[Negotiation] %s: retry offer failed: %v", e.remoteID, err)
		}
		return
	}

	e.retries = 0
	e.stats.stalls.Add(1)
	onFailed := e.onFailed
	e.mu.Unlock()

	if onFailed != nil {
		onFailed(ErrNegotiationStalled)
	}
}
