/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package election

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Candidate is a room member eligible for the hub role
type Candidate struct {
	PeerID   string
	Seq      uint64 // arrival order within the room, starting at 1
	JoinedAt time.Time
	IsHub    bool
}

// ElectionResult represents the outcome of a hub election
type ElectionResult struct {
	HubID     string
	Epoch     uint64
	Reason    string
	Timestamp time.Time
}

const (
	ReasonFirstJoin = "first_join"
	ReasonHubLeft   = "hub_left"
)

// Rule picks the hub among candidates. It must be deterministic: the same
// candidate set always yields the same id.
type Rule interface {
	Name() string
	Choose(candidates []Candidate) string
}

// ArrivalOrder picks the earliest remaining arrival
type ArrivalOrder struct{}

func (ArrivalOrder) Name() string { return "arrival" }

func (ArrivalOrder) Choose(candidates []Candidate) string {
	var best *Candidate
	for i := range candidates {
		if best == nil || candidates[i].Seq < best.Seq {
			best = &candidates[i]
		}
	}
	if best == nil {
		return ""
	}
	return best.PeerID
}

// LowestID picks the lexically smallest peer id
type LowestID struct{}

func (LowestID) Name() string { return "lowest-id" }

func (LowestID) Choose(candidates []Candidate) string {
	best := ""
	for _, c := range candidates {
		if best == "" || c.PeerID < best {
			best = c.PeerID
		}
	}
	return best
}

// RuleByName resolves a configured rule name
func RuleByName(name string) (Rule, error) {
	switch name {
	case "", "arrival":
		return ArrivalOrder{}, nil
	case "lowest-id":
		return LowestID{}, nil
	default:
		return nil, fmt.Errorf("unknown hub rule %q", name)
	}
}

// ElectorConfig holds election configuration
type ElectorConfig struct {
	Rule Rule
}

// DefaultElectorConfig returns default election configuration
func DefaultElectorConfig() ElectorConfig {
	return ElectorConfig{
		Rule: ArrivalOrder{},
	}
}

// Elector tracks the hub of one room. It holds no goroutines; callers
// serialize membership changes and act on the returned results.
type Elector struct {
	mu         sync.RWMutex
	roomID     string
	rule       Rule
	candidates map[string]*Candidate
	currentHub string
	nextSeq    uint64
	epoch      uint64
}

// NewElector creates a hub elector for a room
func NewElector(roomID string, config ElectorConfig) *Elector {
	rule := config.Rule
	if rule == nil {
		rule = ArrivalOrder{}
	}
	return &Elector{
		roomID:     roomID,
		rule:       rule,
		candidates: make(map[string]*Candidate),
	}
}

// AddCandidate registers a new member. When the room has no hub the joiner
// takes the role and the result is returned with ok=true.
func (e *Elector) AddCandidate(peerID string) (result ElectionResult, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.candidates[peerID]; exists {
		return ElectionResult{}, false
	}

	e.nextSeq++
	e.candidates[peerID] = &Candidate{
		PeerID:   peerID,
		Seq:      e.nextSeq,
		JoinedAt: time.Now(),
	}

	if e.currentHub != "" {
		return ElectionResult{}, false
	}
	return e.setHub(peerID, ReasonFirstJoin), true
}

// RemoveCandidate removes a member. If it was the hub a new one is chosen by
// the rule and returned with ok=true; an emptied room has no hub.
func (e *Elector) RemoveCandidate(peerID string) (result ElectionResult, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.candidates[peerID]; !exists {
		return ElectionResult{}, false
	}
	delete(e.candidates, peerID)

	if e.currentHub != peerID {
		return ElectionResult{}, false
	}
	e.currentHub = ""

	next := e.rule.Choose(e.snapshot())
	if next == "" {
		return ElectionResult{}, false
	}
	return e.setHub(next, ReasonHubLeft), true
}

func (e *Elector) setHub(peerID, reason string) ElectionResult {
	if old, ok := e.candidates[e.currentHub]; ok {
		old.IsHub = false
	}
	e.currentHub = peerID
	e.candidates[peerID].IsHub = true
	e.epoch++
	return ElectionResult{
		HubID:     peerID,
		Epoch:     e.epoch,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

func (e *Elector) snapshot() []Candidate {
	out := make([]Candidate, 0, len(e.candidates))
	for _, c := range e.candidates {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Seq < out[j].Seq
	})
	return out
}

// CurrentHub returns the current hub peer ID, or "" for an empty room
func (e *Elector) CurrentHub() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentHub
}

// Epoch increments on every hub change
func (e *Elector) Epoch() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.epoch
}

// Candidates returns all members in arrival order
func (e *Elector) Candidates() []Candidate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot()
}

// RuleName returns the configured rule
func (e *Elector) RuleName() string {
	return e.rule.Name()
}
