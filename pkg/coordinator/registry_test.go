/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Registry Tests
 */
package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/maiguangyang/star_relay/pkg/election"
	"github.com/maiguangyang/star_relay/pkg/signaling"
)

// fakeConn 记录所有发往该参与者的消息
type fakeConn struct {
	mu     sync.Mutex
	msgs   []*signaling.ServerMessage
	closed bool
}

func (c *fakeConn) Send(msg *signaling.ServerMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages() []*signaling.ServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*signaling.ServerMessage, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func (c *fakeConn) ofType(t signaling.MessageType) []*signaling.ServerMessage {
	var out []*signaling.ServerMessage
	for _, m := range c.messages() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func newTestParticipant(id string) (*Participant, *fakeConn) {
	c := &fakeConn{}
	return NewParticipantWithID(id, c), c
}

func newTestRegistry() *Registry {
	return NewRegistry(RegistryConfig{
		Rule:          election.ArrivalOrder{},
		NameGenerator: func() string { return "anon" },
	}, nil)
}

func TestRegistryJoinLeaveScenario(t *testing.T) {
	reg := newTestRegistry()
	p1, c1 := newTestParticipant("P1")
	p2, c2 := newTestParticipant("P2")

	role, users, err := reg.Join(p1, "r1", "alice")
	if err != nil {
		t.Fatalf("Join P1 failed: %v", err)
	}
	if role != signaling.RoleMain {
		t.Errorf("Expected P1 to be main, got %s", role)
	}
	if len(users) != 0 {
		t.Errorf("Expected empty membership, got %v", users)
	}

	role, users, err = reg.Join(p2, "r1", "")
	if err != nil {
		t.Fatalf("Join P2 failed: %v", err)
	}
	if role != signaling.RolePeer {
		t.Errorf("Expected P2 to be peer, got %s", role)
	}
	if len(users) != 1 || users[0].ID != "P1" || users[0].UserName != "alice" {
		t.Errorf("Expected users [P1], got %v", users)
	}

	joined := c2.ofType(signaling.MessageTypeJoined)
	if len(joined) != 1 || joined[0].Role != signaling.RolePeer || joined[0].UserName != "anon" {
		t.Fatalf("Unexpected joined for P2: %+v", joined)
	}
	if joined[0].MainID != "P1" {
		t.Errorf("Expected joined to name hub P1, got %q", joined[0].MainID)
	}
	pj := c1.ofType(signaling.MessageTypePeerJoined)
	if len(pj) != 1 || pj[0].ID != "P2" {
		t.Fatalf("Expected P1 to get peer-joined for P2, got %+v", pj)
	}
	if n := len(c2.ofType(signaling.MessageTypePeerJoined)); n != 0 {
		t.Errorf("Joiner should not get its own peer-joined, got %d", n)
	}

	reg.Leave(p1)

	left := c2.ofType(signaling.MessageTypePeerLeft)
	if len(left) != 1 || left[0].ID != "P1" {
		t.Fatalf("Expected peer-left for P1, got %+v", left)
	}
	changed := c2.ofType(signaling.MessageTypeMainChanged)
	if len(changed) != 1 || changed[0].ID != "P2" {
		t.Fatalf("Expected main-changed naming P2, got %+v", changed)
	}

	// peer-left 先于 main-changed
	msgs := c2.messages()
	if msgs[len(msgs)-2].Type != signaling.MessageTypePeerLeft || msgs[len(msgs)-1].Type != signaling.MessageTypeMainChanged {
		t.Errorf("Expected peer-left then main-changed, got %s, %s", msgs[len(msgs)-2].Type, msgs[len(msgs)-1].Type)
	}
	if reg.HubOf("r1") != "P2" {
		t.Errorf("Expected hub P2, got %s", reg.HubOf("r1"))
	}
}

func TestRegistryRoomDestroyedWhenEmpty(t *testing.T) {
	reg := newTestRegistry()
	p1, _ := newTestParticipant("P1")

	reg.Join(p1, "r1", "")
	reg.Leave(p1)

	if reg.RoomCount() != 0 {
		t.Errorf("Expected 0 rooms, got %d", reg.RoomCount())
	}
	if reg.HubOf("r1") != "" {
		t.Error("Hub assignment should be discarded with the room")
	}

	// 重新加入同名房间，全新的 hub 分配
	p2, c2 := newTestParticipant("P2")
	role, _, _ := reg.Join(p2, "r1", "")
	if role != signaling.RoleMain {
		t.Errorf("Expected P2 to become main of recreated room, got %s", role)
	}
	if len(c2.ofType(signaling.MessageTypeJoined)) != 1 {
		t.Error("Expected joined for P2")
	}
}

func TestRegistryJoinRequiresRoomID(t *testing.T) {
	reg := newTestRegistry()
	p1, c1 := newTestParticipant("P1")

	if _, _, err := reg.Join(p1, "", ""); !errors.Is(err, ErrRoomIDRequired) {
		t.Errorf("Expected ErrRoomIDRequired, got %v", err)
	}
	if len(c1.messages()) != 0 {
		t.Error("Rejected join should send nothing")
	}
	if reg.RoomCount() != 0 {
		t.Error("Rejected join should not create a room")
	}
}

func TestRegistryJoinTwice(t *testing.T) {
	reg := newTestRegistry()
	p1, _ := newTestParticipant("P1")
	reg.Join(p1, "r1", "")

	if _, _, err := reg.Join(p1, "r1", ""); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("Expected ErrAlreadyJoined, got %v", err)
	}
}

func TestRegistrySwitchRoom(t *testing.T) {
	reg := newTestRegistry()
	p1, _ := newTestParticipant("P1")
	p2, c2 := newTestParticipant("P2")
	reg.Join(p1, "r1", "")
	reg.Join(p2, "r1", "")

	role, _, err := reg.Join(p1, "r2", "")
	if err != nil {
		t.Fatalf("Switch failed: %v", err)
	}
	if role != signaling.RoleMain {
		t.Errorf("Expected main in new room, got %s", role)
	}
	if len(c2.ofType(signaling.MessageTypePeerLeft)) != 1 {
		t.Error("Old room should see peer-left")
	}
	if reg.HubOf("r1") != "P2" {
		t.Errorf("Expected P2 hub of r1, got %s", reg.HubOf("r1"))
	}
}

func TestRegistryLeaveNotJoined(t *testing.T) {
	reg := newTestRegistry()
	p1, c1 := newTestParticipant("P1")

	reg.Leave(p1) // no-op
	reg.Leave(p1)

	if len(c1.messages()) != 0 {
		t.Error("Leave without join should send nothing")
	}
}

func TestRegistryNonHubLeaveNoMainChanged(t *testing.T) {
	reg := newTestRegistry()
	p1, c1 := newTestParticipant("P1")
	p2, _ := newTestParticipant("P2")
	reg.Join(p1, "r1", "")
	reg.Join(p2, "r1", "")

	reg.Leave(p2)

	if len(c1.ofType(signaling.MessageTypePeerLeft)) != 1 {
		t.Error("Expected peer-left")
	}
	if len(c1.ofType(signaling.MessageTypeMainChanged)) != 0 {
		t.Error("Non-hub departure must not change hub")
	}
}

func TestRegistryHubDepartureSingleBroadcast(t *testing.T) {
	reg := newTestRegistry()
	ps := make([]*Participant, 4)
	cs := make([]*fakeConn, 4)
	for i := range ps {
		ps[i], cs[i] = newTestParticipant(fmt.Sprintf("P%d", i+1))
		reg.Join(ps[i], "r1", "")
	}

	reg.Leave(ps[0])

	for i := 1; i < 4; i++ {
		changed := cs[i].ofType(signaling.MessageTypeMainChanged)
		if len(changed) != 1 {
			t.Fatalf("P%d: expected exactly one main-changed, got %d", i+1, len(changed))
		}
		if changed[0].ID != "P2" {
			t.Errorf("P%d: expected P2, got %s", i+1, changed[0].ID)
		}
	}
	if len(cs[0].ofType(signaling.MessageTypeMainChanged)) != 0 {
		t.Error("Departed hub must not receive main-changed")
	}
}

func TestRegistryConcurrentJoinsOneHub(t *testing.T) {
	for round := 0; round < 20; round++ {
		reg := newTestRegistry()
		const n = 32

		var wg sync.WaitGroup
		roles := make([]signaling.Role, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				p, _ := newTestParticipant(fmt.Sprintf("P%02d", i))
				roles[i], _, _ = reg.Join(p, "race", "")
			}(i)
		}
		wg.Wait()

		mains := 0
		for _, r := range roles {
			if r == signaling.RoleMain {
				mains++
			}
		}
		if mains != 1 {
			t.Fatalf("Round %d: expected exactly 1 main, got %d", round, mains)
		}
	}
}

func TestRegistryConcurrentChurnKeepsHubInvariant(t *testing.T) {
	reg := newTestRegistry()
	const n = 16

	ps := make([]*Participant, n)
	for i := range ps {
		ps[i], _ = newTestParticipant(fmt.Sprintf("P%02d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(p *Participant) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				reg.Join(p, "churn", "")
				reg.Leave(p)
			}
			reg.Join(p, "churn", "")
		}(ps[i])
	}
	wg.Wait()

	rooms := reg.Rooms()
	if len(rooms) != 1 {
		t.Fatalf("Expected 1 room, got %d", len(rooms))
	}
	hub := rooms[0].MainID
	found := false
	for _, u := range rooms[0].Users {
		if u.ID == hub {
			found = true
		}
	}
	if !found {
		t.Errorf("Hub %q is not a current member", hub)
	}
	if rooms[0].PeerCount != n {
		t.Errorf("Expected %d members, got %d", n, rooms[0].PeerCount)
	}
}

func TestRegistryRoute(t *testing.T) {
	reg := newTestRegistry()
	p1, _ := newTestParticipant("P1")
	p2, c2 := newTestParticipant("P2")
	reg.Join(p1, "r1", "alice")
	reg.Join(p2, "r1", "bob")

	payload := json.RawMessage(`{"type":"offer","description":{"type":"offer","sdp":"v=0"},"extra":[1,2]}`)
	if err := reg.Route(p1, "P2", payload); err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	signals := c2.ofType(signaling.MessageTypeSignal)
	if len(signals) != 1 {
		t.Fatalf("Expected 1 signal, got %d", len(signals))
	}
	if signals[0].From != "P1" || signals[0].UserName != "alice" {
		t.Errorf("Signal not tagged with sender: %+v", signals[0])
	}
	if string(signals[0].Payload) != string(payload) {
		t.Errorf("Payload not forwarded verbatim: %s", signals[0].Payload)
	}
}

func TestRegistryRouteMissingTargetDropped(t *testing.T) {
	stats := NewStats()
	reg := NewRegistry(DefaultRegistryConfig(), stats)
	p1, c1 := newTestParticipant("P1")
	p2, _ := newTestParticipant("P2")
	p3, c3 := newTestParticipant("P3")
	reg.Join(p1, "r1", "")
	reg.Join(p2, "r1", "")
	reg.Join(p3, "other", "")

	if err := reg.Route(p1, "ghost", json.RawMessage(`{}`)); err != nil {
		t.Errorf("Missing target should be silent, got %v", err)
	}
	// 不跨房间转发
	if err := reg.Route(p1, "P3", json.RawMessage(`{}`)); err != nil {
		t.Errorf("Cross-room target should be silent, got %v", err)
	}
	reg.Leave(p2)
	if err := reg.Route(p1, "P2", json.RawMessage(`{}`)); err != nil {
		t.Errorf("Departed target should be silent, got %v", err)
	}

	if len(c3.ofType(signaling.MessageTypeSignal)) != 0 {
		t.Error("Signal leaked across rooms")
	}
	if len(c1.ofType(signaling.MessageTypeSignal)) != 0 {
		t.Error("Sender should not receive its own signal")
	}
	if got := stats.GetSnapshot().SignalsDropped; got != 3 {
		t.Errorf("Expected 3 drops, got %d", got)
	}
}

func TestRegistryResync(t *testing.T) {
	reg := newTestRegistry()
	p1, _ := newTestParticipant("P1")
	p2, c2 := newTestParticipant("P2")
	reg.Join(p1, "r1", "")
	reg.Join(p2, "r1", "")

	users, err := reg.Resync(p2)
	if err != nil {
		t.Fatalf("Resync failed: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("Expected full membership of 2, got %v", users)
	}
	syncs := c2.ofType(signaling.MessageTypeSync)
	if len(syncs) != 1 || syncs[0].MainID != "P1" || len(syncs[0].Users) != 2 {
		t.Errorf("Unexpected sync: %+v", syncs)
	}

	outsider, _ := newTestParticipant("P9")
	if _, err := reg.Resync(outsider); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("Expected ErrNotInRoom, got %v", err)
	}
}

func TestRegistryLowestIDRule(t *testing.T) {
	reg := NewRegistry(RegistryConfig{Rule: election.LowestID{}}, nil)
	pz, _ := newTestParticipant("zz")
	pm, cm := newTestParticipant("mm")
	pa, _ := newTestParticipant("aa")
	reg.Join(pz, "r1", "")
	reg.Join(pm, "r1", "")
	reg.Join(pa, "r1", "")

	reg.Leave(pz)

	changed := cm.ofType(signaling.MessageTypeMainChanged)
	if len(changed) != 1 || changed[0].ID != "aa" {
		t.Errorf("Expected aa under lowest-id, got %+v", changed)
	}
}

func BenchmarkRegistryRoute(b *testing.B) {
	reg := newTestRegistry()
	p1 := NewParticipantWithID("P1", &discardConn{})
	p2 := NewParticipantWithID("P2", &discardConn{})
	reg.Join(p1, "bench", "")
	reg.Join(p2, "bench", "")
	payload := json.RawMessage(`{"type":"candidate","candidate":{"candidate":"x"}}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.Route(p1, "P2", payload)
	}
}

type discardConn struct{}

func (discardConn) Send(*signaling.ServerMessage) error { return nil }
func (discardConn) Close() error                        { return nil }
