/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Registry - 房间注册表 / 角色协调 / 信令转发
 *
 * 每个房间一把锁：成员变更与广播在同一临界区内按顺序完成，
 * 先修改成员表，再从快照广播，保证每个房间恰好一个 hub。
 */
package coordinator

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/maiguangyang/star_relay/pkg/election"
	"github.com/maiguangyang/star_relay/pkg/signaling"
	"github.com/maiguangyang/star_relay/pkg/utils"
)

// RegistryConfig 注册表配置
type RegistryConfig struct {
	// Hub 选举规则，整个房间生命周期内不变
	Rule election.Rule
	// 未提供显示名时生成随机名
	NameGenerator func() string
}

// DefaultRegistryConfig 返回默认配置
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Rule:          election.ArrivalOrder{},
		NameGenerator: RandomName,
	}
}

// Registry owns all rooms of the coordinator
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	rule  election.Rule
	names func() string
	stats *Stats
}

// Room is a set of participants with exactly one hub while non-empty
type Room struct {
	mu        sync.Mutex
	id        string
	members   []*Participant // arrival order
	elector   *election.Elector
	createdAt time.Time
	closed    bool
}

// NewRegistry creates an empty registry
func NewRegistry(config RegistryConfig, stats *Stats) *Registry {
	if config.Rule == nil {
		config.Rule = election.ArrivalOrder{}
	}
	if config.NameGenerator == nil {
		config.NameGenerator = RandomName
	}
	if stats == nil {
		stats = NewStats()
	}
	return &Registry{
		rooms: make(map[string]*Room),
		rule:  config.Rule,
		names: config.NameGenerator,
		stats: stats,
	}
}

func (r *Registry) getOrCreateRoom(roomID string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		room = &Room{
			id:        roomID,
			elector:   election.NewElector(roomID, election.ElectorConfig{Rule: r.rule}),
			createdAt: time.Now(),
		}
		r.rooms[roomID] = room
		r.stats.RoomCreated()
		utils.Info("[Registry] room %s created (rule=%s)", roomID, r.rule.Name())
	}
	return room
}

func (r *Registry) getRoom(roomID string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

// removeRoom is called with room.mu held
func (r *Registry) removeRoom(room *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room.id] == room {
		delete(r.rooms, room.id)
		r.stats.RoomDestroyed()
		utils.Info("[Registry] room %s destroyed", room.id)
	}
}

// Join registers p under roomID, assigns its role and sends the joined
// reply plus a peer-joined notice to the other members. The returned users
// are the members already present before p.
func (r *Registry) Join(p *Participant, roomID, userName string) (signaling.Role, []signaling.User, error) {
	if roomID == "" {
		return "", nil, ErrRoomIDRequired
	}
	if current := p.RoomID(); current != "" {
		if current == roomID {
			return "", nil, ErrAlreadyJoined
		}
		r.Leave(p)
	}
	if userName == "" {
		userName = r.names()
	}

	for {
		room := r.getOrCreateRoom(roomID)
		room.mu.Lock()
		if room.closed {
			// 刚被最后一个成员清空，重新创建
			room.mu.Unlock()
			continue
		}

		existing := room.users()
		room.members = append(room.members, p)
		p.setRoom(roomID, userName)

		role := signaling.RolePeer
		if result, becameHub := room.elector.AddCandidate(p.ID()); becameHub {
			role = signaling.RoleMain
			utils.Info("[Registry] %s is hub of room %s (epoch %d)", p.ID(), roomID, result.Epoch)
		}

		p.send(&signaling.ServerMessage{
			Type:     signaling.MessageTypeJoined,
			ID:       p.ID(),
			UserName: userName,
			RoomID:   roomID,
			Role:     role,
			Users:    existing,
			MainID:   room.elector.CurrentHub(),
		})
		room.broadcast(p.ID(), &signaling.ServerMessage{
			Type:     signaling.MessageTypePeerJoined,
			ID:       p.ID(),
			UserName: userName,
		})
		room.mu.Unlock()

		r.stats.Joined()
		utils.Info("[Registry] %s (%s) joined room %s as %s, %d already present", p.ID(), userName, roomID, role, len(existing))
		return role, existing, nil
	}
}

// Leave removes p from its room. The last member out destroys the room;
// otherwise the others get peer-left and, if p was hub, main-changed.
func (r *Registry) Leave(p *Participant) {
	roomID := p.RoomID()
	if roomID == "" {
		return
	}
	room := r.getRoom(roomID)
	if room == nil {
		p.clearRoom()
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if !room.remove(p.ID()) {
		return
	}
	p.clearRoom()
	r.stats.Left()

	result, reelected := room.elector.RemoveCandidate(p.ID())
	if len(room.members) == 0 {
		room.closed = true
		r.removeRoom(room)
		return
	}

	room.broadcast("", &signaling.ServerMessage{
		Type: signaling.MessageTypePeerLeft,
		ID:   p.ID(),
	})
	utils.Info("[Registry] %s left room %s", p.ID(), roomID)

	if reelected {
		room.broadcast("", &signaling.ServerMessage{
			Type: signaling.MessageTypeMainChanged,
			ID:   result.HubID,
		})
		r.stats.HubChanged()
		utils.Info("[Registry] room %s hub %s -> %s (epoch %d)", roomID, p.ID(), result.HubID, result.Epoch)
	}
}

// Resync sends p the full current membership of its room, itself included
func (r *Registry) Resync(p *Participant) ([]signaling.User, error) {
	roomID := p.RoomID()
	if roomID == "" {
		return nil, ErrNotInRoom
	}
	room := r.getRoom(roomID)
	if room == nil {
		return nil, ErrNotInRoom
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	users := room.users()
	p.send(&signaling.ServerMessage{
		Type:   signaling.MessageTypeSync,
		RoomID: roomID,
		Users:  users,
		MainID: room.elector.CurrentHub(),
	})
	return users, nil
}

// Route forwards payload from p to the member to inside p's room. The
// payload is not inspected. A missing target is dropped without error.
func (r *Registry) Route(p *Participant, to string, payload json.RawMessage) error {
	roomID := p.RoomID()
	if roomID == "" {
		r.stats.SignalDropped()
		return ErrNotInRoom
	}
	room := r.getRoom(roomID)
	if room == nil {
		r.stats.SignalDropped()
		return ErrNotInRoom
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	target := room.find(to)
	if target == nil || target == p {
		r.stats.SignalDropped()
		utils.Debug("[Relay] %s -> %s dropped: target not in room %s", p.ID(), to, roomID)
		return nil
	}

	target.send(&signaling.ServerMessage{
		Type:     signaling.MessageTypeSignal,
		From:     p.ID(),
		UserName: p.UserName(),
		Payload:  payload,
	})
	r.stats.SignalRouted(len(payload))
	return nil
}

// Rooms returns a snapshot of every room, sorted by id
func (r *Registry) Rooms() []signaling.RoomInfo {
	r.mu.RLock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	infos := make([]signaling.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		if !room.closed {
			users := room.users()
			infos = append(infos, signaling.RoomInfo{
				RoomID:    room.id,
				MainID:    room.elector.CurrentHub(),
				PeerCount: len(users),
				Users:     users,
			})
		}
		room.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].RoomID < infos[j].RoomID
	})
	return infos
}

// HubOf returns the hub of roomID, or "" if the room does not exist
func (r *Registry) HubOf(roomID string) string {
	room := r.getRoom(roomID)
	if room == nil {
		return ""
	}
	return room.elector.CurrentHub()
}

// RoomCount returns the number of live rooms
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// The helpers below require room.mu.

func (room *Room) users() []signaling.User {
	users := make([]signaling.User, 0, len(room.members))
	for _, m := range room.members {
		users = append(users, m.user())
	}
	return users
}

func (room *Room) find(id string) *Participant {
	for _, m := range room.members {
		if m.ID() == id {
			return m
		}
	}
	return nil
}

func (room *Room) remove(id string) bool {
	for i, m := range room.members {
		if m.ID() == id {
			room.members = append(room.members[:i], room.members[i+1:]...)
			return true
		}
	}
	return false
}

// broadcast sends msg to every member except the one with id except
func (room *Room) broadcast(except string, msg *signaling.ServerMessage) {
	snapshot := make([]*Participant, len(room.members))
	copy(snapshot, room.members)
	for _, m := range snapshot {
		if m.ID() == except {
			continue
		}
		m.send(msg)
	}
}
