/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Stats - 协调器运行统计
 * 连接数、入退房、信令转发与丢弃、hub 切换次数
 */
package coordinator

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Stats 协调器统计，全部字段原子更新
type Stats struct {
	startedAt time.Time

	connections      atomic.Int64 // 当前连接数
	totalConnections atomic.Uint64
	rooms            atomic.Int64 // 当前房间数
	joins            atomic.Uint64
	leaves           atomic.Uint64
	signalsRouted    atomic.Uint64
	signalBytes      atomic.Uint64
	signalsDropped   atomic.Uint64 // 目标不存在
	malformedDropped atomic.Uint64 // 无法解析的帧
	hubChanges       atomic.Uint64
	evictions        atomic.Uint64 // 心跳超时踢出
}

// NewStats 创建统计
func NewStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

func (s *Stats) Connected() {
	s.connections.Add(1)
	s.totalConnections.Add(1)
}

func (s *Stats) Disconnected()         { s.connections.Add(-1) }
func (s *Stats) RoomCreated()          { s.rooms.Add(1) }
func (s *Stats) RoomDestroyed()        { s.rooms.Add(-1) }
func (s *Stats) Joined()               { s.joins.Add(1) }
func (s *Stats) Left()                 { s.leaves.Add(1) }
func (s *Stats) SignalDropped()        { s.signalsDropped.Add(1) }
func (s *Stats) MalformedDropped()     { s.malformedDropped.Add(1) }
func (s *Stats) HubChanged()           { s.hubChanges.Add(1) }
func (s *Stats) Evicted()              { s.evictions.Add(1) }
func (s *Stats) SignalRouted(size int) { s.signalsRouted.Add(1); s.signalBytes.Add(uint64(size)) }

// StatsSnapshot 统计快照
type StatsSnapshot struct {
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Connections      int64  `json:"connections"`
	TotalConnections uint64 `json:"total_connections"`
	Rooms            int64  `json:"rooms"`
	Joins            uint64 `json:"joins"`
	Leaves           uint64 `json:"leaves"`
	SignalsRouted    uint64 `json:"signals_routed"`
	SignalBytes      uint64 `json:"signal_bytes"`
	SignalsDropped   uint64 `json:"signals_dropped"`
	MalformedDropped uint64 `json:"malformed_dropped"`
	HubChanges       uint64 `json:"hub_changes"`
	Evictions        uint64 `json:"evictions"`
}

// GetSnapshot 获取统计快照
func (s *Stats) GetSnapshot() StatsSnapshot {
	return StatsSnapshot{
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		Connections:      s.connections.Load(),
		TotalConnections: s.totalConnections.Load(),
		Rooms:            s.rooms.Load(),
		Joins:            s.joins.Load(),
		Leaves:           s.leaves.Load(),
		SignalsRouted:    s.signalsRouted.Load(),
		SignalBytes:      s.signalBytes.Load(),
		SignalsDropped:   s.signalsDropped.Load(),
		MalformedDropped: s.malformedDropped.Load(),
		HubChanges:       s.hubChanges.Load(),
		Evictions:        s.evictions.Load(),
	}
}

// ToJSON 转换为 JSON
func (s StatsSnapshot) ToJSON() string {
	data, _ := json.Marshal(s)
	return string(data)
}
