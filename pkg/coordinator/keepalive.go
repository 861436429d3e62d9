/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Keepalive - 连接心跳与断线检测
 * 定期向每个连接发送 websocket ping，超时无 pong 则判定离线并踢出，
 * 踢出会关闭连接，进而触发离开房间与 hub 重选。
 */
package coordinator

import (
	"sync"
	"sync/atomic"
	"time"
)

// ConnStatus 连接状态
type ConnStatus int32

const (
	ConnStatusUnknown ConnStatus = iota
	ConnStatusOnline
	ConnStatusSlow // 响应缓慢
	ConnStatusOffline
)

func (s ConnStatus) String() string {
	switch s {
	case ConnStatusOnline:
		return "online"
	case ConnStatusSlow:
		return "slow"
	case ConnStatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// KeepaliveConfig 心跳配置
type KeepaliveConfig struct {
	// 心跳间隔
	Interval time.Duration
	// 超时时间（超过此时间无 pong 则认为离线）
	Timeout time.Duration
	// 慢响应阈值
	SlowThreshold time.Duration
}

// DefaultKeepaliveConfig 返回默认配置
func DefaultKeepaliveConfig() KeepaliveConfig {
	return KeepaliveConfig{
		Interval:      15 * time.Second,
		Timeout:       45 * time.Second,
		SlowThreshold: 3 * time.Second,
	}
}

// heartbeat 单个连接的心跳状态
type heartbeat struct {
	mu       sync.Mutex
	connID   string
	status   atomic.Int32
	lastPing time.Time
	lastPong time.Time
	rtt      time.Duration
}

func newHeartbeat(connID string) *heartbeat {
	h := &heartbeat{connID: connID, lastPong: time.Now()}
	h.status.Store(int32(ConnStatusOnline))
	return h
}

// KeepaliveManager 心跳管理器
type KeepaliveManager struct {
	mu     sync.RWMutex
	config KeepaliveConfig
	conns  map[string]*heartbeat

	onPing    func(connID string) error
	onOffline func(connID string)
	onSlow    func(connID string, rtt time.Duration)

	startOnce sync.Once
	loops     atomic.Int32
	stopCh    chan struct{}
	closed    bool
}

// NewKeepaliveManager 创建心跳管理器
func NewKeepaliveManager(config KeepaliveConfig) *KeepaliveManager {
	return &KeepaliveManager{
		config: config,
		conns:  make(map[string]*heartbeat),
		stopCh: make(chan struct{}),
	}
}

// SetOnPing 设置发送 ping 的回调，返回错误视为发送失败
func (m *KeepaliveManager) SetOnPing(fn func(connID string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPing = fn
}

// SetOnOffline 设置离线回调，每个连接最多触发一次
func (m *KeepaliveManager) SetOnOffline(fn func(connID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffline = fn
}

// SetOnSlow 设置慢响应回调
func (m *KeepaliveManager) SetOnSlow(fn func(connID string, rtt time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSlow = fn
}

// Add 添加需要监控的连接
func (m *KeepaliveManager) Add(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.conns[connID]; !exists {
		m.conns[connID] = newHeartbeat(connID)
	}
}

// Remove 移除连接
func (m *KeepaliveManager) Remove(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, connID)
}

// HandlePong 处理收到的 pong
func (m *KeepaliveManager) HandlePong(connID string) {
	m.mu.RLock()
	h, exists := m.conns[connID]
	onSlow := m.onSlow
	m.mu.RUnlock()
	if !exists {
		return
	}

	h.mu.Lock()
	now := time.Now()
	if !h.lastPing.IsZero() {
		h.rtt = now.Sub(h.lastPing)
	}
	h.lastPong = now
	rtt := h.rtt
	h.mu.Unlock()

	if rtt > m.config.SlowThreshold {
		h.status.Store(int32(ConnStatusSlow))
		if onSlow != nil {
			onSlow(connID, rtt)
		}
		return
	}
	h.status.Store(int32(ConnStatusOnline))
}

// Status 获取连接状态
func (m *KeepaliveManager) Status(connID string) ConnStatus {
	m.mu.RLock()
	h, exists := m.conns[connID]
	m.mu.RUnlock()
	if !exists {
		return ConnStatusUnknown
	}
	return ConnStatus(h.status.Load())
}

// RTT 获取连接往返时间
func (m *KeepaliveManager) RTT(connID string) time.Duration {
	m.mu.RLock()
	h, exists := m.conns[connID]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rtt
}

// Count 返回监控中的连接数
func (m *KeepaliveManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Start 启动心跳检测
func (m *KeepaliveManager) Start() {
	m.startOnce.Do(func() { go m.runLoop() })
}

func (m *KeepaliveManager) runLoop() {
	m.loops.Add(1)
	defer m.loops.Add(-1)
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkAll(time.Now())
		}
	}
}

// checkAll 检查所有连接：超时判离线，其余发送 ping
func (m *KeepaliveManager) checkAll(now time.Time) {
	m.mu.RLock()
	conns := make([]*heartbeat, 0, len(m.conns))
	for _, h := range m.conns {
		conns = append(conns, h)
	}
	onPing := m.onPing
	onOffline := m.onOffline
	m.mu.RUnlock()

	for _, h := range conns {
		h.mu.Lock()
		expired := now.Sub(h.lastPong) > m.config.Timeout
		h.mu.Unlock()

		if expired {
			old := ConnStatus(h.status.Swap(int32(ConnStatusOffline)))
			if old != ConnStatusOffline && onOffline != nil {
				onOffline(h.connID)
			}
			continue
		}

		if onPing == nil {
			continue
		}
		h.mu.Lock()
		h.lastPing = now
		h.mu.Unlock()
		if err := onPing(h.connID); err != nil {
			old := ConnStatus(h.status.Swap(int32(ConnStatusOffline)))
			if old != ConnStatusOffline && onOffline != nil {
				onOffline(h.connID)
			}
		}
	}
}

// Stop 停止心跳检测
func (m *KeepaliveManager) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
}
