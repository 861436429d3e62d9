/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package coordinator

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestKeepaliveCreate(t *testing.T) {
	km := NewKeepaliveManager(DefaultKeepaliveConfig())
	defer km.Stop()

	km.Add("c1")
	if km.Status("c1") != ConnStatusOnline {
		t.Errorf("Expected online, got %s", km.Status("c1"))
	}
	if km.Status("ghost") != ConnStatusUnknown {
		t.Errorf("Expected unknown, got %s", km.Status("ghost"))
	}
	km.Remove("c1")
	if km.Count() != 0 {
		t.Errorf("Expected 0 conns, got %d", km.Count())
	}
}

func TestKeepaliveStartOnce(t *testing.T) {
	config := DefaultKeepaliveConfig()
	config.Interval = time.Hour
	km := NewKeepaliveManager(config)

	km.Start()
	km.Start()

	deadline := time.Now().Add(time.Second)
	for km.loops.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if n := km.loops.Load(); n != 1 {
		t.Errorf("Expected one ping loop, got %d", n)
	}

	km.Stop()
	deadline = time.Now().Add(time.Second)
	for km.loops.Load() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := km.loops.Load(); n != 0 {
		t.Errorf("Expected loop stopped, got %d", n)
	}
}

func TestKeepalivePingsLiveConnections(t *testing.T) {
	km := NewKeepaliveManager(DefaultKeepaliveConfig())
	km.Add("c1")
	km.Add("c2")

	var mu sync.Mutex
	pinged := map[string]int{}
	km.SetOnPing(func(id string) error {
		mu.Lock()
		defer mu.Unlock()
		pinged[id]++
		return nil
	})

	km.checkAll(time.Now())

	if pinged["c1"] != 1 || pinged["c2"] != 1 {
		t.Errorf("Expected one ping each, got %v", pinged)
	}
}

func TestKeepaliveEvictsOnTimeoutOnce(t *testing.T) {
	config := DefaultKeepaliveConfig()
	km := NewKeepaliveManager(config)
	km.Add("c1")

	offline := 0
	km.SetOnOffline(func(id string) { offline++ })

	later := time.Now().Add(config.Timeout + time.Second)
	km.checkAll(later)
	km.checkAll(later)

	if offline != 1 {
		t.Errorf("Expected one offline callback, got %d", offline)
	}
	if km.Status("c1") != ConnStatusOffline {
		t.Errorf("Expected offline, got %s", km.Status("c1"))
	}
}

func TestKeepalivePingFailureEvicts(t *testing.T) {
	km := NewKeepaliveManager(DefaultKeepaliveConfig())
	km.Add("c1")

	var evicted string
	km.SetOnPing(func(id string) error { return errors.New("broken pipe") })
	km.SetOnOffline(func(id string) { evicted = id })

	km.checkAll(time.Now())

	if evicted != "c1" {
		t.Errorf("Expected c1 evicted, got %q", evicted)
	}
}

func TestKeepalivePongKeepsAlive(t *testing.T) {
	config := DefaultKeepaliveConfig()
	km := NewKeepaliveManager(config)
	km.Add("c1")

	offline := 0
	km.SetOnOffline(func(id string) { offline++ })
	km.SetOnPing(func(id string) error { return nil })

	km.checkAll(time.Now())
	km.HandlePong("c1")
	km.checkAll(time.Now().Add(config.Timeout / 2))

	if offline != 0 {
		t.Errorf("Expected no eviction, got %d", offline)
	}
	if km.Status("c1") != ConnStatusOnline {
		t.Errorf("Expected online, got %s", km.Status("c1"))
	}
}

func TestKeepaliveSlowPong(t *testing.T) {
	config := DefaultKeepaliveConfig()
	config.SlowThreshold = time.Millisecond
	km := NewKeepaliveManager(config)
	km.Add("c1")

	var slowRTT time.Duration
	km.SetOnSlow(func(id string, rtt time.Duration) { slowRTT = rtt })
	km.SetOnPing(func(id string) error { return nil })

	km.checkAll(time.Now().Add(-50 * time.Millisecond))
	km.HandlePong("c1")

	if km.Status("c1") != ConnStatusSlow {
		t.Errorf("Expected slow, got %s", km.Status("c1"))
	}
	if slowRTT < 50*time.Millisecond {
		t.Errorf("Expected rtt >= 50ms, got %v", slowRTT)
	}
}
