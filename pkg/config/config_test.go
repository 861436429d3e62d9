/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package config

import (
	"errors"
	"testing"
	"time"

	"github.com/maiguangyang/star_relay/pkg/election"
)

var allKeys = []string{
	"LISTEN_ADDR", "COORDINATOR_URL", "STUN_SERVER", "TURN_SERVER", "TURN_USERNAME",
	"TURN_PASSWORD", "HUB_RULE", "KEEPALIVE_INTERVAL", "KEEPALIVE_TIMEOUT",
	"OFFER_TIMEOUT", "OFFER_RETRIES", "MANUAL_APPROVE", "AUDIO_FILE", "VIDEO_FILE", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	c, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.ListenAddr != DefaultListenAddr || c.CoordinatorURL != DefaultCoordinatorURL {
		t.Errorf("Unexpected addresses: %s %s", c.ListenAddr, c.CoordinatorURL)
	}
	if c.HubRule != "arrival" || c.OfferRetries != 1 || c.ManualApprove {
		t.Errorf("Unexpected defaults: %+v", c)
	}
	if c.KeepaliveInterval != 15*time.Second || c.KeepaliveTimeout != 45*time.Second || c.OfferTimeout != 15*time.Second {
		t.Errorf("Unexpected durations: %+v", c)
	}
	if servers := c.ICEServers(); len(servers) != 1 || servers[0].URLs[0] != DefaultSTUN {
		t.Errorf("Expected default STUN only, got %+v", servers)
	}
}

func TestLoadPriority(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":4000")
	t.Setenv("HUB_RULE", "lowest-id")
	t.Setenv("OFFER_RETRIES", "3")
	t.Setenv("MANUAL_APPROVE", "true")
	t.Setenv("OFFER_TIMEOUT", "5s")

	// 环境变量覆盖默认值
	c, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if c.ListenAddr != ":4000" || c.HubRule != "lowest-id" || c.OfferRetries != 3 || !c.ManualApprove {
		t.Errorf("Env not applied: %+v", c)
	}
	if c.OfferTimeout != 5*time.Second {
		t.Errorf("Expected 5s, got %v", c.OfferTimeout)
	}

	// 命令行参数覆盖环境变量
	zero := 0
	off := false
	c, err = Load(Options{
		ListenAddr:    ":5000",
		HubRule:       "arrival",
		OfferRetries:  &zero,
		ManualApprove: &off,
		OfferTimeout:  time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.ListenAddr != ":5000" || c.HubRule != "arrival" || c.OfferRetries != 0 || c.ManualApprove {
		t.Errorf("Flags not applied: %+v", c)
	}
	if c.OfferTimeout != time.Second {
		t.Errorf("Expected 1s, got %v", c.OfferTimeout)
	}
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"HUB_RULE":           "random",
		"OFFER_TIMEOUT":      "soon",
		"KEEPALIVE_INTERVAL": "-1s",
		"OFFER_RETRIES":      "many",
		"MANUAL_APPROVE":     "perhaps",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(Options{}); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("%s=%s: expected ErrInvalidConfig, got %v", key, value, err)
			}
		})
	}
}

func TestICEServersWithTURN(t *testing.T) {
	c := &Config{STUNServer: "stun:a", TURNServer: "turn:b:3478", TURNUser: "u", TURNPass: "p"}
	servers := c.ICEServers()
	if len(servers) != 2 {
		t.Fatalf("Expected 2 servers, got %d", len(servers))
	}
	if servers[1].Username != "u" || servers[1].Credential != "p" {
		t.Errorf("TURN credentials missing: %+v", servers[1])
	}
}

func TestDerivedConfigs(t *testing.T) {
	clearEnv(t)
	t.Setenv("HUB_RULE", "lowest-id")
	t.Setenv("KEEPALIVE_INTERVAL", "2s")
	c, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}

	sc := c.ServerConfig()
	if _, ok := sc.Registry.Rule.(election.LowestID); !ok {
		t.Errorf("Expected LowestID rule, got %T", sc.Registry.Rule)
	}
	if sc.Keepalive.Interval != 2*time.Second {
		t.Errorf("Expected 2s interval, got %v", sc.Keepalive.Interval)
	}

	nc := c.NegotiationConfig()
	if nc.OfferTimeout != DefaultOfferTimeout || nc.OfferRetries != DefaultOfferRetries {
		t.Errorf("Unexpected negotiation config: %+v", nc)
	}
}

func TestStatusURL(t *testing.T) {
	cases := map[string]string{
		"ws://localhost:3001/ws":  "http://localhost:3001/status",
		"wss://relay.example/ws/": "https://relay.example/status",
		"ws://10.0.0.2:3001":      "http://10.0.0.2:3001/status",
	}
	for in, want := range cases {
		c := &Config{CoordinatorURL: in}
		if got := c.StatusURL(); got != want {
			t.Errorf("%s: expected %s, got %s", in, want, got)
		}
	}
}
