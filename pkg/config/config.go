/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Config - 配置加载
 * 优先级: 命令行参数 > 环境变量 > 默认值
 */
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/maiguangyang/star_relay/pkg/coordinator"
	"github.com/maiguangyang/star_relay/pkg/election"
	"github.com/maiguangyang/star_relay/pkg/negotiation"
	"github.com/maiguangyang/star_relay/pkg/utils"
)

// Default configuration values
const (
	DefaultListenAddr        = ":3001"
	DefaultCoordinatorURL    = "ws://localhost:3001/ws"
	DefaultSTUN              = "stun:stun.l.google.com:19302"
	DefaultHubRule           = "arrival"
	DefaultKeepaliveInterval = 15 * time.Second
	DefaultKeepaliveTimeout  = 45 * time.Second
	DefaultOfferTimeout      = 15 * time.Second
	DefaultOfferRetries      = 1
	DefaultLogLevel          = "info"
)

// ErrInvalidConfig indicates a value that failed validation
var ErrInvalidConfig = errors.New("invalid config")

// Config holds application configuration
type Config struct {
	// Coordinator side
	ListenAddr        string
	HubRule           string
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration

	// Client side
	CoordinatorURL string
	STUNServer     string
	TURNServer     string
	TURNUser       string
	TURNPass       string
	OfferTimeout   time.Duration
	OfferRetries   int
	ManualApprove  bool
	AudioFile      string
	VideoFile      string

	LogLevel string
}

// Options carries CLI flag overrides. Zero values mean "not set";
// OfferRetries and ManualApprove are pointers because zero/false are valid settings.
type Options struct {
	ListenAddr        string
	HubRule           string
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration
	CoordinatorURL    string
	STUNServer        string
	TURNServer        string
	TURNUser          string
	TURNPass          string
	OfferTimeout      time.Duration
	OfferRetries      *int
	ManualApprove     *bool
	AudioFile         string
	VideoFile         string
	LogLevel          string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options)
// 2. Environment variables
// 3. Defaults
func Load(opts Options) (*Config, error) {
	var errs []error

	c := &Config{
		ListenAddr:     pick(opts.ListenAddr, "LISTEN_ADDR", DefaultListenAddr),
		HubRule:        pick(opts.HubRule, "HUB_RULE", DefaultHubRule),
		CoordinatorURL: pick(opts.CoordinatorURL, "COORDINATOR_URL", DefaultCoordinatorURL),
		STUNServer:     pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer:     pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:       pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:       pick(opts.TURNPass, "TURN_PASSWORD", ""),
		AudioFile:      pick(opts.AudioFile, "AUDIO_FILE", ""),
		VideoFile:      pick(opts.VideoFile, "VIDEO_FILE", ""),
		LogLevel:       pick(opts.LogLevel, "LOG_LEVEL", DefaultLogLevel),
	}

	var err error
	if c.KeepaliveInterval, err = pickDuration(opts.KeepaliveInterval, "KEEPALIVE_INTERVAL", DefaultKeepaliveInterval); err != nil {
		errs = append(errs, err)
	}
	if c.KeepaliveTimeout, err = pickDuration(opts.KeepaliveTimeout, "KEEPALIVE_TIMEOUT", DefaultKeepaliveTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.OfferTimeout, err = pickDuration(opts.OfferTimeout, "OFFER_TIMEOUT", DefaultOfferTimeout); err != nil {
		errs = append(errs, err)
	}

	if opts.OfferRetries != nil {
		c.OfferRetries = *opts.OfferRetries
	} else if c.OfferRetries, err = envInt("OFFER_RETRIES", DefaultOfferRetries); err != nil {
		errs = append(errs, err)
	}

	if opts.ManualApprove != nil {
		c.ManualApprove = *opts.ManualApprove
	} else if c.ManualApprove, err = envBool("MANUAL_APPROVE", false); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var errs []error
	if _, err := election.RuleByName(c.HubRule); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	for name, d := range map[string]time.Duration{
		"keepalive interval": c.KeepaliveInterval,
		"keepalive timeout":  c.KeepaliveTimeout,
		"offer timeout":      c.OfferTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidConfig, name, d))
		}
	}
	if c.KeepaliveTimeout > 0 && c.KeepaliveTimeout < c.KeepaliveInterval {
		errs = append(errs, fmt.Errorf("%w: keepalive timeout %v shorter than interval %v",
			ErrInvalidConfig, c.KeepaliveTimeout, c.KeepaliveInterval))
	}
	if c.OfferRetries < 0 {
		errs = append(errs, fmt.Errorf("%w: offer retries must not be negative, got %d", ErrInvalidConfig, c.OfferRetries))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level
func (c *Config) Level() utils.LogLevel {
	return utils.ParseLevel(c.LogLevel)
}

// ICEServers builds the pion ICE server list
func (c *Config) ICEServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if c.STUNServer != "" {
		servers = append(servers, webrtc.ICEServer{URLs: []string{c.STUNServer}})
	}
	if c.TURNServer != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{c.TURNServer},
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

// ServerConfig returns the coordinator server configuration
func (c *Config) ServerConfig() coordinator.ServerConfig {
	sc := coordinator.DefaultServerConfig()
	sc.Addr = c.ListenAddr
	if rule, err := election.RuleByName(c.HubRule); err == nil {
		sc.Registry.Rule = rule
	}
	sc.Keepalive.Interval = c.KeepaliveInterval
	sc.Keepalive.Timeout = c.KeepaliveTimeout
	return sc
}

// NegotiationConfig returns the per-peer engine configuration
func (c *Config) NegotiationConfig() negotiation.Config {
	return negotiation.Config{
		OfferTimeout: c.OfferTimeout,
		OfferRetries: c.OfferRetries,
	}
}

// StatusURL derives the coordinator's /status endpoint from the websocket URL
func (c *Config) StatusURL() string {
	u := c.CoordinatorURL
	switch {
	case strings.HasPrefix(u, "wss://"):
		u = "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		u = "http://" + strings.TrimPrefix(u, "ws://")
	}
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, "/ws")
	return u + "/status"
}

func pick(flag, key, fallback string) string {
	if flag != "" {
		return flag
	}
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func pickDuration(flag time.Duration, key string, fallback time.Duration) (time.Duration, error) {
	if flag != 0 {
		return flag, nil
	}
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, raw, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, raw, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, raw, err)
	}
	return b, nil
}
