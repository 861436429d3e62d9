/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maiguangyang/star_relay/pkg/signaling"
	"github.com/maiguangyang/star_relay/pkg/utils"
)

// ServerConfig holds coordinator server configuration
type ServerConfig struct {
	Addr      string
	Registry  RegistryConfig
	Keepalive KeepaliveConfig

	// Time allowed to write one frame to a participant
	WriteWait time.Duration
	// Largest frame accepted from a participant; SDP fits comfortably
	MaxMessageSize int64
	// Outbound frames queued per participant before it is considered dead
	SendBuffer int
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           ":3001",
		Registry:       DefaultRegistryConfig(),
		Keepalive:      DefaultKeepaliveConfig(),
		WriteWait:      10 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

// Server is the room coordinator: a websocket endpoint in front of the Registry
type Server struct {
	mu     sync.RWMutex
	config ServerConfig

	registry  *Registry
	stats     *Stats
	keepalive *KeepaliveManager
	upgrader  websocket.Upgrader

	conns      map[string]*wsConn
	httpServer *http.Server
	closed     bool
}

// NewServer creates a coordinator server
func NewServer(config ServerConfig) *Server {
	stats := NewStats()
	s := &Server{
		config:    config,
		registry:  NewRegistry(config.Registry, stats),
		stats:     stats,
		keepalive: NewKeepaliveManager(config.Keepalive),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*wsConn),
	}

	s.keepalive.SetOnPing(s.ping)
	s.keepalive.SetOnOffline(func(connID string) {
		utils.Warn("[Server] %s missed heartbeats, evicting", connID)
		s.stats.Evicted()
		if c := s.conn(connID); c != nil {
			c.Close()
		}
	})
	s.keepalive.SetOnSlow(func(connID string, rtt time.Duration) {
		utils.Debug("[Server] %s is slow (rtt %v)", connID, rtt)
	})
	return s
}

// Registry exposes the underlying room registry
func (s *Server) Registry() *Registry {
	return s.registry
}

// Stats exposes the server statistics
func (s *Server) Stats() *Stats {
	return s.stats
}

// Handler returns the HTTP routes: /ws, /health and /status
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// ListenAndServe starts keepalive and serves until Shutdown
func (s *Server) ListenAndServe() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	s.keepalive.Start()
	utils.Info("[Server] coordinator listening on %s", s.config.Addr)

	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// StartKeepalive runs heartbeats without the built-in HTTP listener, for
// callers that mount Handler themselves
func (s *Server) StartKeepalive() {
	s.keepalive.Start()
}

// Shutdown stops accepting connections and closes every participant
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	httpServer := s.httpServer
	conns := make([]*wsConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.keepalive.Stop()
	for _, c := range conns {
		c.Close()
	}
	if httpServer != nil {
		return httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the body of /status
type StatusResponse struct {
	Stats StatsSnapshot        `json:"stats"`
	Rooms []signaling.RoomInfo `json:"rooms"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Stats: s.stats.GetSnapshot(),
		Rooms: s.registry.Rooms(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.Warn("[Server] upgrade failed: %v", err)
		return
	}

	c := newWSConn(ws, s.config.SendBuffer, s.config.WriteWait)
	p := NewParticipant(c)
	c.id = p.ID()

	s.mu.Lock()
	s.conns[p.ID()] = c
	s.mu.Unlock()
	s.keepalive.Add(p.ID())
	s.stats.Connected()
	utils.Debug("[Server] %s connected from %s", p.ID(), r.RemoteAddr)

	go c.writePump()
	s.readPump(p, c)
}

// readPump runs on the HTTP handler goroutine and is the only reader of the
// connection. When it returns the participant has left.
func (s *Server) readPump(p *Participant, c *wsConn) {
	defer func() {
		s.registry.Leave(p)
		s.keepalive.Remove(p.ID())
		s.mu.Lock()
		delete(s.conns, p.ID())
		s.mu.Unlock()
		s.stats.Disconnected()
		c.Close()
		utils.Debug("[Server] %s disconnected", p.ID())
	}()

	timeout := s.config.Keepalive.Timeout
	c.ws.SetReadLimit(s.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(timeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(timeout))
		s.keepalive.HandlePong(p.ID())
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Debug("[Server] %s read error: %v", p.ID(), err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(timeout))
		s.handleFrame(p, data)
	}
}

// handleFrame dispatches one client frame. Bad frames are dropped and the
// connection stays open.
func (s *Server) handleFrame(p *Participant, data []byte) {
	msg, err := signaling.DecodeClientMessage(data)
	if err != nil {
		s.stats.MalformedDropped()
		utils.Debug("[Server] %s: dropped frame: %v", p.ID(), err)
		return
	}

	switch msg.Type {
	case signaling.MessageTypeJoin:
		if _, _, err := s.registry.Join(p, msg.RoomID, msg.UserName); err != nil {
			utils.Warn("[Server] %s join %q rejected: %v", p.ID(), msg.RoomID, err)
		}
	case signaling.MessageTypeSignal:
		if err := s.registry.Route(p, msg.To, msg.Payload); err != nil {
			utils.Debug("[Server] %s signal dropped: %v", p.ID(), err)
		}
	case signaling.MessageTypeSync:
		if _, err := s.registry.Resync(p); err != nil {
			utils.Debug("[Server] %s sync ignored: %v", p.ID(), err)
		}
	}
}

func (s *Server) conn(id string) *wsConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conns[id]
}

func (s *Server) ping(connID string) error {
	c := s.conn(connID)
	if c == nil {
		return ErrConnClosed
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteWait))
}

// wsConn implements Conn over a gorilla websocket. Frames are queued and
// written by writePump, the connection's only data writer.
type wsConn struct {
	id        string
	ws        *websocket.Conn
	send      chan *signaling.ServerMessage
	writeWait time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, buffer int, writeWait time.Duration) *wsConn {
	return &wsConn{
		ws:        ws,
		send:      make(chan *signaling.ServerMessage, buffer),
		writeWait: writeWait,
		done:      make(chan struct{}),
	}
}

// Send queues msg without blocking. A full queue closes the connection.
func (c *wsConn) Send(msg *signaling.ServerMessage) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		utils.Warn("[Server] %s send buffer full, closing", c.id)
		c.Close()
		return ErrSendBufferFull
	}
}

// Close asks writePump to send a close frame and tear the socket down
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *wsConn) writePump() {
	defer c.ws.Close()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				utils.Debug("[Server] %s write failed: %v", c.id, err)
				c.Close()
				return
			}
		case <-c.done:
			// 先把已排队的消息写完，再发送关闭帧
		drain:
			for {
				select {
				case msg := <-c.send:
					c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
					if err := c.ws.WriteJSON(msg); err != nil {
						return
					}
				default:
					break drain
				}
			}
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeWait))
			return
		}
	}
}
