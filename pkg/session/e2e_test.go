/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Room end-to-end
 * 协调服务器 (httptest) + 三个参与者, 媒体面走 pion/transport/vnet
 */
package session

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"

	"github.com/maiguangyang/star_relay/pkg/coordinator"
	"github.com/maiguangyang/star_relay/pkg/negotiation"
	"github.com/maiguangyang/star_relay/pkg/utils"
)

func newVnetAPI(t *testing.T, wan *vnet.Router, ip string) *webrtc.API {
	t.Helper()
	n, err := vnet.NewNet(&vnet.NetConfig{StaticIP: ip})
	if err != nil {
		t.Fatal(err)
	}
	if err := wan.AddNet(n); err != nil {
		t.Fatal(err)
	}
	se := webrtc.SettingEngine{}
	se.SetNet(n)
	se.LoggerFactory = utils.NewPionLoggerFactory()
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

type participant struct {
	session *Session
	client  *Client
	events  *recorder
}

func startParticipant(t *testing.T, ctx context.Context, url, name string, api *webrtc.API) *participant {
	t.Helper()
	client := NewClient(url)
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("%s: connect: %v", name, err)
	}

	config := DefaultConfig()
	config.UserName = name
	config.Negotiation = negotiation.DefaultConfig()
	config.API = api

	rec := &recorder{}
	s := New(client, config)
	s.SetOnEvent(rec.on)
	go s.Run(ctx, client.Incoming())
	t.Cleanup(func() {
		s.Close()
		client.Close()
	})

	if err := s.Join("e2e"); err != nil {
		t.Fatalf("%s: join: %v", name, err)
	}
	waitFor(t, name+" joined", func() bool { return s.SelfID() != "" })
	return &participant{session: s, client: client, events: rec}
}

func (p *participant) chatOpenWith(id string) bool {
	peer, err := p.session.Peer(id)
	return err == nil && peer.ChatOpen()
}

func (p *participant) gotChat(from, text string) bool {
	p.events.mu.Lock()
	defer p.events.mu.Unlock()
	for _, e := range p.events.events {
		if e.Type == EventChat && e.PeerID == from && e.Text == text {
			return true
		}
	}
	return false
}

func TestRoomChatThroughHub(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end")
	}

	config := coordinator.DefaultServerConfig()
	config.Keepalive.Interval = time.Hour
	srv := coordinator.NewServer(config)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "1.2.3.0/24",
		LoggerFactory: utils.NewPionLoggerFactory(),
	})
	if err != nil {
		t.Fatal(err)
	}
	apiA := newVnetAPI(t, wan, "1.2.3.4")
	apiB := newVnetAPI(t, wan, "1.2.3.5")
	apiC := newVnetAPI(t, wan, "1.2.3.6")
	if err := wan.Start(); err != nil {
		t.Fatal(err)
	}
	defer wan.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := startParticipant(t, ctx, url, "amy", apiA)
	if !a.session.IsHub() {
		t.Fatal("First participant must be hub")
	}
	b := startParticipant(t, ctx, url, "bob", apiB)
	c := startParticipant(t, ctx, url, "cat", apiC)
	aID, bID, cID := a.session.SelfID(), b.session.SelfID(), c.session.SelfID()

	if b.session.HubID() != aID || c.session.HubID() != aID {
		t.Fatalf("Members must know the hub: b=%s c=%s", b.session.HubID(), c.session.HubID())
	}

	waitFor(t, "star links", func() bool {
		return a.chatOpenWith(bID) && a.chatOpenWith(cID) &&
			b.chatOpenWith(aID) && c.chatOpenWith(aID)
	})

	// 成员之间没有直连
	if _, err := b.session.Peer(cID); err == nil {
		t.Error("Members must not connect to each other")
	}

	n, err := b.session.SendChat("hello")
	if err != nil || n != 1 {
		t.Fatalf("SendChat: n=%d err=%v", n, err)
	}
	waitFor(t, "chat relayed to cat", func() bool { return c.gotChat(bID, "hello") })
	if !a.gotChat(bID, "hello") {
		t.Error("Hub should see the chat too")
	}
	if b.gotChat(bID, "hello") {
		t.Error("Sender must not get its own chat back")
	}
	if stats := a.session.Hub().Stats(); stats.ChatForwarded < 1 {
		t.Errorf("Expected forwarded chat, got %+v", stats)
	}

	n, err = a.session.SendChat("from hub")
	if err != nil || n != 2 {
		t.Fatalf("Hub SendChat: n=%d err=%v", n, err)
	}
	waitFor(t, "hub chat", func() bool {
		return b.gotChat(aID, "from hub") && c.gotChat(aID, "from hub")
	})
}
