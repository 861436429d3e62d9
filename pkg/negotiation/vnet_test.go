/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Negotiation over real PeerConnections
 * 使用 pion/transport/vnet 虚拟网络
 */
package negotiation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"

	"github.com/maiguangyang/star_relay/pkg/signaling"
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

// relaySignals 把 engine 输出的 payload 异步投递给对端，返回同一队列的入口
func relaySignals(t *testing.T, from, to *Engine, done <-chan struct{}) func(signaling.Payload) {
	ch := make(chan signaling.Payload, 64)
	send := func(p signaling.Payload) { ch <- p }
	from.SetOnSignal(send)
	go func() {
		for {
			select {
			case p := <-ch:
				if err := to.HandleSignal(p); err != nil && !errors.Is(err, ErrEngineClosed) {
					t.Errorf("HandleSignal(%s): %v", p.Type, err)
				}
			case <-done:
				return
			}
		}
	}()
	return send
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestNegotiation_VirtualNetwork(t *testing.T) {
	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "1.2.3.0/24",
		LoggerFactory: utils.NewPionLoggerFactory(),
	})
	if err != nil {
		t.Fatal(err)
	}
	api1 := newVnetAPI(t, wan, "1.2.3.4")
	api2 := newVnetAPI(t, wan, "1.2.3.5")
	if err := wan.Start(); err != nil {
		t.Fatal(err)
	}
	defer wan.Stop()

	pcA, err := api1.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatal(err)
	}
	pcB, err := api2.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatal(err)
	}

	// 需要至少一个 m-line 才会启动 ICE
	if _, err := pcA.CreateDataChannel("chat", nil); err != nil {
		t.Fatal(err)
	}

	a := NewEngine("hub", "peer", NewPeerTransport(pcA), DefaultConfig())
	b := NewEngine("peer", "hub", NewPeerTransport(pcB), DefaultConfig())
	defer a.Close()
	defer b.Close()

	done := make(chan struct{})
	defer close(done)
	toB := relaySignals(t, a, b, done)
	toA := relaySignals(t, b, a, done)

	pcA.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			toB(signaling.CandidatePayload(c.ToJSON()))
		}
	})
	pcB.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			toA(signaling.CandidatePayload(c.ToJSON()))
		}
	})

	connected := make(chan struct{})
	pcB.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		if s == webrtc.ICEConnectionStateConnected {
			select {
			case <-connected:
			default:
				close(connected)
			}
		}
	})

	if err := a.Initiate(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "initial exchange", func() bool {
		return a.State() == StateStable && b.State() == StateStable
	})

	select {
	case <-connected:
	case <-time.After(10 * time.Second):
		t.Fatal("ICE connection timed out")
	}

	// 加一条视频轨道后重协商
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "hub")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pcA.AddTrack(track); err != nil {
		t.Fatal(err)
	}
	if err := a.Renegotiate(); err != nil {
		t.Fatalf("Renegotiate failed: %v", err)
	}

	waitFor(t, "renegotiation", func() bool {
		if a.State() != StateStable || b.State() != StateStable {
			return false
		}
		desc := pcB.CurrentRemoteDescription()
		return desc != nil && strings.Contains(desc.SDP, "m=video")
	})

	if s := a.Stats(); s.OffersSent != 2 {
		t.Errorf("Expected 2 offers, got %d", s.OffersSent)
	}
}
