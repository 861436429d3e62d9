/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package signaling

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestDecodePayloadOffer(t *testing.T) {
	raw := []byte(`{"type":"offer","description":{"type":"offer","sdp":"v=0"}}`)
	p, err := DecodePayload(raw)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if p.Type != PayloadOffer {
		t.Errorf("Expected offer, got %s", p.Type)
	}
	if p.Description.Type != webrtc.SDPTypeOffer {
		t.Errorf("Expected SDP type offer, got %s", p.Description.Type)
	}
}

func TestDecodePayloadCandidate(t *testing.T) {
	raw := []byte(`{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 1 1.2.3.4 5000 typ host","sdpMid":"0"}}`)
	p, err := DecodePayload(raw)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if p.Candidate == nil || p.Candidate.SDPMid == nil || *p.Candidate.SDPMid != "0" {
		t.Errorf("Unexpected candidate: %+v", p.Candidate)
	}
}

func TestDecodePayloadMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{"type":"offer"}`,
		`{"type":"answer","description":{"type":"answer","sdp":""}}`,
		`{"type":"candidate"}`,
		`{"type":"bye"}`,
	}
	for _, c := range cases {
		if _, err := DecodePayload([]byte(c)); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("DecodePayload(%s): expected ErrMalformedMessage, got %v", c, err)
		}
	}
}

func TestPayloadRoundTripIsOpaqueJSON(t *testing.T) {
	raw, err := OfferPayload(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatal(err)
	}
	if generic["type"] != "offer" {
		t.Errorf("Expected type offer, got %v", generic["type"])
	}
	if _, ok := generic["description"]; !ok {
		t.Error("Expected description field")
	}
}

func TestDecodeClientMessage(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"join","roomId":"r1","userName":"amy"}`))
	if err != nil {
		t.Fatalf("DecodeClientMessage failed: %v", err)
	}
	if msg.RoomID != "r1" || msg.UserName != "amy" {
		t.Errorf("Unexpected message: %+v", msg)
	}

	if _, err := DecodeClientMessage([]byte(`{"type":"joined"}`)); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("Expected ErrMalformedMessage for server type, got %v", err)
	}
	if _, err := DecodeClientMessage([]byte(`{`)); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("Expected ErrMalformedMessage for bad json, got %v", err)
	}
}

func TestDecodeServerMessage(t *testing.T) {
	msg, err := DecodeServerMessage([]byte(`{"type":"joined","id":"p2","roomId":"r1","role":"peer","users":[{"id":"p1","userName":"a"}]}`))
	if err != nil {
		t.Fatalf("DecodeServerMessage failed: %v", err)
	}
	if msg.Role != RolePeer || len(msg.Users) != 1 || msg.Users[0].ID != "p1" {
		t.Errorf("Unexpected message: %+v", msg)
	}
}
