/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package negotiation

import (
	"github.com/pion/webrtc/v4"
)

// Transport is the pairwise connection the engine negotiates
type Transport interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	// Rollback discards a pending local or remote offer
	Rollback() error
	Close() error
}

// PeerTransport adapts a pion PeerConnection to Transport
type PeerTransport struct {
	pc *webrtc.PeerConnection
}

// NewPeerTransport wraps pc
func NewPeerTransport(pc *webrtc.PeerConnection) *PeerTransport {
	return &PeerTransport{pc: pc}
}

// PeerConnection returns the wrapped connection
func (t *PeerTransport) PeerConnection() *webrtc.PeerConnection {
	return t.pc
}

func (t *PeerTransport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

func (t *PeerTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

func (t *PeerTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(desc)
}

func (t *PeerTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(desc)
}

func (t *PeerTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// Rollback reverts have-local-offer or have-remote-offer to stable. pion
// parses the SDP of every description, rollback included, so the pending
// offer is passed back.
func (t *PeerTransport) Rollback() error {
	if pending := t.pc.PendingLocalDescription(); pending != nil && pending.Type == webrtc.SDPTypeOffer {
		return t.pc.SetLocalDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeRollback,
			SDP:  pending.SDP,
		})
	}
	if pending := t.pc.PendingRemoteDescription(); pending != nil && pending.Type == webrtc.SDPTypeOffer {
		return t.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeRollback,
			SDP:  pending.SDP,
		})
	}
	return nil
}

func (t *PeerTransport) Close() error {
	return t.pc.Close()
}
