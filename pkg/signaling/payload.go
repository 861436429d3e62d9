/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// ErrMalformedMessage indicates a frame that cannot be parsed or has no known type
var ErrMalformedMessage = errors.New("malformed message")

// PayloadType is the kind of negotiation payload carried by a signal
type PayloadType string

const (
	PayloadOffer     PayloadType = "offer"
	PayloadAnswer    PayloadType = "answer"
	PayloadCandidate PayloadType = "candidate"
)

// Payload is the negotiation envelope relayed between two peers.
// The coordinator never looks inside it.
type Payload struct {
	Type        PayloadType                `json:"type"`
	Description *webrtc.SessionDescription `json:"description,omitempty"`
	Candidate   *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// OfferPayload wraps a local offer
func OfferPayload(desc webrtc.SessionDescription) Payload {
	return Payload{Type: PayloadOffer, Description: &desc}
}

// AnswerPayload wraps a local answer
func AnswerPayload(desc webrtc.SessionDescription) Payload {
	return Payload{Type: PayloadAnswer, Description: &desc}
}

// CandidatePayload wraps a local ICE candidate
func CandidatePayload(c webrtc.ICECandidateInit) Payload {
	return Payload{Type: PayloadCandidate, Candidate: &c}
}

// Marshal encodes the payload for a signal frame
func (p Payload) Marshal() (json.RawMessage, error) {
	return json.Marshal(p)
}

// DecodePayload parses a negotiation payload and checks that the field
// matching its type is present.
func DecodePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	switch p.Type {
	case PayloadOffer, PayloadAnswer:
		if p.Description == nil || p.Description.SDP == "" {
			return Payload{}, fmt.Errorf("%w: %s without description", ErrMalformedMessage, p.Type)
		}
	case PayloadCandidate:
		if p.Candidate == nil {
			return Payload{}, fmt.Errorf("%w: candidate without body", ErrMalformedMessage)
		}
	default:
		return Payload{}, fmt.Errorf("%w: payload type %q", ErrMalformedMessage, p.Type)
	}
	return p, nil
}

// DecodeClientMessage parses a client frame
func DecodeClientMessage(raw []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	switch msg.Type {
	case MessageTypeJoin, MessageTypeSignal, MessageTypeSync:
		return &msg, nil
	default:
		return nil, fmt.Errorf("%w: client type %q", ErrMalformedMessage, msg.Type)
	}
}

// DecodeServerMessage parses a coordinator frame
func DecodeServerMessage(raw []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	switch msg.Type {
	case MessageTypeJoined, MessageTypePeerJoined, MessageTypePeerLeft,
		MessageTypeSignal, MessageTypeMainChanged, MessageTypeSync:
		return &msg, nil
	default:
		return nil, fmt.Errorf("%w: server type %q", ErrMalformedMessage, msg.Type)
	}
}
