package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/dkeye/peerlink/internal/domain"
)

var (
	ErrMalformedMessage = errors.New("malformed signaling message")
	ErrUnknownMessage   = errors.New("unknown signaling message type")
)

type descriptionPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidatePayload struct {
	Type          string `json:"type"`
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
}

// Encode serializes a signaling message into its JSON wire form.
func Encode(msg domain.Message) ([]byte, error) {
	switch m := msg.(type) {
	case domain.SessionDescription:
		if m.Type != domain.SDPTypeOffer && m.Type != domain.SDPTypeAnswer {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
		}
		return json.Marshal(descriptionPayload{Type: string(m.Type), SDP: m.SDP})
	case domain.IceCandidate:
		return json.Marshal(candidatePayload{
			Type:          domain.MessageTypeCandidate,
			Candidate:     m.Candidate,
			SDPMid:        m.SDPMid,
			SDPMLineIndex: m.SDPMLineIndex,
		})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
}

// Decode parses one JSON wire message.
func Decode(data []byte) (domain.Message, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case string(domain.SDPTypeOffer), string(domain.SDPTypeAnswer):
		var p descriptionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return domain.SessionDescription{Type: domain.SDPType(p.Type), SDP: p.SDP}, nil
	case domain.MessageTypeCandidate:
		var p candidatePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if p.SDPMLineIndex < 0 || p.SDPMLineIndex > math.MaxUint16 {
			return nil, fmt.Errorf("%w: sdpMLineIndex %d out of range", ErrMalformedMessage, p.SDPMLineIndex)
		}
		return domain.IceCandidate{SDPMid: p.SDPMid, Candidate: p.Candidate, SDPMLineIndex: p.SDPMLineIndex}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}
