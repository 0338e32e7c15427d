package domain

// SDPType is the kind of a session description.
type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// Message is a signaling message: a SessionDescription or an IceCandidate.
type Message interface {
	MessageType() string
}

// SessionDescription is an offer or answer body.
type SessionDescription struct {
	Type SDPType
	SDP  string
}

// IceCandidate is a trickled connectivity candidate.
type IceCandidate struct {
	SDPMid        string
	Candidate     string
	SDPMLineIndex int
}

const MessageTypeCandidate = "candidate"

func (d SessionDescription) MessageType() string { return string(d.Type) }

func (c IceCandidate) MessageType() string { return MessageTypeCandidate }
