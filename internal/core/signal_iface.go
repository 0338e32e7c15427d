package core

import (
	"context"

	"github.com/dkeye/peerlink/internal/domain"
)

// Transport is a message-oriented byte channel to the remote peer.
// ReadMessage returns io.EOF once the peer ends the stream cleanly.
// Owned by the signaling channel; the channel must Close() it.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// SignalChannel delivers inbound signaling messages and accepts outbound ones.
type SignalChannel interface {
	OnDescription(func(domain.SessionDescription))
	OnCandidate(func(domain.IceCandidate))
	// Start blocks until the channel ends.
	Start(ctx context.Context) error
	SendOutbound(msg domain.Message) error
}
