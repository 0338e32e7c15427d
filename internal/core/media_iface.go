package core

import (
	"context"

	"github.com/dkeye/peerlink/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Connector provisions the single peer connection of a session.
type Connector interface {
	Connect(ctx context.Context, iceServers []string) (PeerConnection, error)
}

// PeerConnection is the media-transport capability driven by the orchestrator.
// Callers must not invoke it concurrently.
type PeerConnection interface {
	// AddTransceiver adds a slot of the given kind. track may be nil for a receive-only slot.
	AddTransceiver(kind domain.MediaKind, track webrtc.TrackLocal, dir domain.Direction) error
	SetRemoteDescription(desc domain.SessionDescription) error
	// CreateAnswer creates an answer and applies it as the local description.
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	AddICECandidate(c domain.IceCandidate) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(domain.IceCandidate))
	OnConnectionStateChange(func(domain.ConnectionState))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(RemoteTrack))
	Close() error
}

// RemoteTrack is an inbound media track.
type RemoteTrack interface {
	ID() string
	Kind() domain.MediaKind
	ReadRTP() (*rtp.Packet, error)
}
