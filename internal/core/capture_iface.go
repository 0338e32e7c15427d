package core

import (
	"context"

	"github.com/dkeye/peerlink/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// CaptureDriver enumerates and opens local capture devices.
type CaptureDriver interface {
	Devices(kind domain.MediaKind) ([]domain.DeviceInfo, error)
	// Open blocks until the device produces media or ctx is done.
	Open(ctx context.Context, kind domain.MediaKind, deviceID string) (Device, error)
}

// Device is an open capture device producing encoded samples.
type Device interface {
	Codec() webrtc.RTPCodecCapability
	ReadSample() (media.Sample, error)
	Close() error
}
