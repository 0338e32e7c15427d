// Package mediatest provides an in-memory capture driver for tests.
package mediatest

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/dkeye/peerlink/internal/core"
	"github.com/dkeye/peerlink/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const frameInterval = 10 * time.Millisecond

// Driver is a core.CaptureDriver with scripted devices.
type Driver struct {
	mu          sync.Mutex
	cameras     []domain.DeviceInfo
	microphones []domain.DeviceInfo
	openErr     map[domain.MediaKind]error
	closeErr    map[domain.MediaKind]error
	stalled     map[domain.MediaKind]bool
	opened      []domain.MediaKind
	enumerated  int
	listed      []domain.MediaKind

	// OnClose runs when a device opened by this driver is closed.
	OnClose func(kind domain.MediaKind)
}

// NewDriver returns a driver with one camera and one microphone.
func NewDriver() *Driver {
	return &Driver{
		cameras:     []domain.DeviceInfo{{Name: "Fake Camera", ID: "cam0", Kind: domain.MediaKindVideo}},
		microphones: []domain.DeviceInfo{{Name: "Fake Microphone", ID: "mic0", Kind: domain.MediaKindAudio}},
		openErr:     make(map[domain.MediaKind]error),
		closeErr:    make(map[domain.MediaKind]error),
		stalled:     make(map[domain.MediaKind]bool),
	}
}

func (d *Driver) SetDevices(kind domain.MediaKind, devices ...domain.DeviceInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if kind == domain.MediaKindVideo {
		d.cameras = devices
	} else {
		d.microphones = devices
	}
}

// FailOpen makes every Open of kind return err.
func (d *Driver) FailOpen(kind domain.MediaKind, err error) {
	d.mu.Lock()
	d.openErr[kind] = err
	d.mu.Unlock()
}

// FailClose makes devices of kind return err from every Close.
func (d *Driver) FailClose(kind domain.MediaKind, err error) {
	d.mu.Lock()
	d.closeErr[kind] = err
	d.mu.Unlock()
}

// Stall makes devices of kind block in ReadSample until they are closed.
func (d *Driver) Stall(kind domain.MediaKind) {
	d.mu.Lock()
	d.stalled[kind] = true
	d.mu.Unlock()
}

// Opened returns the kinds passed to Open, in call order, including failed attempts.
func (d *Driver) Opened() []domain.MediaKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.MediaKind(nil), d.opened...)
}

func (d *Driver) Enumerations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enumerated
}

// Listed returns the kinds enumerated so far, in call order.
func (d *Driver) Listed() []domain.MediaKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.MediaKind(nil), d.listed...)
}

func (d *Driver) Devices(kind domain.MediaKind) ([]domain.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enumerated++
	d.listed = append(d.listed, kind)
	if kind == domain.MediaKindVideo {
		return append([]domain.DeviceInfo(nil), d.cameras...), nil
	}
	return append([]domain.DeviceInfo(nil), d.microphones...), nil
}

func (d *Driver) Open(ctx context.Context, kind domain.MediaKind, _ string) (core.Device, error) {
	d.mu.Lock()
	d.opened = append(d.opened, kind)
	err := d.openErr[kind]
	closeErr, stalled := d.closeErr[kind], d.stalled[kind]
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dev := NewDevice(kind, func() {
		if d.OnClose != nil {
			d.OnClose(kind)
		}
	})
	dev.CloseErr, dev.Stalled = closeErr, stalled
	return dev, nil
}

// Device produces a small sample every frame interval until closed.
type Device struct {
	// Stalled devices never produce a sample.
	Stalled bool
	// CloseErr is returned from every Close.
	CloseErr error

	kind    domain.MediaKind
	onClose func()
	ticker  *time.Ticker
	closed  chan struct{}
	once    sync.Once
}

func NewDevice(kind domain.MediaKind, onClose func()) *Device {
	return &Device{
		kind:    kind,
		onClose: onClose,
		ticker:  time.NewTicker(frameInterval),
		closed:  make(chan struct{}),
	}
}

func (d *Device) Codec() webrtc.RTPCodecCapability {
	if d.kind == domain.MediaKindVideo {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
}

func (d *Device) ReadSample() (media.Sample, error) {
	if d.Stalled {
		<-d.closed
		return media.Sample{}, io.EOF
	}
	select {
	case <-d.closed:
		return media.Sample{}, io.EOF
	case <-d.ticker.C:
		return media.Sample{Data: []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}, Duration: frameInterval}, nil
	}
}

func (d *Device) Close() error {
	d.once.Do(func() {
		d.ticker.Stop()
		close(d.closed)
		if d.onClose != nil {
			d.onClose()
		}
	})
	return d.CloseErr
}
