package media

import (
	"context"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/dkeye/peerlink/internal/core"
	"github.com/dkeye/peerlink/internal/domain"
	"github.com/dkeye/peerlink/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ManagerConfig struct {
	CameraID     string
	MicrophoneID string
}

// Manager opens and closes local capture devices. At most one source per kind is open at a time.
type Manager struct {
	driver  core.CaptureDriver
	cfg     ManagerConfig
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	open map[domain.MediaKind]*Source
}

type ManagerOption func(*Manager)

func WithManagerMetrics(m *metrics.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

func NewManager(driver core.CaptureDriver, cfg ManagerConfig, opts ...ManagerOption) *Manager {
	m := &Manager{
		driver: driver,
		cfg:    cfg,
		log:    log.With().Str("module", "media").Logger(),
		open:   make(map[domain.MediaKind]*Source),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ListCaptureDevices enumerates cameras. Every iteration queries the driver again.
func (m *Manager) ListCaptureDevices() iter.Seq[domain.DeviceInfo] {
	return m.list(domain.MediaKindVideo)
}

// ListMicrophones enumerates audio capture devices the same way.
func (m *Manager) ListMicrophones() iter.Seq[domain.DeviceInfo] {
	return m.list(domain.MediaKindAudio)
}

func (m *Manager) list(kind domain.MediaKind) iter.Seq[domain.DeviceInfo] {
	return func(yield func(domain.DeviceInfo) bool) {
		devices, err := m.driver.Devices(kind)
		if err != nil {
			m.log.Warn().Err(err).Str("kind", kind.String()).Msg("device enumeration failed")
			return
		}
		for _, d := range devices {
			if !yield(d) {
				return
			}
		}
	}
}

func (m *Manager) OpenCamera(ctx context.Context) (*Source, error) {
	return m.openKind(ctx, domain.MediaKindVideo, m.cfg.CameraID)
}

func (m *Manager) OpenMicrophone(ctx context.Context) (*Source, error) {
	return m.openKind(ctx, domain.MediaKindAudio, m.cfg.MicrophoneID)
}

// Open opens the configured device of the given kind.
func (m *Manager) Open(ctx context.Context, kind domain.MediaKind) (*Source, error) {
	if kind == domain.MediaKindVideo {
		return m.OpenCamera(ctx)
	}
	return m.OpenMicrophone(ctx)
}

func (m *Manager) openKind(ctx context.Context, kind domain.MediaKind, preferred string) (*Source, error) {
	m.mu.Lock()
	if _, busy := m.open[kind]; busy {
		m.mu.Unlock()
		return nil, domain.NewError(domain.CodeDeviceUnavail, "%s source already open", kind)
	}
	// Reserve the slot while the device opens.
	m.open[kind] = nil
	m.mu.Unlock()

	src, err := m.openDevice(ctx, kind, preferred)

	m.mu.Lock()
	if err != nil {
		delete(m.open, kind)
	} else {
		m.open[kind] = src
	}
	m.mu.Unlock()
	return src, err
}

func (m *Manager) openDevice(ctx context.Context, kind domain.MediaKind, preferred string) (*Source, error) {
	info, err := m.pick(kind, preferred)
	if err != nil {
		return nil, err
	}

	dev, err := m.driver.Open(ctx, kind, info.ID)
	if err != nil {
		return nil, domain.WrapError(domain.CodeDeviceUnavail, err, "open "+kind.String()+" "+info.Name)
	}

	m.metrics.SourceOpened()
	m.log.Info().Str("kind", kind.String()).Str("device", info.Name).Str("id", info.ID).Msg("capture source opened")
	return &Source{info: info, kind: kind, device: dev, release: m.released}, nil
}

func (m *Manager) pick(kind domain.MediaKind, preferred string) (domain.DeviceInfo, error) {
	var first *domain.DeviceInfo
	for d := range m.list(kind) {
		if preferred != "" && d.ID == preferred {
			return d, nil
		}
		if first == nil {
			first = &d
		}
	}
	if preferred != "" {
		return domain.DeviceInfo{}, domain.NewError(domain.CodeDeviceUnavail, "%s device %q not found", kind, preferred)
	}
	if first == nil {
		return domain.DeviceInfo{}, domain.NewError(domain.CodeDeviceUnavail, "no %s device found", kind)
	}
	return *first, nil
}

// Close releases the source's device. Closing a closed source is a no-op.
func (m *Manager) Close(src *Source) error {
	if src == nil {
		return nil
	}
	return src.Close()
}

func (m *Manager) released(src *Source) {
	m.mu.Lock()
	if m.open[src.kind] == src {
		delete(m.open, src.kind)
	}
	m.mu.Unlock()
	m.metrics.SourceClosed()
	m.log.Info().Str("kind", src.kind.String()).Str("device", src.info.Name).Msg("capture source closed")
}

// Source is an open capture device.
type Source struct {
	info    domain.DeviceInfo
	kind    domain.MediaKind
	device  core.Device
	release func(*Source)

	once   sync.Once
	closed atomic.Bool
}

func (s *Source) Kind() domain.MediaKind { return s.kind }

func (s *Source) Info() domain.DeviceInfo { return s.info }

func (s *Source) Codec() webrtc.RTPCodecCapability { return s.device.Codec() }

func (s *Source) Closed() bool { return s.closed.Load() }

// ReadSample returns the next encoded sample, or io.EOF once the source is closed.
func (s *Source) ReadSample() (media.Sample, error) {
	if s.closed.Load() {
		return media.Sample{}, io.EOF
	}
	sample, err := s.device.ReadSample()
	if err != nil && s.closed.Load() {
		return media.Sample{}, io.EOF
	}
	return sample, err
}

// Close releases the device. Only the call that releases it reports the device error.
func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		err = s.device.Close()
		if s.release != nil {
			s.release(s)
		}
	})
	return err
}
