package media

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dkeye/peerlink/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TrackFactory wraps capture sources into transmittable tracks.
type TrackFactory struct {
	streamID string
	log      zerolog.Logger
}

func NewTrackFactory(streamID string) *TrackFactory {
	return &TrackFactory{
		streamID: streamID,
		log:      log.With().Str("module", "track").Logger(),
	}
}

// CreateTrack binds name to src and starts forwarding its samples.
// The track must be closed before the source.
func (f *TrackFactory) CreateTrack(src *Source, kind domain.MediaKind, name string) (*Track, error) {
	if src == nil || src.Closed() {
		return nil, domain.NewError(domain.CodeSourceInvalid, "source for track %q is closed", name)
	}
	if src.Kind() != kind {
		return nil, domain.NewError(domain.CodeSourceInvalid, "track %q wants %s but source is %s", name, kind, src.Kind())
	}
	if name == "" {
		return nil, domain.NewError(domain.CodeSourceInvalid, "track name is empty")
	}

	local, err := webrtc.NewTrackLocalStaticSample(src.Codec(), name, f.streamID)
	if err != nil {
		return nil, domain.WrapError(domain.CodeSourceInvalid, err, "create track "+name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Track{
		name:   name,
		kind:   kind,
		source: src,
		local:  local,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    f.log.With().Str("track", name).Str("kind", kind.String()).Logger(),
	}
	go t.pump(ctx)

	t.log.Info().Str("codec", src.Codec().MimeType).Msg("track created")
	return t, nil
}

// Track is a named local track fed from one capture source.
type Track struct {
	name   string
	kind   domain.MediaKind
	source *Source
	local  *webrtc.TrackLocalStaticSample
	log    zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

func (t *Track) Name() string { return t.name }

func (t *Track) Kind() domain.MediaKind { return t.kind }

func (t *Track) Source() *Source { return t.source }

func (t *Track) Local() webrtc.TrackLocal { return t.local }

func (t *Track) Closed() bool { return t.closed.Load() }

func (t *Track) pump(ctx context.Context) {
	defer close(t.done)
	for {
		if ctx.Err() != nil {
			return
		}
		sample, err := t.source.ReadSample()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.log.Warn().Err(err).Msg("source read failed, stopping track")
			}
			return
		}
		if ctx.Err() != nil || t.closed.Load() {
			return
		}
		if err := t.local.WriteSample(sample); err != nil {
			t.log.Debug().Err(err).Msg("write sample")
		}
	}
}

// Close stops forwarding. A sample still being read from the source is dropped.
// It does not close the source and does not wait for a pending read, which only
// ends once the source is closed; use Done for that.
func (t *Track) Close() error {
	t.once.Do(func() {
		t.closed.Store(true)
		t.cancel()
		t.log.Info().Msg("track closed")
	})
	return nil
}

// Done is closed once the track no longer reads from its source.
func (t *Track) Done() <-chan struct{} { return t.done }
