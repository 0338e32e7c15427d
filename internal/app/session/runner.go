// Package session wires one peer link end to end: capture, negotiation and signaling.
package session

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/dkeye/peerlink/internal/adapters/signal"
	"github.com/dkeye/peerlink/internal/app/media"
	"github.com/dkeye/peerlink/internal/app/orch"
	"github.com/dkeye/peerlink/internal/config"
	"github.com/dkeye/peerlink/internal/core"
	"github.com/dkeye/peerlink/internal/domain"
	"github.com/dkeye/peerlink/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestedKinds returns the media kinds to send, video first.
func RequestedKinds(cfg config.MediaConfig) []domain.MediaKind {
	var kinds []domain.MediaKind
	if cfg.Video {
		kinds = append(kinds, domain.MediaKindVideo)
	}
	if cfg.Audio {
		kinds = append(kinds, domain.MediaKindAudio)
	}
	return kinds
}

type Deps struct {
	Driver    core.CaptureDriver
	Connector core.Connector
	Metrics   *metrics.Metrics
	SessionID domain.SessionID
	// Acceptor serves websocket listen mode.
	Acceptor *signal.Acceptor
	// OpenTransport overrides how the signaling transport is established.
	OpenTransport func(ctx context.Context) (core.Transport, error)
}

// Status is a snapshot of the running session.
type Status struct {
	SessionID    string                 `json:"session_id"`
	State        string                 `json:"state"`
	Transceivers []orch.TransceiverInfo `json:"transceivers"`
}

type Runner struct {
	cfg     *config.Config
	deps    Deps
	log     zerolog.Logger
	current atomic.Pointer[orch.Orchestrator]
}

func NewRunner(cfg *config.Config, deps Deps) *Runner {
	if deps.SessionID == "" {
		deps.SessionID = domain.NewSessionID()
	}
	if deps.OpenTransport == nil {
		deps.OpenTransport = func(ctx context.Context) (core.Transport, error) {
			return signal.Open(ctx, cfg.Signaling, deps.Acceptor)
		}
	}
	return &Runner{
		cfg:  cfg,
		deps: deps,
		log:  log.With().Str("module", "session").Str("sid", string(deps.SessionID)).Logger(),
	}
}

func (r *Runner) Status() Status {
	st := Status{SessionID: string(r.deps.SessionID), State: orch.StateUninitialized.String()}
	if o := r.current.Load(); o != nil {
		st.State = o.State().String()
		st.Transceivers = o.Transceivers()
	}
	return st
}

// Run establishes the session and blocks until it ends. Every resource is released before it returns.
func (r *Runner) Run(ctx context.Context) error {
	kinds := RequestedKinds(r.cfg.Media)
	mgr := media.NewManager(r.deps.Driver, media.ManagerConfig{
		CameraID:     r.cfg.Media.CameraID,
		MicrophoneID: r.cfg.Media.MicrophoneID,
	}, media.WithManagerMetrics(r.deps.Metrics))
	r.logDevices(mgr, kinds)

	o := orch.New(orch.Config{
		ICEServers: r.cfg.ICEServers,
		Initiate:   r.cfg.Negotiation.Initiate,
	}, r.deps.Connector, mgr,
		orch.WithMetrics(r.deps.Metrics),
		orch.WithRemoteSink(media.NewRemoteSink(r.deps.Metrics)),
		orch.WithSessionID(r.deps.SessionID),
	)
	r.current.Store(o)

	if err := o.Initialize(ctx); err != nil {
		return err
	}

	factory := media.NewTrackFactory(r.cfg.Media.StreamID)
	for _, kind := range kinds {
		if err := r.addMedia(ctx, o, mgr, factory, kind); err != nil {
			return o.Fail(err)
		}
	}

	transport, err := r.deps.OpenTransport(ctx)
	if err != nil {
		if ctx.Err() != nil {
			r.log.Info().Msg("stopped while waiting for the peer")
			return o.Close()
		}
		return o.Fail(err)
	}

	o.Attach(signal.NewChannel(transport, signal.WithMetrics(r.deps.Metrics)))
	err = o.Run(ctx)
	r.log.Info().Str("state", o.State().String()).Msg("Peer connection done")
	return err
}

// addMedia opens the source for kind and hands it to o with its track.
// On failure everything opened here is released again.
func (r *Runner) addMedia(ctx context.Context, o *orch.Orchestrator, mgr *media.Manager, factory *media.TrackFactory, kind domain.MediaKind) error {
	src, err := mgr.Open(ctx, kind)
	if err != nil {
		return err
	}
	track, err := factory.CreateTrack(src, kind, r.trackName(kind))
	if err != nil {
		_ = mgr.Close(src)
		return err
	}
	if err := o.AddTransceiver(kind, domain.DirectionSendReceive, src, track); err != nil {
		_ = track.Close()
		_ = mgr.Close(src)
		return err
	}
	return nil
}

func (r *Runner) trackName(kind domain.MediaKind) string {
	if kind == domain.MediaKindVideo {
		return r.cfg.Media.VideoTrack
	}
	return r.cfg.Media.AudioTrack
}

// logDevices always lists webcams, and microphones only when audio is requested.
func (r *Runner) logDevices(mgr *media.Manager, kinds []domain.MediaKind) {
	for d := range mgr.ListCaptureDevices() {
		r.log.Info().Msgf("Found webcam %s (id: %s)", d.Name, d.ID)
	}
	if !slices.Contains(kinds, domain.MediaKindAudio) {
		return
	}
	for d := range mgr.ListMicrophones() {
		r.log.Info().Msgf("Found microphone %s (id: %s)", d.Name, d.ID)
	}
}
