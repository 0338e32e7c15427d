package orch

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/peerlink/internal/app/media"
	"github.com/dkeye/peerlink/internal/core"
	"github.com/dkeye/peerlink/internal/domain"
	"github.com/dkeye/peerlink/internal/metrics"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	ICEServers []string
	// Initiate makes the session send the offer instead of waiting for one.
	Initiate bool
}

// SourceCloser releases capture sources handed over with AddTransceiver.
type SourceCloser interface {
	Close(src *media.Source) error
}

// Orchestrator drives one peer connection through negotiation and owns its teardown.
// All connection calls after Initialize happen on the Run loop.
type Orchestrator struct {
	cfg       Config
	connector core.Connector
	sources   SourceCloser
	remote    *media.RemoteSink
	metrics   *metrics.Metrics
	sid       domain.SessionID
	log       zerolog.Logger
	observer  func(from, to State)

	queue  *eventQueue
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	slots   []*slot
	pc      domain.Optional[core.PeerConnection]
	channel core.SignalChannel
	running bool
	runDone chan struct{}

	// Owned by the Run loop.
	remoteSet bool
	offered   bool
	pending   []domain.IceCandidate
}

type Option func(*Orchestrator)

// WithStateObserver registers fn to be called after every state change.
func WithStateObserver(fn func(from, to State)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRemoteSink consumes inbound tracks with sink.
func WithRemoteSink(sink *media.RemoteSink) Option {
	return func(o *Orchestrator) { o.remote = sink }
}

func WithSessionID(sid domain.SessionID) Option {
	return func(o *Orchestrator) { o.sid = sid }
}

func New(cfg Config, connector core.Connector, sources SourceCloser, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:       cfg,
		connector: connector,
		sources:   sources,
		queue:     newEventQueue(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sid == "" {
		o.sid = domain.NewSessionID()
	}
	o.log = log.With().Str("module", "orch").Str("sid", string(o.sid)).Logger()
	return o
}

func (o *Orchestrator) SessionID() domain.SessionID { return o.sid }

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Transceivers() []TransceiverInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]TransceiverInfo, 0, len(o.slots))
	for _, s := range o.slots {
		info := TransceiverInfo{
			Kind:      s.transceiver.Kind.String(),
			Direction: s.transceiver.Direction.String(),
		}
		if t, ok := s.transceiver.Track(); ok {
			info.Track = t.Name()
		}
		out = append(out, info)
	}
	return out
}

// Initialize validates the ICE configuration and creates the connection.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if !o.transition(StateUninitialized, StateInitializing) {
		return domain.NewError(domain.CodeInvalidState, "initialize in state %s", o.State())
	}
	if err := validateICEServers(o.cfg.ICEServers); err != nil {
		return o.Fail(err)
	}

	pc, err := o.connector.Connect(ctx, o.cfg.ICEServers)
	if err != nil {
		return o.Fail(domain.WrapError(domain.CodeInitialization, err, "create peer connection"))
	}

	pc.OnICECandidate(func(c domain.IceCandidate) {
		o.queue.push(event{kind: evLocalCandidate, cand: c})
	})
	pc.OnConnectionStateChange(func(s domain.ConnectionState) {
		o.queue.push(event{kind: evConnState, connState: s})
	})
	pc.OnTrack(func(t core.RemoteTrack) {
		if o.remote != nil {
			go o.remote.Drain(o.ctx, t)
		}
	})

	o.mu.Lock()
	o.pc = domain.Some(pc)
	o.mu.Unlock()

	o.setState(StateReady)
	return nil
}

func validateICEServers(urls []string) error {
	if len(urls) == 0 {
		return domain.NewError(domain.CodeConfig, "no ICE servers configured")
	}
	for _, u := range urls {
		if _, err := stun.ParseURI(u); err != nil {
			return domain.WrapError(domain.CodeConfig, err, "invalid ICE server url "+u)
		}
	}
	return nil
}

// AddTransceiver adds a media slot of kind and hands src and track over to the session,
// which releases them on teardown. Both may be nil for a slot without local media.
// On error the caller keeps ownership.
func (o *Orchestrator) AddTransceiver(kind domain.MediaKind, dir domain.Direction, src *media.Source, track *media.Track) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateReady || o.running {
		return domain.NewError(domain.CodeInvalidState, "add transceiver in state %s", o.state)
	}
	for _, s := range o.slots {
		if s.transceiver.Kind == kind {
			return domain.NewError(domain.CodeInvalidState, "%s transceiver already exists", kind)
		}
	}
	if track != nil && track.Kind() != kind {
		return domain.NewError(domain.CodeSourceInvalid, "%s track for %s transceiver", track.Kind(), kind)
	}

	pc, _ := o.pc.Get()
	var local webrtc.TrackLocal
	if track != nil {
		local = track.Local()
	}
	if err := pc.AddTransceiver(kind, local, dir); err != nil {
		return domain.WrapError(domain.CodeNegotiation, err, "add "+kind.String()+" transceiver")
	}

	s := &slot{transceiver: &Transceiver{Kind: kind, Direction: dir}}
	if track != nil {
		if err := s.transceiver.attach(track); err != nil {
			return err
		}
		s.track = domain.Some(track)
	}
	if src != nil {
		s.source = domain.Some(src)
	}
	o.slots = append(o.slots, s)
	return nil
}

// Attach subscribes the session to ch. Messages delivered before Run are kept in order
// and processed once Run starts.
func (o *Orchestrator) Attach(ch core.SignalChannel) {
	ch.OnDescription(func(d domain.SessionDescription) {
		o.queue.push(event{kind: evDescription, desc: d})
	})
	ch.OnCandidate(func(c domain.IceCandidate) {
		o.queue.push(event{kind: evCandidate, cand: c})
	})

	o.mu.Lock()
	o.channel = ch
	o.mu.Unlock()
}

// Run starts the attached channel and processes events until it ends. It always releases
// the session before returning. The error is nil when the session closed normally.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	switch {
	case o.channel == nil:
		o.mu.Unlock()
		return domain.NewError(domain.CodeInvalidState, "no signaling channel attached")
	case o.state != StateReady || o.running:
		st := o.state
		o.mu.Unlock()
		return domain.NewError(domain.CodeInvalidState, "run in state %s", st)
	}
	o.running = true
	o.runDone = make(chan struct{})
	ch := o.channel
	o.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		err := ch.Start(gctx)
		o.queue.push(event{kind: evChannelEnded, err: err})
		return nil
	})

	cause := o.loop(runCtx, ch)
	cancel()
	_ = g.Wait()

	err := o.shutdown(cause)
	close(o.runDone)
	return err
}

func (o *Orchestrator) loop(ctx context.Context, ch core.SignalChannel) error {
	if o.cfg.Initiate {
		if err := o.sendOffer(ctx, ch); err != nil {
			return err
		}
	}

	for {
		ev := o.queue.pop()
		switch ev.kind {
		case evDescription:
			if err := o.handleDescription(ctx, ch, ev.desc); err != nil {
				return err
			}
		case evCandidate:
			o.handleCandidate(ev.cand)
		case evLocalCandidate:
			if err := ch.SendOutbound(ev.cand); err != nil {
				o.log.Warn().Err(err).Msg("local candidate not sent")
			}
		case evConnState:
			if err := o.handleConnState(ev.connState); err != nil {
				return err
			}
		case evChannelEnded:
			return o.handleChannelEnd(ev.err)
		case evStop:
			return nil
		case evFail:
			return ev.err
		}
	}
}

func (o *Orchestrator) connection() core.PeerConnection {
	o.mu.Lock()
	defer o.mu.Unlock()
	pc, _ := o.pc.Get()
	return pc
}

func (o *Orchestrator) sendOffer(ctx context.Context, ch core.SignalChannel) error {
	o.setState(StateNegotiating)
	offer, err := o.connection().CreateOffer(ctx)
	if err != nil {
		return domain.WrapError(domain.CodeNegotiation, err, "create offer")
	}
	o.offered = true
	if err := ch.SendOutbound(offer); err != nil {
		return err
	}
	o.log.Info().Msg("offer sent")
	return nil
}

func (o *Orchestrator) handleDescription(ctx context.Context, ch core.SignalChannel, d domain.SessionDescription) error {
	pc := o.connection()

	switch d.Type {
	case domain.SDPTypeOffer:
		if o.remoteSet {
			o.log.Warn().Msg("ignoring offer, renegotiation is not supported")
			return nil
		}
		if o.offered {
			o.log.Warn().Msg("ignoring remote offer while our offer is pending")
			return nil
		}
		o.setState(StateNegotiating)
		if err := pc.SetRemoteDescription(d); err != nil {
			return domain.WrapError(domain.CodeNegotiation, err, "set remote offer")
		}
		o.remoteSet = true
		o.flushPending()

		answer, err := pc.CreateAnswer(ctx)
		if err != nil {
			return domain.WrapError(domain.CodeNegotiation, err, "create answer")
		}
		if err := ch.SendOutbound(answer); err != nil {
			return err
		}
		o.log.Info().Msg("answer sent")
	case domain.SDPTypeAnswer:
		if !o.offered || o.remoteSet {
			o.log.Warn().Msg("ignoring unexpected answer")
			return nil
		}
		if err := pc.SetRemoteDescription(d); err != nil {
			return domain.WrapError(domain.CodeNegotiation, err, "set remote answer")
		}
		o.remoteSet = true
		o.flushPending()
		o.log.Info().Msg("answer applied")
	default:
		o.log.Warn().Str("type", string(d.Type)).Msg("ignoring description")
	}
	return nil
}

// handleCandidate applies c, or holds it until a remote description is set.
func (o *Orchestrator) handleCandidate(c domain.IceCandidate) {
	if !o.remoteSet {
		o.pending = append(o.pending, c)
		o.log.Debug().Int("pending", len(o.pending)).Msg("candidate buffered")
		return
	}
	o.applyCandidate(c)
}

func (o *Orchestrator) flushPending() {
	pending := o.pending
	o.pending = nil
	for _, c := range pending {
		o.applyCandidate(c)
	}
}

func (o *Orchestrator) applyCandidate(c domain.IceCandidate) {
	if err := o.connection().AddICECandidate(c); err != nil {
		o.log.Warn().Err(err).Str("mid", c.SDPMid).Msg("add ice candidate")
	}
}

func (o *Orchestrator) handleConnState(s domain.ConnectionState) error {
	switch s {
	case domain.ConnectionStateConnected:
		o.setState(StateConnected)
	case domain.ConnectionStateFailed:
		return domain.NewError(domain.CodeNegotiation, "peer connection failed")
	default:
		o.log.Debug().Str("connection_state", s.String()).Msg("connection state")
	}
	return nil
}

func (o *Orchestrator) handleChannelEnd(err error) error {
	if err == nil {
		return nil
	}
	if o.State() == StateNegotiating {
		return err
	}
	o.log.Warn().Err(err).Msg("signaling ended with error")
	return nil
}

// Fail moves the session to Failed, releases it and returns err.
func (o *Orchestrator) Fail(err error) error {
	if o.stopRun(event{kind: evFail, err: err}) {
		return err
	}
	return o.shutdown(err)
}

// Close releases the session. Calling it again is a no-op.
func (o *Orchestrator) Close() error {
	if o.stopRun(event{kind: evStop}) {
		return nil
	}
	return o.shutdown(nil)
}

// stopRun hands ev to an active Run loop and waits for it to finish.
func (o *Orchestrator) stopRun(ev event) bool {
	o.mu.Lock()
	running, done := o.running, o.runDone
	o.mu.Unlock()
	if !running {
		return false
	}
	o.queue.push(ev)
	<-done
	return true
}

func (o *Orchestrator) shutdown(cause error) error {
	if cause != nil {
		o.setState(StateFailed)
		o.log.Error().Err(cause).Msg("session failed")
	} else {
		o.setState(StateClosed)
	}

	if err := o.release(); err != nil {
		o.log.Warn().Err(err).Msg("release")
		if cause == nil {
			return err
		}
	}
	return cause
}

// release closes tracks, then sources, then the connection. A track pump is
// awaited only when its source is closed.
func (o *Orchestrator) release() error {
	o.mu.Lock()
	var (
		tracks  []*media.Track
		sources []*media.Source
	)
	for _, s := range o.slots {
		if t, ok := s.track.Take(); ok {
			tracks = append(tracks, t)
		}
	}
	for _, s := range o.slots {
		if src, ok := s.source.Take(); ok {
			sources = append(sources, src)
		}
	}
	pc, hasPC := o.pc.Take()
	o.mu.Unlock()

	var errs []error
	for _, t := range tracks {
		errs = append(errs, t.Close())
	}
	for _, src := range sources {
		errs = append(errs, o.sources.Close(src))
	}
	for _, t := range tracks {
		if t.Source().Closed() {
			<-t.Done()
		}
	}
	if hasPC {
		errs = append(errs, pc.Close())
	}
	o.cancel()
	return errors.Join(errs...)
}

func (o *Orchestrator) transition(from, to State) bool {
	o.mu.Lock()
	if o.state != from {
		o.mu.Unlock()
		return false
	}
	o.state = to
	o.mu.Unlock()
	o.notify(from, to)
	return true
}

func (o *Orchestrator) setState(to State) {
	o.mu.Lock()
	from := o.state
	if from == to || from.terminal() {
		o.mu.Unlock()
		return
	}
	o.state = to
	o.mu.Unlock()
	o.notify(from, to)
}

func (o *Orchestrator) notify(from, to State) {
	o.metrics.Transition(to.String())
	o.log.Info().Str("from", from.String()).Str("to", to.String()).Msg("state changed")
	if o.observer != nil {
		o.observer(from, to)
	}
}
