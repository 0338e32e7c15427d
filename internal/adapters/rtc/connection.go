package rtc

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/dkeye/peerlink/internal/core"
	"github.com/dkeye/peerlink/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Connector builds pion peer connections with the default codecs and interceptors.
type Connector struct {
	settings      webrtc.SettingEngine
	loggerFactory logging.LoggerFactory
	sid           domain.SessionID
}

type Option func(*Connector)

// WithSettingEngine replaces the default setting engine, e.g. to run on a virtual network.
func WithSettingEngine(se webrtc.SettingEngine) Option {
	return func(c *Connector) { c.settings = se }
}

func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(c *Connector) { c.loggerFactory = f }
}

func WithSessionID(sid domain.SessionID) Option {
	return func(c *Connector) { c.sid = sid }
}

func NewConnector(opts ...Option) *Connector {
	c := &Connector{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connector) Connect(ctx context.Context, iceServers []string) (core.PeerConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := c.settings
	if c.loggerFactory != nil {
		se.LoggerFactory = c.loggerFactory
	}
	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(se),
	)

	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return newConnection(pc, c.sid), nil
}

// Connection adapts *webrtc.PeerConnection to core.PeerConnection.
type Connection struct {
	pc  *webrtc.PeerConnection
	log zerolog.Logger

	closeOnce sync.Once
}

func newConnection(pc *webrtc.PeerConnection, sid domain.SessionID) *Connection {
	return &Connection{
		pc:  pc,
		log: log.With().Str("module", "webrtc").Str("sid", string(sid)).Logger(),
	}
}

func (c *Connection) AddTransceiver(kind domain.MediaKind, track webrtc.TrackLocal, dir domain.Direction) error {
	init := webrtc.RTPTransceiverInit{Direction: toPionDirection(dir)}
	if track == nil {
		_, err := c.pc.AddTransceiverFromKind(toPionKind(kind), init)
		return err
	}
	tr, err := c.pc.AddTransceiverFromTrack(track, init)
	if err != nil {
		return err
	}
	go drainRTCP(tr.Sender())
	c.log.Info().Str("kind", kind.String()).Str("track_id", track.ID()).Str("direction", dir.String()).Msg("transceiver added")
	return nil
}

// drainRTCP keeps reading sender RTCP so interceptors see receiver reports.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *Connection) SetRemoteDescription(desc domain.SessionDescription) error {
	sd := webrtc.SessionDescription{Type: webrtc.NewSDPType(string(desc.Type)), SDP: desc.SDP}
	if parsed, err := sd.Unmarshal(); err == nil {
		c.log.Info().Str("type", string(desc.Type)).Strs("media", mediaSections(parsed)).Msg("remote description")
	}
	return c.pc.SetRemoteDescription(sd)
}

func mediaSections(sd *sdp.SessionDescription) []string {
	out := make([]string, 0, len(sd.MediaDescriptions))
	for _, md := range sd.MediaDescriptions {
		out = append(out, md.MediaName.Media)
	}
	return out
}

func (c *Connection) CreateAnswer(_ context.Context) (domain.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return domain.SessionDescription{}, err
	}
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: answer.SDP}, nil
}

func (c *Connection) CreateOffer(_ context.Context) (domain.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return domain.SessionDescription{}, err
	}
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: offer.SDP}, nil
}

func (c *Connection) AddICECandidate(cand domain.IceCandidate) error {
	if cand.SDPMLineIndex < 0 || cand.SDPMLineIndex > math.MaxUint16 {
		return domain.NewError(domain.CodeNegotiation, "sdpMLineIndex %d out of range", cand.SDPMLineIndex)
	}
	idx := uint16(cand.SDPMLineIndex)
	ci := webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMLineIndex: &idx,
	}
	if cand.SDPMid != "" {
		ci.SDPMid = &cand.SDPMid
	}
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) OnICECandidate(fn func(domain.IceCandidate)) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			c.log.Debug().Msg("candidate gathering complete")
			return
		}
		ci := cand.ToJSON()
		out := domain.IceCandidate{Candidate: ci.Candidate}
		if ci.SDPMid != nil {
			out.SDPMid = *ci.SDPMid
		}
		if ci.SDPMLineIndex != nil {
			out.SDPMLineIndex = int(*ci.SDPMLineIndex)
		}
		fn(out)
	})
}

func (c *Connection) OnConnectionStateChange(fn func(domain.ConnectionState)) {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.log.Info().Str("ice_state", s.String()).Msg("ICE state")
	})
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		fn(fromPionState(s))
	})
}

func (c *Connection) OnTrack(fn func(core.RemoteTrack)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		fn(remoteTrack{track})
	})
}

// Close closes the peer connection. Later calls are no-ops and return nil.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.pc.Close()
		if err != nil {
			c.log.Error().Err(err).Msg("close error")
		} else {
			c.log.Info().Msg("closed")
		}
	})
	return err
}

type remoteTrack struct {
	t *webrtc.TrackRemote
}

func (r remoteTrack) ID() string { return r.t.ID() }

func (r remoteTrack) Kind() domain.MediaKind {
	if r.t.Kind() == webrtc.RTPCodecTypeVideo {
		return domain.MediaKindVideo
	}
	return domain.MediaKindAudio
}

func (r remoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := r.t.ReadRTP()
	return pkt, err
}

func toPionKind(k domain.MediaKind) webrtc.RTPCodecType {
	if k == domain.MediaKindVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

func toPionDirection(d domain.Direction) webrtc.RTPTransceiverDirection {
	switch d {
	case domain.DirectionSendOnly:
		return webrtc.RTPTransceiverDirectionSendonly
	case domain.DirectionReceiveOnly:
		return webrtc.RTPTransceiverDirectionRecvonly
	case domain.DirectionInactive:
		return webrtc.RTPTransceiverDirectionInactive
	default:
		return webrtc.RTPTransceiverDirectionSendrecv
	}
}

func fromPionState(s webrtc.PeerConnectionState) domain.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return domain.ConnectionStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.ConnectionStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.ConnectionStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.ConnectionStateFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.ConnectionStateClosed
	default:
		return domain.ConnectionStateNew
	}
}
