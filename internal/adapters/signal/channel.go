package signal

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dkeye/peerlink/internal/core"
	"github.com/dkeye/peerlink/internal/domain"
	"github.com/dkeye/peerlink/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Channel runs the signaling read loop over a Transport and dispatches decoded
// messages to the registered callbacks in arrival order.
type Channel struct {
	transport core.Transport
	log       zerolog.Logger
	metrics   *metrics.Metrics

	mu            sync.RWMutex
	onDescription func(domain.SessionDescription)
	onCandidate   func(domain.IceCandidate)

	writeMu sync.Mutex
	started atomic.Bool
	ended   atomic.Bool
}

type Option func(*Channel)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Channel) { c.log = l }
}

func NewChannel(t core.Transport, opts ...Option) *Channel {
	c := &Channel{
		transport: t,
		log:       log.With().Str("module", "signal").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) OnDescription(fn func(domain.SessionDescription)) {
	c.mu.Lock()
	c.onDescription = fn
	c.mu.Unlock()
}

func (c *Channel) OnCandidate(fn func(domain.IceCandidate)) {
	c.mu.Lock()
	c.onCandidate = fn
	c.mu.Unlock()
}

// Start reads until the peer ends the stream, ctx is done or the transport fails.
// Only a transport failure is reported as an error.
func (c *Channel) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return domain.NewError(domain.CodeInvalidState, "signaling channel already started")
	}
	defer c.shutdown()

	stop := context.AfterFunc(ctx, func() { _ = c.transport.Close() })
	defer stop()

	c.log.Info().Msg("signaling started")
	for {
		data, err := c.transport.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				c.log.Info().Msg("signaling ended")
				return nil
			}
			c.log.Error().Err(err).Msg("signaling read error")
			return domain.WrapError(domain.CodeChannelClosed, err, "signaling transport failed")
		}
		c.dispatch(data)
	}
}

func (c *Channel) dispatch(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		c.log.Warn().Err(err).Int("len", len(data)).Msg("dropping undecodable message")
		return
	}
	c.metrics.Message("in", msg.MessageType())

	c.mu.RLock()
	onDescription, onCandidate := c.onDescription, c.onCandidate
	c.mu.RUnlock()

	switch m := msg.(type) {
	case domain.SessionDescription:
		c.log.Debug().Str("type", string(m.Type)).Msg("description received")
		if onDescription == nil {
			c.log.Warn().Str("type", string(m.Type)).Msg("no description subscriber")
			return
		}
		onDescription(m)
	case domain.IceCandidate:
		c.log.Debug().Str("mid", m.SDPMid).Msg("candidate received")
		if onCandidate == nil {
			c.log.Warn().Msg("no candidate subscriber")
			return
		}
		onCandidate(m)
	}
}

// SendOutbound writes msg to the peer. It fails with ErrChannelClosed once the channel has ended.
func (c *Channel) SendOutbound(msg domain.Message) error {
	if c.ended.Load() {
		return domain.ErrChannelClosed
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ended.Load() {
		return domain.ErrChannelClosed
	}
	if err := c.transport.WriteMessage(data); err != nil {
		return domain.WrapError(domain.CodeChannelClosed, err, "signaling write failed")
	}
	c.metrics.Message("out", msg.MessageType())
	return nil
}

func (c *Channel) shutdown() {
	c.ended.Store(true)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.transport.Close(); err != nil {
		c.log.Debug().Err(err).Msg("transport close")
	}
}
