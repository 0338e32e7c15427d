package media

import (
	"context"

	"github.com/dkeye/peerlink/internal/core"
	"github.com/dkeye/peerlink/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RemoteSink consumes inbound tracks so the receive pipeline keeps flowing.
type RemoteSink struct {
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewRemoteSink(m *metrics.Metrics) *RemoteSink {
	return &RemoteSink{
		metrics: m,
		log:     log.With().Str("module", "remote").Logger(),
	}
}

// Drain reads RTP packets from track until it ends or ctx is done and returns the packet count.
func (s *RemoteSink) Drain(ctx context.Context, track core.RemoteTrack) int {
	logger := s.log.With().Str("kind", track.Kind().String()).Str("track_id", track.ID()).Logger()
	kind := track.Kind().String()

	packets := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info().Int("packets", packets).Msg("remote track drain stopped")
			return packets
		default:
		}
		pkt, err := track.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Int("packets", packets).Msg("remote track ended")
			return packets
		}
		packets++
		if packets == 1 {
			logger.Info().Uint32("ssrc", pkt.SSRC).Uint8("payload_type", pkt.PayloadType).Msg("first remote packet")
		}
		s.metrics.RemotePacket(kind)
	}
}
