// Package capture opens host cameras and microphones through pion/mediadevices.
// It needs cgo with libvpx and libopus available.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/peerlink/internal/core"
	"github.com/dkeye/peerlink/internal/domain"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	VideoBitRate int
	AudioBitRate int
}

// Driver is a core.CaptureDriver encoding video as VP8 and audio as Opus.
type Driver struct {
	cfg Config
	log zerolog.Logger
}

func NewDriver(cfg Config) *Driver {
	return &Driver{
		cfg: cfg,
		log: log.With().Str("module", "capture").Logger(),
	}
}

func (d *Driver) Devices(kind domain.MediaKind) ([]domain.DeviceInfo, error) {
	want := mediadevices.AudioInput
	if kind == domain.MediaKindVideo {
		want = mediadevices.VideoInput
	}
	var out []domain.DeviceInfo
	for _, info := range mediadevices.EnumerateDevices() {
		if info.Kind != want {
			continue
		}
		out = append(out, domain.DeviceInfo{Name: info.Label, ID: info.DeviceID, Kind: kind})
	}
	return out, nil
}

type opened struct {
	track mediadevices.Track
	err   error
}

// Open starts capture on deviceID. If ctx ends first the device is closed once it finishes opening.
func (d *Driver) Open(ctx context.Context, kind domain.MediaKind, deviceID string) (core.Device, error) {
	selector, codec, err := d.selector(kind)
	if err != nil {
		return nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: selector}
	withDevice := func(c *mediadevices.MediaTrackConstraints) {
		c.DeviceID = prop.String(deviceID)
	}
	if kind == domain.MediaKindVideo {
		constraints.Video = withDevice
	} else {
		constraints.Audio = withDevice
	}

	result := make(chan opened, 1)
	go func() {
		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			result <- opened{err: err}
			return
		}
		tracks := stream.GetAudioTracks()
		if kind == domain.MediaKindVideo {
			tracks = stream.GetVideoTracks()
		}
		if len(tracks) == 0 {
			result <- opened{err: fmt.Errorf("no %s track in stream", kind)}
			return
		}
		result <- opened{track: tracks[0]}
	}()

	var res opened
	select {
	case res = <-result:
	case <-ctx.Done():
		go func() {
			if late := <-result; late.track != nil {
				_ = late.track.Close()
			}
		}()
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	reader, err := res.track.NewEncodedReader(codec.MimeType)
	if err != nil {
		_ = res.track.Close()
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	d.log.Info().Str("kind", kind.String()).Str("device", deviceID).Str("codec", codec.MimeType).Msg("capture started")
	return &device{track: res.track, reader: reader, codec: codec}, nil
}

func (d *Driver) selector(kind domain.MediaKind) (*mediadevices.CodecSelector, webrtc.RTPCodecCapability, error) {
	if kind == domain.MediaKindVideo {
		params, err := vpx.NewVP8Params()
		if err != nil {
			return nil, webrtc.RTPCodecCapability{}, err
		}
		if d.cfg.VideoBitRate > 0 {
			params.BitRate = d.cfg.VideoBitRate
		}
		params.RateControlEndUsage = vpx.RateControlVBR
		return mediadevices.NewCodecSelector(mediadevices.WithVideoEncoders(&params)),
			params.RTPCodec().RTPCodecCapability, nil
	}

	params, err := opus.NewParams()
	if err != nil {
		return nil, webrtc.RTPCodecCapability{}, err
	}
	if d.cfg.AudioBitRate > 0 {
		params.BitRate = d.cfg.AudioBitRate
	}
	params.Latency = opus.Latency20ms
	return mediadevices.NewCodecSelector(mediadevices.WithAudioEncoders(&params)),
		params.RTPCodec().RTPCodecCapability, nil
}

type device struct {
	track  mediadevices.Track
	reader mediadevices.EncodedReadCloser
	codec  webrtc.RTPCodecCapability

	once     sync.Once
	closeErr error
}

func (d *device) Codec() webrtc.RTPCodecCapability { return d.codec }

func (d *device) ReadSample() (media.Sample, error) {
	buf, release, err := d.reader.Read()
	if err != nil {
		return media.Sample{}, err
	}
	defer release()

	data := make([]byte, len(buf.Data))
	copy(data, buf.Data)
	return media.Sample{
		Data:     data,
		Duration: time.Duration(buf.Samples) * time.Second / time.Duration(d.codec.ClockRate),
	}, nil
}

func (d *device) Close() error {
	d.once.Do(func() {
		_ = d.reader.Close()
		d.closeErr = d.track.Close()
	})
	return d.closeErr
}
