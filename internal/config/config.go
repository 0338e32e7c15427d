package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dkeye/peerlink/internal/domain"
	"github.com/dkeye/peerlink/internal/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	TransportPipe      = "pipe"
	TransportWebSocket = "websocket"
)

type Config struct {
	Mode        string            `mapstructure:"mode"`
	ICEServers  []string          `mapstructure:"ice_servers"`
	Log         logging.Config    `mapstructure:"log"`
	Media       MediaConfig       `mapstructure:"media"`
	Signaling   SignalingConfig   `mapstructure:"signaling"`
	Negotiation NegotiationConfig `mapstructure:"negotiation"`
	HTTP        HTTPConfig        `mapstructure:"http"`
}

type MediaConfig struct {
	Video        bool   `mapstructure:"video"`
	Audio        bool   `mapstructure:"audio"`
	CameraID     string `mapstructure:"camera_id"`
	MicrophoneID string `mapstructure:"microphone_id"`
	StreamID     string `mapstructure:"stream_id"`
	VideoTrack   string `mapstructure:"video_track"`
	AudioTrack   string `mapstructure:"audio_track"`
	VideoBitRate int    `mapstructure:"video_bitrate"`
	AudioBitRate int    `mapstructure:"audio_bitrate"`
}

type SignalingConfig struct {
	Transport    string        `mapstructure:"transport"`
	Listen       bool          `mapstructure:"listen"`
	Pipe         string        `mapstructure:"pipe"`
	URL          string        `mapstructure:"url"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type NegotiationConfig struct {
	Initiate bool `mapstructure:"initiate"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Flags returns the command-line surface. Parse it before calling Load.
func Flags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("peerlink", pflag.ContinueOnError)
	flags.BoolP("video", "v", false, "send and receive video from the local camera")
	flags.BoolP("audio", "a", false, "send and receive audio from the local microphone")
	flags.String("config", "", "path to a yaml config file")
	flags.Bool("offer", false, "create the offer instead of waiting for one")
	flags.String("signal", TransportPipe, "signaling transport: pipe or websocket")
	flags.Bool("listen", true, "wait for the peer instead of dialing it")
	flags.String("pipe", "testpipe", "named pipe used for signaling")
	flags.String("url", "", "websocket url of the peer when dialing")
	flags.String("http", "", "address of the status and websocket endpoint, empty to disable")
	flags.String("log-level", "info", "log level")
	return flags
}

var flagKeys = map[string]string{
	"video":     "media.video",
	"audio":     "media.audio",
	"offer":     "negotiation.initiate",
	"signal":    "signaling.transport",
	"listen":    "signaling.listen",
	"pipe":      "signaling.pipe",
	"url":       "signaling.url",
	"http":      "http.addr",
	"log-level": "log.level",
}

func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("PEERLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	explicit := ""
	if flags != nil {
		explicit, _ = flags.GetString("config")
	}
	fileName := explicit
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		if explicit != "" {
			return nil, domain.WrapError(domain.CodeConfig, err, "read config "+explicit)
		}
		log.Debug().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, domain.WrapError(domain.CodeConfig, err, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pion_level", "warn")
	v.SetDefault("log.console", true)
	v.SetDefault("log.filename", "")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_age", 7)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("media.video", false)
	v.SetDefault("media.audio", false)
	v.SetDefault("media.camera_id", "")
	v.SetDefault("media.microphone_id", "")
	v.SetDefault("media.stream_id", "peerlink")
	v.SetDefault("media.video_track", "webcam_track")
	v.SetDefault("media.audio_track", "microphone_track")
	v.SetDefault("media.video_bitrate", 1_000_000)
	v.SetDefault("media.audio_bitrate", 64_000)

	v.SetDefault("signaling.transport", TransportPipe)
	v.SetDefault("signaling.listen", true)
	v.SetDefault("signaling.pipe", "testpipe")
	v.SetDefault("signaling.url", "")
	v.SetDefault("signaling.write_timeout", "5s")

	v.SetDefault("negotiation.initiate", false)
	v.SetDefault("http.addr", "")
}

// Validate checks the fields that have no meaningful fallback. ICE server URLs are checked
// when the connection is initialized.
func (c *Config) Validate() error {
	switch c.Signaling.Transport {
	case TransportPipe:
		if c.Signaling.Pipe == "" {
			return domain.NewError(domain.CodeConfig, "pipe transport needs a pipe name")
		}
	case TransportWebSocket:
		if c.Signaling.Listen && c.HTTP.Addr == "" {
			return domain.NewError(domain.CodeConfig, "websocket listen mode needs an http address")
		}
		if !c.Signaling.Listen && c.Signaling.URL == "" {
			return domain.NewError(domain.CodeConfig, "websocket dial mode needs a url")
		}
	default:
		return domain.NewError(domain.CodeConfig, "unknown signaling transport %q", c.Signaling.Transport)
	}
	return nil
}
