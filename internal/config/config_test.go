package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/peerlink/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	fs := Flags()
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers)
	assert.False(t, cfg.Media.Video)
	assert.False(t, cfg.Media.Audio)
	assert.Equal(t, "webcam_track", cfg.Media.VideoTrack)
	assert.Equal(t, "microphone_track", cfg.Media.AudioTrack)
	assert.Equal(t, TransportPipe, cfg.Signaling.Transport)
	assert.Equal(t, "testpipe", cfg.Signaling.Pipe)
	assert.True(t, cfg.Signaling.Listen)
	assert.Equal(t, 5*time.Second, cfg.Signaling.WriteTimeout)
}

func TestLoad_ShortFlags(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name      string
		args      []string
		wantVideo bool
		wantAudio bool
	}{
		{"none", nil, false, false},
		{"video short", []string{"-v"}, true, false},
		{"audio long", []string{"--audio"}, false, true},
		{"both combined", []string{"-va"}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := Flags()
			require.NoError(t, fs.Parse(tt.args))

			cfg, err := Load(fs)
			require.NoError(t, err)
			assert.Equal(t, tt.wantVideo, cfg.Media.Video)
			assert.Equal(t, tt.wantAudio, cfg.Media.Audio)
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "peer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ice_servers:
  - stun:stun.example.org:3478
  - turn:turn.example.org:3478
signaling:
  transport: websocket
  listen: false
  url: ws://127.0.0.1:9000/api/ws/signal
media:
  video: true
`), 0o600))
	t.Setenv("PEERLINK_NEGOTIATION_INITIATE", "true")

	fs := Flags()
	require.NoError(t, fs.Parse([]string{"--config", path, "--audio"}))

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, []string{"stun:stun.example.org:3478", "turn:turn.example.org:3478"}, cfg.ICEServers)
	assert.Equal(t, TransportWebSocket, cfg.Signaling.Transport)
	assert.False(t, cfg.Signaling.Listen)
	assert.True(t, cfg.Media.Video)
	assert.True(t, cfg.Media.Audio)
	assert.True(t, cfg.Negotiation.Initiate)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())

	fs := Flags()
	require.NoError(t, fs.Parse([]string{"--config", "nope.yaml"}))

	_, err := Load(fs)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		sig     SignalingConfig
		http    string
		wantErr bool
	}{
		{"pipe", SignalingConfig{Transport: TransportPipe, Pipe: "p"}, "", false},
		{"pipe without name", SignalingConfig{Transport: TransportPipe}, "", true},
		{"ws listen", SignalingConfig{Transport: TransportWebSocket, Listen: true}, ":8080", false},
		{"ws listen without http", SignalingConfig{Transport: TransportWebSocket, Listen: true}, "", true},
		{"ws dial without url", SignalingConfig{Transport: TransportWebSocket}, "", true},
		{"unknown", SignalingConfig{Transport: "carrier-pigeon"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Signaling: tt.sig, HTTP: HTTPConfig{Addr: tt.http}}
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}
