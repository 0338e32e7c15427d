package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/peerlink/internal/app/media/mediatest"
	"github.com/dkeye/peerlink/internal/core"
	"github.com/dkeye/peerlink/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackFactory_CreateTrack(t *testing.T) {
	m := NewManager(mediatest.NewDriver(), ManagerConfig{})
	src, err := m.OpenCamera(context.Background())
	require.NoError(t, err)

	track, err := NewTrackFactory("peerlink").CreateTrack(src, domain.MediaKindVideo, "webcam_track")
	require.NoError(t, err)

	assert.Equal(t, "webcam_track", track.Name())
	assert.Equal(t, "webcam_track", track.Local().ID())
	assert.Equal(t, "peerlink", track.Local().StreamID())
	assert.Equal(t, webrtc.RTPCodecTypeVideo, track.Local().Kind())
	assert.Same(t, src, track.Source())

	require.NoError(t, track.Close())
	require.NoError(t, track.Close())
	require.NoError(t, m.Close(src))
}

func TestTrackFactory_SourceInvalid(t *testing.T) {
	m := NewManager(mediatest.NewDriver(), ManagerConfig{})
	src, err := m.OpenMicrophone(context.Background())
	require.NoError(t, err)
	f := NewTrackFactory("peerlink")

	_, err = f.CreateTrack(src, domain.MediaKindVideo, "webcam_track")
	assert.ErrorIs(t, err, domain.ErrSourceInvalid)

	_, err = f.CreateTrack(src, domain.MediaKindAudio, "")
	assert.ErrorIs(t, err, domain.ErrSourceInvalid)

	require.NoError(t, m.Close(src))
	_, err = f.CreateTrack(src, domain.MediaKindAudio, "microphone_track")
	assert.ErrorIs(t, err, domain.ErrSourceInvalid)

	_, err = f.CreateTrack(nil, domain.MediaKindAudio, "microphone_track")
	assert.ErrorIs(t, err, domain.ErrSourceInvalid)
}

func TestTrack_StopsWhenSourceCloses(t *testing.T) {
	m := NewManager(mediatest.NewDriver(), ManagerConfig{})
	src, err := m.OpenMicrophone(context.Background())
	require.NoError(t, err)

	track, err := NewTrackFactory("peerlink").CreateTrack(src, domain.MediaKindAudio, "microphone_track")
	require.NoError(t, err)

	require.NoError(t, src.Close())
	assert.NoError(t, track.Close())
}

func TestTrack_CloseDoesNotWaitForStalledRead(t *testing.T) {
	drv := mediatest.NewDriver()
	drv.Stall(domain.MediaKindVideo)
	m := NewManager(drv, ManagerConfig{})
	src, err := m.OpenCamera(context.Background())
	require.NoError(t, err)

	track, err := NewTrackFactory("peerlink").CreateTrack(src, domain.MediaKindVideo, "webcam_track")
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- track.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a stalled source read")
	}
	assert.True(t, track.Closed())

	select {
	case <-track.Done():
		t.Fatal("pump finished while its read is still pending")
	default:
	}

	require.NoError(t, m.Close(src))
	select {
	case <-track.Done():
	case <-time.After(time.Second):
		t.Fatal("pump did not finish after the source closed")
	}
}

type scriptedRemote struct {
	packets []*rtp.Packet
}

func (r *scriptedRemote) ID() string             { return "remote" }
func (r *scriptedRemote) Kind() domain.MediaKind { return domain.MediaKindAudio }
func (r *scriptedRemote) ReadRTP() (*rtp.Packet, error) {
	if len(r.packets) == 0 {
		return nil, errors.New("track closed")
	}
	p := r.packets[0]
	r.packets = r.packets[1:]
	return p, nil
}

var _ core.RemoteTrack = (*scriptedRemote)(nil)

func TestRemoteSink_Drain(t *testing.T) {
	remote := &scriptedRemote{packets: []*rtp.Packet{
		{Header: rtp.Header{SSRC: 7, PayloadType: 111, SequenceNumber: 1}},
		{Header: rtp.Header{SSRC: 7, PayloadType: 111, SequenceNumber: 2}},
		{Header: rtp.Header{SSRC: 7, PayloadType: 111, SequenceNumber: 3}},
	}}

	n := NewRemoteSink(nil).Drain(context.Background(), remote)
	assert.Equal(t, 3, n)
}

func TestRemoteSink_DrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := NewRemoteSink(nil).Drain(ctx, &scriptedRemote{packets: []*rtp.Packet{{}}})
	assert.Equal(t, 0, n)
}
