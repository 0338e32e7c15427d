package media

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/peerlink/internal/app/media/mediatest"
	"github.com/dkeye/peerlink/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ListCaptureDevicesIsLazyAndRestartable(t *testing.T) {
	drv := mediatest.NewDriver()
	drv.SetDevices(domain.MediaKindVideo,
		domain.DeviceInfo{Name: "Front", ID: "a", Kind: domain.MediaKindVideo},
		domain.DeviceInfo{Name: "Back", ID: "b", Kind: domain.MediaKindVideo},
	)
	m := NewManager(drv, ManagerConfig{})

	seq := m.ListCaptureDevices()
	assert.Equal(t, 0, drv.Enumerations())

	var names []string
	for d := range seq {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Front", "Back"}, names)

	drv.SetDevices(domain.MediaKindVideo, domain.DeviceInfo{Name: "Plugged", ID: "c"})
	names = names[:0]
	for d := range seq {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Plugged"}, names)
	assert.Equal(t, 2, drv.Enumerations())

	for range seq {
		break
	}
}

func TestManager_OpenCameraPrefersConfiguredDevice(t *testing.T) {
	drv := mediatest.NewDriver()
	drv.SetDevices(domain.MediaKindVideo,
		domain.DeviceInfo{Name: "Front", ID: "a"},
		domain.DeviceInfo{Name: "Back", ID: "b"},
	)

	src, err := NewManager(drv, ManagerConfig{CameraID: "b"}).OpenCamera(context.Background())
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "Back", src.Info().Name)
	assert.Equal(t, domain.MediaKindVideo, src.Kind())
}

func TestManager_OpenFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*mediatest.Driver)
		cfg   ManagerConfig
	}{
		{"no camera", func(d *mediatest.Driver) { d.SetDevices(domain.MediaKindVideo) }, ManagerConfig{}},
		{"unknown id", func(d *mediatest.Driver) {}, ManagerConfig{CameraID: "missing"}},
		{"access denied", func(d *mediatest.Driver) { d.FailOpen(domain.MediaKindVideo, errors.New("permission denied")) }, ManagerConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := mediatest.NewDriver()
			tt.setup(drv)

			_, err := NewManager(drv, tt.cfg).OpenCamera(context.Background())
			assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
		})
	}
}

func TestManager_OneSourcePerKind(t *testing.T) {
	m := NewManager(mediatest.NewDriver(), ManagerConfig{})

	cam, err := m.OpenCamera(context.Background())
	require.NoError(t, err)

	_, err = m.OpenCamera(context.Background())
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)

	mic, err := m.OpenMicrophone(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Close(cam))
	require.NoError(t, m.Close(mic))

	again, err := m.OpenCamera(context.Background())
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	var closes int
	drv := mediatest.NewDriver()
	drv.OnClose = func(domain.MediaKind) { closes++ }
	m := NewManager(drv, ManagerConfig{})

	src, err := m.OpenMicrophone(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Close(src))
	require.NoError(t, m.Close(src))
	require.NoError(t, src.Close())
	assert.Equal(t, 1, closes)
	assert.True(t, src.Closed())
	assert.NoError(t, m.Close(nil))
}

func TestManager_CloseReportsDeviceErrorOnce(t *testing.T) {
	drv := mediatest.NewDriver()
	drv.FailClose(domain.MediaKindVideo, errors.New("device busy"))
	m := NewManager(drv, ManagerConfig{})

	src, err := m.OpenCamera(context.Background())
	require.NoError(t, err)

	assert.EqualError(t, m.Close(src), "device busy")
	assert.NoError(t, m.Close(src))
	assert.NoError(t, src.Close())
	assert.True(t, src.Closed())
}
