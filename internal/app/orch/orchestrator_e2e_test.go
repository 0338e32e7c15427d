package orch_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dkeye/peerlink/internal/adapters/rtc"
	"github.com/dkeye/peerlink/internal/adapters/signal"
	"github.com/dkeye/peerlink/internal/app/media"
	"github.com/dkeye/peerlink/internal/app/media/mediatest"
	"github.com/dkeye/peerlink/internal/app/orch"
	"github.com/dkeye/peerlink/internal/domain"
	"github.com/pion/ice/v4"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/test"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// virtualNet puts two hosts on one simulated LAN and returns their setting engines.
func virtualNet(t *testing.T) (webrtc.SettingEngine, webrtc.SettingEngine) {
	t.Helper()
	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.10.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)

	engine := func(ip string) webrtc.SettingEngine {
		n, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{ip}})
		require.NoError(t, err)
		require.NoError(t, wan.AddNet(n))
		se := webrtc.SettingEngine{}
		se.SetNet(n)
		se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
		return se
	}
	local, remote := engine("10.10.0.2"), engine("10.10.0.3")

	require.NoError(t, wan.Start())
	t.Cleanup(func() { _ = wan.Stop() })
	return local, remote
}

// remotePeer offers audio over transport and applies whatever comes back.
func remotePeer(t *testing.T, se webrtc.SettingEngine, transport *signal.StreamTransport) *webrtc.PeerConnection {
	t.Helper()
	m := &webrtc.MediaEngine{}
	require.NoError(t, m.RegisterDefaultCodecs())
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se))
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	send := func(msg domain.Message) {
		data, err := signal.Encode(msg)
		if err == nil {
			_ = transport.WriteMessage(data)
		}
	}
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		cand := domain.IceCandidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			cand.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			cand.SDPMLineIndex = int(*init.SDPMLineIndex)
		}
		send(cand)
	})

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	require.NoError(t, err)
	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, pc.SetLocalDescription(offer))

	go func() {
		for {
			data, err := transport.ReadMessage()
			if err != nil {
				return
			}
			msg, err := signal.Decode(data)
			if err != nil {
				continue
			}
			switch m := msg.(type) {
			case domain.SessionDescription:
				_ = pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: m.SDP})
			case domain.IceCandidate:
				idx := uint16(m.SDPMLineIndex)
				_ = pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: m.Candidate, SDPMid: &m.SDPMid, SDPMLineIndex: &idx})
			}
		}
	}()
	send(domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: offer.SDP})
	return pc
}

func TestOrchestrator_ConnectsToRemotePeer(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	localSE, remoteSE := virtualNet(t)
	a, b := net.Pipe()
	localTransport := signal.NewStreamTransport(a, time.Second)
	remoteTransport := signal.NewStreamTransport(b, time.Second)
	t.Cleanup(func() { _ = remoteTransport.Close() })

	driver := mediatest.NewDriver()
	mgr := media.NewManager(driver, media.ManagerConfig{})
	connector := rtc.NewConnector(rtc.WithSettingEngine(localSE))

	states := make(chan orch.State, 16)
	o := orch.New(orch.Config{ICEServers: []string{"stun:10.10.0.9:3478"}}, connector, mgr,
		orch.WithStateObserver(func(_, to orch.State) { states <- to }))

	ctx := context.Background()
	require.NoError(t, o.Initialize(ctx))
	src, err := mgr.OpenMicrophone(ctx)
	require.NoError(t, err)
	track, err := media.NewTrackFactory("peerlink").CreateTrack(src, domain.MediaKindAudio, "microphone_track")
	require.NoError(t, err)
	require.NoError(t, o.AddTransceiver(domain.MediaKindAudio, domain.DirectionSendReceive, src, track))
	o.Attach(signal.NewChannel(localTransport))

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	remote := remotePeer(t, remoteSE, remoteTransport)

	waitState := func(want orch.State) {
		t.Helper()
		for {
			select {
			case s := <-states:
				if s == want {
					return
				}
				require.NotEqual(t, orch.StateFailed, s)
			case <-time.After(20 * time.Second):
				t.Fatalf("state %s not reached", want)
			}
		}
	}
	waitState(orch.StateConnected)
	require.Eventually(t, func() bool {
		return remote.ConnectionState() == webrtc.PeerConnectionStateConnected
	}, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, o.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}

	assert.Equal(t, orch.StateClosed, o.State())
	assert.True(t, track.Closed())
	assert.True(t, src.Closed())
	again, err := mgr.OpenMicrophone(ctx)
	require.NoError(t, err, "microphone slot is released")
	require.NoError(t, mgr.Close(again))
}
