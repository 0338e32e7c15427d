package signal

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/peerlink/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_CandidateWireShape(t *testing.T) {
	data, err := Encode(domain.IceCandidate{
		SDPMid:        "0",
		Candidate:     "candidate:1 1 udp 2130706431 10.0.0.2 50000 typ host",
		SDPMLineIndex: 0,
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "candidate", raw["type"])
	assert.Equal(t, "0", raw["sdpMid"])
	assert.Equal(t, float64(0), raw["sdpMLineIndex"])
	assert.Contains(t, raw["candidate"], "typ host")
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	msgs := []domain.Message{
		domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\n"},
		domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: ""},
		domain.IceCandidate{SDPMid: "audio", Candidate: "candidate:2 1 tcp 1 ::1 9 typ host tcptype active", SDPMLineIndex: 1},
	}

	for _, msg := range msgs {
		data, err := Encode(msg)
		require.NoError(t, err)
		got, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"not json", "offer please", ErrMalformedMessage},
		{"unknown type", `{"type":"ping"}`, ErrUnknownMessage},
		{"missing type", `{"sdp":"v=0"}`, ErrUnknownMessage},
		{"bad index", `{"type":"candidate","sdpMLineIndex":"zero"}`, ErrMalformedMessage},
		{"negative index", `{"type":"candidate","sdpMLineIndex":-1}`, ErrMalformedMessage},
		{"index too large", `{"type":"candidate","sdpMLineIndex":65536}`, ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncode_RejectsUnknownDescriptionType(t *testing.T) {
	_, err := Encode(domain.SessionDescription{Type: "pranswer"})
	assert.ErrorIs(t, err, ErrUnknownMessage)
}
