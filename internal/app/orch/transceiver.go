package orch

import (
	"github.com/dkeye/peerlink/internal/app/media"
	"github.com/dkeye/peerlink/internal/domain"
)

// Transceiver is a directional media slot of the connection.
type Transceiver struct {
	Kind      domain.MediaKind
	Direction domain.Direction
	track     domain.Optional[*media.Track]
}

func (t *Transceiver) Track() (*media.Track, bool) {
	return t.track.Get()
}

func (t *Transceiver) attach(track *media.Track) error {
	if t.track.IsSet() {
		return domain.NewError(domain.CodeInvalidState, "%s transceiver already has a track", t.Kind)
	}
	t.track = domain.Some(track)
	return nil
}

// TransceiverInfo is a read-only view of a transceiver.
type TransceiverInfo struct {
	Kind      string `json:"kind"`
	Direction string `json:"direction"`
	Track     string `json:"track,omitempty"`
}

// slot ties a transceiver to the resources the session must release for it.
type slot struct {
	transceiver *Transceiver
	source      domain.Optional[*media.Source]
	track       domain.Optional[*media.Track]
}
