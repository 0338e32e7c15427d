package domain

// MediaKind is the type of a transceiver slot or track.
type MediaKind int

const (
	MediaKindAudio MediaKind = iota + 1
	MediaKindVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaKindAudio:
		return "audio"
	case MediaKindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Direction is the desired direction of a transceiver.
type Direction int

const (
	DirectionSendReceive Direction = iota
	DirectionSendOnly
	DirectionReceiveOnly
	DirectionInactive
)

func (d Direction) String() string {
	switch d {
	case DirectionSendReceive:
		return "sendrecv"
	case DirectionSendOnly:
		return "sendonly"
	case DirectionReceiveOnly:
		return "recvonly"
	case DirectionInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a capture device as reported by the backend.
type DeviceInfo struct {
	Name string    `json:"name"`
	ID   string    `json:"id"`
	Kind MediaKind `json:"-"`
}

// ConnectionState mirrors the peer connection state reported by the transport.
type ConnectionState int

const (
	ConnectionStateNew ConnectionState = iota
	ConnectionStateConnecting
	ConnectionStateConnected
	ConnectionStateDisconnected
	ConnectionStateFailed
	ConnectionStateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateNew:
		return "new"
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateDisconnected:
		return "disconnected"
	case ConnectionStateFailed:
		return "failed"
	case ConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
