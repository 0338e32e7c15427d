package orch

// State is the negotiation state of a session.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateNegotiating
	StateConnected
	StateClosed
	// StateFailed is absorbing and reachable from every state but StateClosed.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s == StateClosed || s == StateFailed
}
