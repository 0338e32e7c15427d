// Package domain contains entity without logic, just meta-data
package domain

import "github.com/google/uuid"

// SessionID identifies one negotiation session in logs and the status endpoint.
type SessionID string

func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}
