// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

// RecordID is the backend-assigned memory id. It is opaque to the client
// and never changes for the lifetime of a record.
type RecordID string

// ClientID is the id the backend hands out in its connected acknowledgement.
type ClientID string

type SessionID string
type MessageID string
type CommandID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewCommandID() CommandID {
	return CommandID(uuid.New().String())
}
