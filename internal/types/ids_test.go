// internal/types/ids_test.go
package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMessageID(t *testing.T) {
	id := NewMessageID()
	assert.Len(t, string(id), 36, "expected UUID format")
	assert.NotEqual(t, id, NewMessageID())
}

func TestNewSessionAndCommandIDs(t *testing.T) {
	assert.Len(t, string(NewSessionID()), 36)
	assert.Len(t, string(NewCommandID()), 36)
}
