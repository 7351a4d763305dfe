package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/cortexdash/internal/live"
	"github.com/user/cortexdash/internal/types"
)

func TestPublishLatestKeepsNewestState(t *testing.T) {
	states := make(chan live.State, 1)
	for _, s := range []live.State{
		live.StateConnecting,
		live.StateConnected,
		live.StateReconnecting,
		live.StateDisconnected,
	} {
		publishLatest(states, s)
	}

	assert.Len(t, states, 1)
	assert.Equal(t, live.StateDisconnected, <-states)

	publishLatest(states, live.StateConnecting)
	assert.Equal(t, live.StateConnecting, <-states)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n  b\tc", 10))
	assert.Equal(t, "abcd…", preview("abcdefgh", 5))
	assert.Equal(t, "héllo", preview("héllo", 5))
}

func TestPrintRecords(t *testing.T) {
	var buf bytes.Buffer
	printRecords(&buf, []types.Record{{ID: "m1", Type: "decision", ImportanceScore: 80, Content: "use sqlite"}})
	out := buf.String()
	assert.Contains(t, out, "IMPORTANCE")
	assert.Contains(t, out, "m1")
	assert.Contains(t, out, "use sqlite")
}
