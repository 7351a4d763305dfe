// internal/types/models_test.go
package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDefaults(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"id":"m1","content":"hello","type":"general","created_at":"2025-01-02T03:04:05"}`), &r))

	assert.Equal(t, RecordID("m1"), r.ID)
	assert.Equal(t, DefaultStatus, r.Status)
	assert.Equal(t, DefaultImportance, r.ImportanceScore)
	assert.NotNil(t, r.Tags)
	assert.Nil(t, r.LastAccessed)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), r.CreatedAt.Time)
}

func TestRecordExplicitValuesOverrideDefaults(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"id":"m1","status":"archived","importance_score":0,"tags":["a","b"]}`), &r))

	assert.Equal(t, "archived", r.Status)
	assert.Equal(t, 0, r.ImportanceScore)
	assert.Equal(t, []string{"a", "b"}, r.Tags)
}

func TestParseTimestampLayouts(t *testing.T) {
	cases := []string{
		"2025-01-02T03:04:05Z",
		"2025-01-02T03:04:05.123456+00:00",
		"2025-01-02T03:04:05.5",
		"2025-01-02 03:04:05",
	}
	for _, c := range cases {
		ts, err := ParseTimestamp(c)
		require.NoError(t, err, c)
		assert.Equal(t, 2025, ts.Year(), c)
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestRecordCloneIsIndependent(t *testing.T) {
	la, _ := ParseTimestamp("2025-01-02T03:04:05Z")
	r := Record{ID: "m1", Tags: []string{"x"}, LastAccessed: &la}
	c := r.Clone()
	c.Tags[0] = "y"
	c.LastAccessed.Time = c.LastAccessed.Add(time.Hour)

	assert.Equal(t, "x", r.Tags[0])
	assert.True(t, r.Equal(Record{ID: "m1", Tags: []string{"x"}, LastAccessed: &la}))
	assert.False(t, r.Equal(c))
}

func TestInboundEventDecode(t *testing.T) {
	var ev InboundEvent
	require.NoError(t, json.Unmarshal([]byte(`{"event_type":"connected","data":{"client_id":"c-1"},"timestamp":"2025-01-02T03:04:05"}`), &ev))
	assert.Equal(t, EventConnected, ev.EventType)

	var data ConnectedData
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, ClientID("c-1"), data.ClientID)
}
