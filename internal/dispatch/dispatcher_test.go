// internal/dispatch/dispatcher_test.go
package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/cortexdash/internal/types"
)

func TestDispatchRoutesByType(t *testing.T) {
	d := New(nil)
	var created, deleted []types.InboundEvent
	d.Handle(types.EventMemoryCreated, func(ev types.InboundEvent) { created = append(created, ev) })
	d.Handle(types.EventMemoryDeleted, func(ev types.InboundEvent) { deleted = append(deleted, ev) })

	d.Dispatch([]byte(`{"event_type":"memory_created","data":{"id":"m1"}}`))
	d.Dispatch([]byte(`{"event_type":"memory_deleted","data":{"id":"m1"}}`))
	d.Dispatch([]byte(`{"event_type":"memory_created","data":{"id":"m2"}}`))

	require.Len(t, created, 2)
	require.Len(t, deleted, 1)
	assert.JSONEq(t, `{"id":"m2"}`, string(created[1].Data))

	stats := d.Stats()
	assert.Equal(t, 3, stats.Received)
	assert.Equal(t, 2, stats.ByType[types.EventMemoryCreated])
}

func TestDispatchDropsMalformedFrames(t *testing.T) {
	d := New(nil)
	called := false
	d.Handle(types.EventPong, func(types.InboundEvent) { called = true })

	d.Dispatch([]byte(`not json`))
	d.Dispatch([]byte(`{"data":{}}`))
	d.Dispatch([]byte(`{"event_type":42}`))
	d.Dispatch([]byte(`ping`))

	assert.False(t, called)
	assert.Equal(t, 4, d.Stats().Malformed)
}

func TestDispatchIgnoresUnknownTypes(t *testing.T) {
	d := New(nil)
	d.Dispatch([]byte(`{"event_type":"activity_logged","data":{}}`))

	stats := d.Stats()
	assert.Equal(t, 1, stats.Unknown)
	assert.Equal(t, 0, stats.Malformed)
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	d := New(nil)
	var seen []string
	d.Handle(types.EventMemoryUpdated, func(ev types.InboundEvent) {
		if string(ev.Data) == `"boom"` {
			panic("bad payload")
		}
		seen = append(seen, string(ev.Data))
	})

	assert.NotPanics(t, func() {
		d.Dispatch([]byte(`{"event_type":"memory_updated","data":"boom"}`))
	})
	d.Dispatch([]byte(`{"event_type":"memory_updated","data":"ok"}`))
	assert.Equal(t, []string{`"ok"`}, seen)
}

func TestDecodeRecord(t *testing.T) {
	ev := types.InboundEvent{EventType: types.EventMemoryCreated, Data: []byte(`{"id":"m1","content":"x","type":"decision"}`)}
	r, err := DecodeRecord(ev)
	require.NoError(t, err)
	assert.Equal(t, types.RecordID("m1"), r.ID)
	assert.Equal(t, "decision", r.Type)

	_, err = DecodeRecord(types.InboundEvent{EventType: types.EventMemoryCreated, Data: []byte(`{"content":"x"}`)})
	assert.Error(t, err)

	_, err = DecodeRecord(types.InboundEvent{EventType: types.EventMemoryCreated})
	assert.Error(t, err)
}

func TestDecodeDeletedID(t *testing.T) {
	id, err := DecodeDeletedID(types.InboundEvent{Data: []byte(`{"id":"m9"}`)})
	require.NoError(t, err)
	assert.Equal(t, types.RecordID("m9"), id)

	id, err = DecodeDeletedID(types.InboundEvent{Data: []byte(`"m8"`)})
	require.NoError(t, err)
	assert.Equal(t, types.RecordID("m8"), id)

	_, err = DecodeDeletedID(types.InboundEvent{Data: []byte(`{}`)})
	assert.Error(t, err)
}
