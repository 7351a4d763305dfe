package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/cortexdash/internal/types"
)

func TestOptimisticUpdateConfirmedByLiveEvent(t *testing.T) {
	r := newTestReconciler(&fakeSource{})
	r.ApplyCreate(rec("m1", 10))

	edited := rec("m1", 80)
	_, err := r.Commands().Update(edited)
	require.NoError(t, err)

	got, _ := r.Collection().Get("m1")
	assert.Equal(t, 80, got.ImportanceScore, "applied before the server answers")
	assert.Equal(t, 1, r.Commands().Pending())

	r.ApplyUpdate(edited)
	assert.Equal(t, 0, r.Commands().Pending())

	time.Sleep(100 * time.Millisecond)
	got, _ = r.Collection().Get("m1")
	assert.Equal(t, 80, got.ImportanceScore, "confirmed change is never rolled back")
}

func TestOptimisticUpdateRollsBackOnTimeout(t *testing.T) {
	r := newTestReconciler(&fakeSource{})
	r.ApplyCreate(rec("m1", 10))

	var reasons []error
	rolled := make(chan struct{}, 1)
	r.Commands().OnRollback(func(_ Command, reason error) {
		reasons = append(reasons, reason)
		rolled <- struct{}{}
	})

	_, err := r.Commands().Update(rec("m1", 80))
	require.NoError(t, err)

	select {
	case <-rolled:
	case <-time.After(time.Second):
		t.Fatal("no rollback")
	}
	got, _ := r.Collection().Get("m1")
	assert.Equal(t, 10, got.ImportanceScore)
	assert.ErrorIs(t, reasons[0], ErrConfirmTimeout)
}

func TestOptimisticDeleteRollsBackOnFailure(t *testing.T) {
	r := newTestReconciler(&fakeSource{})
	r.ApplyCreate(rec("m1", 10))

	cmd, err := r.Commands().Delete("m1")
	require.NoError(t, err)
	assert.Equal(t, 0, r.Collection().Len())

	assert.True(t, r.Commands().Fail(cmd.ID, errors.New("500")))
	got, ok := r.Collection().Get("m1")
	require.True(t, ok)
	assert.True(t, got.Equal(rec("m1", 10)))
	assert.False(t, r.Commands().Fail(cmd.ID, errors.New("again")), "already settled")
}

func TestStackedCommandsRollBackToConfirmedState(t *testing.T) {
	r := newTestReconciler(&fakeSource{})
	r.ApplyCreate(rec("m1", 10))

	_, err := r.Commands().Update(rec("m1", 20))
	require.NoError(t, err)
	second, err := r.Commands().Update(rec("m1", 30))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Commands().Pending())

	r.Commands().Fail(second.ID, errors.New("rejected"))
	got, _ := r.Collection().Get("m1")
	assert.Equal(t, 10, got.ImportanceScore)
}

func TestResyncSettlesPendingCommands(t *testing.T) {
	src := &fakeSource{}
	src.set("p1", rec("m1", 55))
	r := newTestReconciler(src)
	r.ApplyCreate(rec("m1", 10))

	_, err := r.Commands().Update(rec("m1", 80))
	require.NoError(t, err)
	require.NoError(t, r.Resync(context.Background()))
	assert.Equal(t, 0, r.Commands().Pending())

	time.Sleep(100 * time.Millisecond)
	got, _ := r.Collection().Get("m1")
	assert.Equal(t, 55, got.ImportanceScore, "server state wins and nothing is rolled back")
}

func TestCommandOnUnknownRecord(t *testing.T) {
	r := newTestReconciler(&fakeSource{})
	_, err := r.Commands().Update(types.Record{ID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownRecord)
	_, err = r.Commands().Delete("nope")
	assert.ErrorIs(t, err, ErrUnknownRecord)
}
