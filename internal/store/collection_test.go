package store

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/cortexdash/internal/types"
)

func rec(id string, importance int) types.Record {
	return types.Record{
		ID:              types.RecordID(id),
		Content:         "content of " + id,
		Type:            "general",
		Status:          types.DefaultStatus,
		ImportanceScore: importance,
		CreatedAt:       types.Timestamp{Time: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		Tags:            []string{},
	}
}

func byImportance() types.Sort {
	return types.Sort{By: types.SortImportance, Order: types.SortDesc}
}

func ids(records []types.Record) []types.RecordID {
	out := make([]types.RecordID, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestApplyCreateKeepsSortOrder(t *testing.T) {
	c := NewCollection(byImportance(), time.Minute)
	c.ApplyCreate(rec("a", 10))
	c.ApplyCreate(rec("b", 90))
	c.ApplyCreate(rec("c", 50))

	assert.Equal(t, []types.RecordID{"b", "c", "a"}, ids(c.Snapshot()))
}

func TestDuplicateCreateIsIdempotent(t *testing.T) {
	c := NewCollection(byImportance(), time.Minute)
	m1 := rec("m1", 50)
	c.ApplyCreate(m1)
	ch := c.ApplyCreate(m1)

	assert.Equal(t, ChangeUpdated, ch.Kind)
	assert.Equal(t, 1, c.Len())
	got, ok := c.Get("m1")
	require.True(t, ok)
	assert.True(t, got.Equal(m1))
}

func TestUpdateForMissingIDCreates(t *testing.T) {
	c := NewCollection(byImportance(), time.Minute)
	ch := c.ApplyUpdate(rec("m7", 30))

	assert.Equal(t, ChangeCreated, ch.Kind)
	assert.Equal(t, 1, c.Len())
}

func TestUpdateReplacesWholesaleAndMoves(t *testing.T) {
	c := NewCollection(byImportance(), time.Minute)
	c.ApplyCreate(rec("a", 10))
	c.ApplyCreate(rec("b", 20))

	updated := rec("a", 99)
	updated.Tags = []string{"pinned"}
	updated.Content = "rewritten"
	c.ApplyUpdate(updated)

	assert.Equal(t, []types.RecordID{"a", "b"}, ids(c.Snapshot()))
	got, _ := c.Get("a")
	assert.Equal(t, "rewritten", got.Content)
	assert.Equal(t, []string{"pinned"}, got.Tags)
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	c := NewCollection(byImportance(), time.Minute)
	c.ApplyCreate(rec("a", 10))
	var changes []Change
	c.OnChange(func(ch Change) { changes = append(changes, ch) })

	_, removed := c.ApplyDelete("ghost")
	assert.False(t, removed)
	assert.Empty(t, changes)
	assert.Equal(t, 1, c.Len())
}

func TestReplaceDeduplicatesAndSorts(t *testing.T) {
	c := NewCollection(byImportance(), time.Minute)
	c.ApplyCreate(rec("old", 10))

	dup := rec("x", 70)
	dup.Content = "second copy"
	c.Replace([]types.Record{rec("x", 5), rec("y", 60), dup})

	snap := c.Snapshot()
	assert.Equal(t, []types.RecordID{"x", "y"}, ids(snap))
	assert.Equal(t, "second copy", snap[0].Content)
	assert.False(t, c.IsRecent("x"), "resynced records are not flagged")
}

func TestSetSortResorts(t *testing.T) {
	c := NewCollection(byImportance(), time.Minute)
	c.ApplyCreate(rec("a", 10))
	c.ApplyCreate(rec("b", 90))

	c.SetSort(types.Sort{By: types.SortImportance, Order: types.SortAsc})
	assert.Equal(t, []types.RecordID{"a", "b"}, ids(c.Snapshot()))
}

func TestRecentFlagExpires(t *testing.T) {
	c := NewCollection(byImportance(), 30*time.Millisecond)
	c.ApplyCreate(rec("a", 10))
	c.ApplyUpdate(rec("b", 10))

	assert.True(t, c.IsRecent("a"))
	assert.False(t, c.IsRecent("b"), "update-created records are not flagged")
	require.Eventually(t, func() bool { return !c.IsRecent("a") }, time.Second, 5*time.Millisecond)

	got, _ := c.Get("a")
	assert.True(t, got.Equal(rec("a", 10)), "flag does not alter the record")
}

func TestSnapshotIsACopy(t *testing.T) {
	c := NewCollection(byImportance(), time.Minute)
	r := rec("a", 10)
	r.Tags = []string{"t"}
	c.ApplyCreate(r)

	snap := c.Snapshot()
	snap[0].Tags[0] = "changed"
	got, _ := c.Get("a")
	assert.Equal(t, "t", got.Tags[0])
}

type op struct {
	kind string
	rec  types.Record
}

func apply(c *Collection, ops []op) {
	for _, o := range ops {
		switch o.kind {
		case "create":
			c.ApplyCreate(o.rec)
		case "update":
			c.ApplyUpdate(o.rec)
		case "delete":
			c.ApplyDelete(o.rec.ID)
		}
	}
}

// For a single id the final state depends only on the last event: a delete
// leaves nothing, anything else leaves that event's record.
func TestSingleIDReplayMatchesLastEvent(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	kinds := []string{"create", "update", "delete"}
	for trial := 0; trial < 200; trial++ {
		n := 1 + rnd.Intn(8)
		ops := make([]op, n)
		for i := range ops {
			r := rec("m1", rnd.Intn(100))
			r.Content = fmt.Sprintf("v%d", i)
			ops[i] = op{kind: kinds[rnd.Intn(3)], rec: r}
		}

		c := NewCollection(byImportance(), time.Minute)
		apply(c, ops)

		last := ops[len(ops)-1]
		got, ok := c.Get("m1")
		if last.kind == "delete" {
			assert.False(t, ok, "trial %d", trial)
			continue
		}
		require.True(t, ok, "trial %d", trial)
		assert.Equal(t, last.rec.Content, got.Content, "trial %d", trial)
		assert.Equal(t, 1, c.Len())
	}
}

// Events for different ids commute.
func TestDifferentIDsCommute(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	for trial := 0; trial < 100; trial++ {
		var a, b []op
		for i := 0; i < 4; i++ {
			a = append(a, op{kind: []string{"create", "update", "delete"}[rnd.Intn(3)], rec: rec("a", rnd.Intn(100))})
			b = append(b, op{kind: []string{"create", "update", "delete"}[rnd.Intn(3)], rec: rec("b", rnd.Intn(100))})
		}

		c1 := NewCollection(byImportance(), time.Minute)
		apply(c1, append(append([]op{}, a...), b...))

		c2 := NewCollection(byImportance(), time.Minute)
		var inter []op
		for i := range a {
			inter = append(inter, b[i], a[i])
		}
		apply(c2, inter)

		s1, s2 := c1.Snapshot(), c2.Snapshot()
		require.Equal(t, ids(s1), ids(s2), "trial %d", trial)
		for i := range s1 {
			assert.True(t, s1[i].Equal(s2[i]), "trial %d", trial)
		}
	}
}
