package types

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(minute int) Timestamp {
	return Timestamp{time.Date(2025, 1, 1, 0, minute, 0, 0, time.UTC)}
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		by, order string
		want      Sort
	}{
		{"importance_score", "asc", Sort{SortImportance, SortAsc}},
		{"CREATED_AT", "DESC", Sort{SortCreatedAt, SortDesc}},
		{"content; drop table", "asc", Sort{SortLastAccess, SortAsc}},
		{"", "", DefaultSort()},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseSort(tt.by, tt.order), "by=%q order=%q", tt.by, tt.order)
	}
}

func TestSortLess(t *testing.T) {
	la := ts(30)
	records := []Record{
		{ID: "b", ImportanceScore: 10, CreatedAt: ts(1)},
		{ID: "a", ImportanceScore: 10, CreatedAt: ts(2), LastAccessed: &la},
		{ID: "c", ImportanceScore: 90, CreatedAt: ts(3)},
	}
	ids := func(s Sort) []RecordID {
		rs := slices.Clone(records)
		slices.SortFunc(rs, func(x, y Record) int {
			if s.Less(&x, &y) {
				return -1
			}
			if s.Less(&y, &x) {
				return 1
			}
			return 0
		})
		out := make([]RecordID, len(rs))
		for i, r := range rs {
			out[i] = r.ID
		}
		return out
	}

	assert.Equal(t, []RecordID{"c", "a", "b"}, ids(Sort{SortImportance, SortDesc}))
	assert.Equal(t, []RecordID{"a", "b", "c"}, ids(Sort{SortImportance, SortAsc}))
	assert.Equal(t, []RecordID{"a", "c", "b"}, ids(DefaultSort()))
	assert.Equal(t, []RecordID{"b", "a", "c"}, ids(Sort{SortCreatedAt, SortAsc}))
}
