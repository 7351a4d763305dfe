package types

import (
	"cmp"
	"strings"
)

// SortField names one of the orderings the backend accepts.
type SortField string

const (
	SortCreatedAt   SortField = "created_at"
	SortLastAccess  SortField = "last_accessed"
	SortImportance  SortField = "importance_score"
	SortAccessCount SortField = "access_count"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Sort is the active ordering of a record collection.
type Sort struct {
	By    SortField `json:"by"`
	Order SortOrder `json:"order"`
}

// DefaultSort is most recently accessed first.
func DefaultSort() Sort {
	return Sort{By: SortLastAccess, Order: SortDesc}
}

// ParseSort validates by and order, falling back to the defaults for
// anything outside the accepted set.
func ParseSort(by, order string) Sort {
	s := DefaultSort()
	switch f := SortField(strings.ToLower(strings.TrimSpace(by))); f {
	case SortCreatedAt, SortLastAccess, SortImportance, SortAccessCount:
		s.By = f
	}
	if strings.EqualFold(strings.TrimSpace(order), string(SortAsc)) {
		s.Order = SortAsc
	}
	return s
}

// Less reports whether a sorts before b. Ties are broken by id so the
// ordering is total.
func (s Sort) Less(a, b *Record) bool {
	c := s.compare(a, b)
	if c == 0 {
		return a.ID < b.ID
	}
	if s.Order == SortAsc {
		return c < 0
	}
	return c > 0
}

func (s Sort) compare(a, b *Record) int {
	switch s.By {
	case SortCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt.Time)
	case SortImportance:
		return cmp.Compare(a.ImportanceScore, b.ImportanceScore)
	case SortAccessCount:
		return cmp.Compare(a.AccessCount, b.AccessCount)
	default:
		// never-accessed records count as their creation time
		return lastAccess(a).Compare(lastAccess(b).Time)
	}
}

func lastAccess(r *Record) Timestamp {
	if r.LastAccessed != nil && !r.LastAccessed.IsZero() {
		return *r.LastAccessed
	}
	return r.CreatedAt
}
