// internal/types/interfaces.go
package types

import (
	"context"
)

// RecordSource loads the full record set of a project.
type RecordSource interface {
	LoadRecords(ctx context.Context, project string, sort Sort) ([]Record, error)
}

// RecordFetcher looks up a single record.
type RecordFetcher interface {
	GetRecord(ctx context.Context, project string, id RecordID) (*Record, error)
}

// RecordWriter applies user-initiated changes on the backend.
type RecordWriter interface {
	UpdateRecord(ctx context.Context, project string, r Record) (*Record, error)
	DeleteRecord(ctx context.Context, project string, id RecordID) error
}
