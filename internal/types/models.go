// internal/types/models.go
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record is one memory item as served by the dashboard backend.
type Record struct {
	ID              RecordID   `json:"id"`
	Content         string     `json:"content"`
	Context         string     `json:"context,omitempty"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	ImportanceScore int        `json:"importance_score"`
	AccessCount     int        `json:"access_count"`
	CreatedAt       Timestamp  `json:"created_at"`
	LastAccessed    *Timestamp `json:"last_accessed,omitempty"`
	Tags            []string   `json:"tags"`
}

const (
	DefaultStatus     = "fresh"
	DefaultImportance = 50
)

// UnmarshalJSON applies the backend's defaults for fields that are missing
// from the payload.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	p := plain{
		Status:          DefaultStatus,
		ImportanceScore: DefaultImportance,
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	*r = Record(p)
	return nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	c := r
	c.Tags = append([]string(nil), r.Tags...)
	if r.LastAccessed != nil {
		la := *r.LastAccessed
		c.LastAccessed = &la
	}
	return c
}

// Equal reports whether two records carry identical content.
func (r Record) Equal(o Record) bool {
	if r.ID != o.ID || r.Content != o.Content || r.Context != o.Context ||
		r.Type != o.Type || r.Status != o.Status ||
		r.ImportanceScore != o.ImportanceScore || r.AccessCount != o.AccessCount ||
		!r.CreatedAt.Equal(o.CreatedAt.Time) {
		return false
	}
	if (r.LastAccessed == nil) != (o.LastAccessed == nil) {
		return false
	}
	if r.LastAccessed != nil && !r.LastAccessed.Equal(o.LastAccessed.Time) {
		return false
	}
	if len(r.Tags) != len(o.Tags) {
		return false
	}
	for i := range r.Tags {
		if r.Tags[i] != o.Tags[i] {
			return false
		}
	}
	return true
}

// Timestamp decodes the backend's ISO-8601 timestamps, which may or may not
// carry a zone offset. Values without an offset are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// InboundEvent is one frame received from the live channel.
type InboundEvent struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp *Timestamp      `json:"timestamp,omitempty"`
}

// Known live event types.
const (
	EventConnected       = "connected"
	EventPong            = "pong"
	EventMemoryCreated   = "memory_created"
	EventMemoryUpdated   = "memory_updated"
	EventMemoryDeleted   = "memory_deleted"
	EventDatabaseChanged = "database_changed"
)

// ConnectedData is the payload of the connected acknowledgement.
type ConnectedData struct {
	ClientID ClientID `json:"client_id"`
}

// DatabaseChangedData is the payload of a database_changed event.
type DatabaseChangedData struct {
	Path string `json:"path"`
}

// DeletedData is the payload of a memory_deleted event.
type DeletedData struct {
	ID RecordID `json:"id"`
}

// Source is a memory cited by a chat answer.
type Source struct {
	ID             RecordID `json:"id"`
	Type           string   `json:"type"`
	ContentPreview string   `json:"content_preview"`
	Tags           []string `json:"tags"`
}

// Project is a discovered memory database.
type Project struct {
	Name         string     `json:"name"`
	Path         string     `json:"path"`
	DBPath       string     `json:"db_path"`
	LastModified *Timestamp `json:"last_modified,omitempty"`
	MemoryCount  int        `json:"memory_count"`
	IsGlobal     bool       `json:"is_global"`
}
