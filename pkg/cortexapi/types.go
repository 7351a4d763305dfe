package cortexapi

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/user/cortexdash/internal/types"
)

// Filter narrows a memory listing. Zero values are omitted from the query.
type Filter struct {
	Type          string
	Status        string
	Tags          []string
	Search        string
	MinImportance *int
	MaxImportance *int
	Sort          types.Sort
	Limit         int
	Offset        int
}

func (f Filter) query(project string) url.Values {
	q := url.Values{}
	q.Set("project", project)
	if f.Type != "" {
		q.Set("type", f.Type)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if len(f.Tags) > 0 {
		q.Set("tags", strings.Join(f.Tags, ","))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.MinImportance != nil {
		q.Set("min_importance", strconv.Itoa(*f.MinImportance))
	}
	if f.MaxImportance != nil {
		q.Set("max_importance", strconv.Itoa(*f.MaxImportance))
	}
	if f.Sort.By != "" {
		q.Set("sort_by", string(f.Sort.By))
	}
	if f.Sort.Order != "" {
		q.Set("sort_order", string(f.Sort.Order))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q
}

// Stats summarises a project's memories.
type Stats struct {
	TotalCount       int            `json:"total_count"`
	ByType           map[string]int `json:"by_type"`
	ByStatus         map[string]int `json:"by_status"`
	AvgImportance    float64        `json:"avg_importance"`
	TotalAccessCount int            `json:"total_access_count"`
	Tags             []TagCount     `json:"tags"`
}

type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Health is the /health response.
type Health struct {
	Status               string `json:"status"`
	WebsocketConnections int    `json:"websocket_connections"`
}

// ChatRequest asks a question about a project's memories.
type ChatRequest struct {
	Project  string `json:"project"`
	Question string `json:"question"`
}

// ChatResponse is the single-shot chat answer.
type ChatResponse struct {
	Answer  string         `json:"answer"`
	Sources []types.Source `json:"sources"`
	Error   string         `json:"error,omitempty"`
}

// StreamEventType labels one event on the chat stream.
type StreamEventType string

const (
	StreamChunk   StreamEventType = "chunk"
	StreamSources StreamEventType = "sources"
	StreamDone    StreamEventType = "done"
	StreamError   StreamEventType = "error"
)

// StreamEvent is one decoded chat stream event.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`
	Sources []types.Source  `json:"sources,omitempty"`
	Error   string          `json:"error,omitempty"`
}
