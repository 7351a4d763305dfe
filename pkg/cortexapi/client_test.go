package cortexapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/cortexdash/internal/types"
)

func TestListMemoriesQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/memories", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "/db/cortex.db", q.Get("project"))
		assert.Equal(t, "decision", q.Get("type"))
		assert.Equal(t, "go,api", q.Get("tags"))
		assert.Equal(t, "70", q.Get("min_importance"))
		assert.Equal(t, "importance_score", q.Get("sort_by"))
		assert.Equal(t, "asc", q.Get("sort_order"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":"m1","content":"x","type":"decision","created_at":"2025-01-01T00:00:00"}]`)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL + "/", Token: "secret"})
	minImp := 70
	records, err := c.ListMemories(context.Background(), "/db/cortex.db", Filter{
		Type:          "decision",
		Tags:          []string{"go", "api"},
		MinImportance: &minImp,
		Sort:          types.Sort{By: types.SortImportance, Order: types.SortAsc},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.DefaultImportance, records[0].ImportanceScore)
}

func TestLoadRecordsPages(t *testing.T) {
	total := pageSize + 3
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		var page []types.Record
		for i := offset; i < total && i < offset+limit; i++ {
			page = append(page, types.Record{ID: types.RecordID(fmt.Sprintf("m%d", i))})
		}
		if page == nil {
			page = []types.Record{}
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	records, err := New(Config{BaseURL: server.URL}).LoadRecords(context.Background(), "p", types.DefaultSort())
	require.NoError(t, err)
	assert.Len(t, records, total)
}

func TestGetRecordNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Memory not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(Config{BaseURL: server.URL}).GetRecord(context.Background(), "p", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestUpdateAndDeleteRecord(t *testing.T) {
	var methods []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut {
			var body types.Record
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, 90, body.ImportanceScore)
			json.NewEncoder(w).Encode(body)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	out, err := c.UpdateRecord(context.Background(), "p", types.Record{ID: "m1", ImportanceScore: 90})
	require.NoError(t, err)
	assert.Equal(t, types.RecordID("m1"), out.ID)
	require.NoError(t, c.DeleteRecord(context.Background(), "p", "m1"))

	assert.Equal(t, []string{"PUT /api/memories/m1", "DELETE /api/memories/m1"}, methods)
}

func TestAsk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what changed?", req.Question)
		fmt.Fprint(w, `{"answer":"Hello world","sources":[{"id":"m1","type":"decision","content_preview":"x","tags":["a"]}]}`)
	}))
	defer server.Close()

	resp, err := New(Config{BaseURL: server.URL}).Ask(context.Background(), "p", "what changed?")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, types.RecordID("m1"), resp.Sources[0].ID)
}

func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n\n", l)
			flusher.Flush()
		}
	}))
}

func collect(t *testing.T, ch <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestAskStream(t *testing.T) {
	server := sseServer(t,
		`data: {"type":"chunk","content":"Hi"}`,
		`: keepalive comment`,
		`data: {"type":"sources","sources":[{"id":"m1","type":"general","content_preview":"p","tags":[]}]}`,
		`data: {"type":"chunk","content":" there"}`,
		`data: not json`,
		`data: {"type":"done"}`,
		`data: {"type":"chunk","content":"ignored"}`,
	)
	defer server.Close()

	ch, err := New(Config{BaseURL: server.URL}).AskStream(context.Background(), "p", "q")
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 4)
	assert.Equal(t, StreamChunk, events[0].Type)
	assert.Equal(t, StreamSources, events[1].Type)
	assert.Equal(t, " there", events[2].Content)
	assert.Equal(t, StreamDone, events[3].Type)
}

func TestAskStreamTruncatedBody(t *testing.T) {
	server := sseServer(t, `data: {"type":"chunk","content":"partial"}`)
	defer server.Close()

	ch, err := New(Config{BaseURL: server.URL}).AskStream(context.Background(), "p", "q")
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 2)
	assert.Equal(t, StreamError, events[1].Type)
}

func TestAskStreamOpenFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no streaming here", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(Config{BaseURL: server.URL}).AskStream(context.Background(), "p", "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStreamUnavailable)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = New(Config{BaseURL: "http://127.0.0.1:1"}).AskStream(context.Background(), "p", "q")
	assert.ErrorIs(t, err, ErrStreamUnavailable)
}

func TestAskStreamCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"chunk\",\"content\":\"Hi\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := New(Config{BaseURL: server.URL}).AskStream(ctx, "p", "q")
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "Hi", first.Content)
	cancel()

	for ev := range ch {
		assert.NotEqual(t, StreamDone, ev.Type)
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"healthy","websocket_connections":2}`)
	}))
	defer server.Close()

	h, err := New(Config{BaseURL: server.URL}).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, 2, h.WebsocketConnections)
}

func TestTagsAndTypes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/cortex.db", r.URL.Query().Get("project"))
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `[{"name":"go","count":3},{"name":"sqlite","count":1}]`)
		case "/api/types":
			fmt.Fprint(w, `{"decision":2,"solution":5}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	c := New(Config{BaseURL: server.URL})

	tags, err := c.Tags(context.Background(), "/data/cortex.db")
	require.NoError(t, err)
	assert.Equal(t, []TagCount{{Name: "go", Count: 3}, {Name: "sqlite", Count: 1}}, tags)

	dist, err := c.Types(context.Background(), "/data/cortex.db")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"decision": 2, "solution": 5}, dist)
}
