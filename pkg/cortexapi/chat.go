package cortexapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// ErrStreamUnavailable means the chat stream could not be opened. Callers
// fall back to Ask.
var ErrStreamUnavailable = errors.New("chat stream unavailable")

// Ask sends a single-shot chat request and returns the whole answer.
func (c *Client) Ask(ctx context.Context, project, question string) (*ChatResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat", nil, ChatRequest{Project: project, Question: question})
	if err != nil {
		return nil, err
	}
	var resp ChatResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	return &resp, nil
}

// AskStream opens the chat stream and returns a channel of incremental
// events. The channel is closed after a done or error event, when the body
// ends, or when ctx is cancelled. Failing to open the stream returns an
// error wrapping ErrStreamUnavailable.
func (c *Client) AskStream(ctx context.Context, project, question string) (<-chan StreamEvent, error) {
	query := url.Values{}
	query.Set("project", project)
	query.Set("question", question)
	req, err := c.newRequest(ctx, http.MethodGet, "/api/chat/stream", query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %w", ErrStreamUnavailable, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))})
	}

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		if err := processStream(ctx, resp.Body, ch); err != nil && ctx.Err() == nil {
			slog.Warn("chat stream ended", "error", err)
		}
	}()
	return ch, nil
}

// processStream reads "data: {json}" lines and forwards each event. It
// returns after a terminal event, at end of input, or when ctx is done.
func processStream(ctx context.Context, body io.Reader, out chan<- StreamEvent) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	send := func(ev StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
		if data == "[DONE]" {
			send(StreamEvent{Type: StreamDone})
			return nil
		}

		var ev StreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			slog.Debug("skipping malformed stream event", "error", err)
			continue
		}
		switch ev.Type {
		case StreamChunk, StreamSources:
			if !send(ev) {
				return ctx.Err()
			}
		case StreamDone:
			send(ev)
			return nil
		case StreamError:
			send(ev)
			return fmt.Errorf("stream error: %s", ev.Error)
		default:
			slog.Debug("skipping unknown stream event", "type", ev.Type)
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		send(StreamEvent{Type: StreamError, Error: err.Error()})
		return fmt.Errorf("reading stream: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	send(StreamEvent{Type: StreamError, Error: "stream ended before completion"})
	return io.ErrUnexpectedEOF
}
