// internal/dispatch/dispatcher.go
package dispatch

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/user/cortexdash/internal/types"
)

// Handler consumes one decoded live event.
type Handler func(ev types.InboundEvent)

// Stats counts frames by outcome.
type Stats struct {
	Received  int
	Malformed int
	Unknown   int
	ByType    map[string]int
}

// Dispatcher decodes raw live frames and routes them to the handler
// registered for their event type. Frames are handled one at a time on the
// caller's goroutine, so handlers see events in arrival order.
type Dispatcher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	statsMu sync.Mutex
	stats   Stats
}

// New creates an empty dispatcher. A nil logger means slog.Default().
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger.With("component", "dispatch"),
		handlers: make(map[string]Handler),
		stats:    Stats{ByType: make(map[string]int)},
	}
}

// Handle registers handler for eventType, replacing any earlier one.
func (d *Dispatcher) Handle(eventType string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = handler
}

// Dispatch decodes raw and routes it. Malformed frames and frames without an
// event type are logged and dropped; unknown types are ignored. A panicking
// handler is recovered so one bad event cannot stop the stream.
func (d *Dispatcher) Dispatch(raw []byte) {
	d.count(func(s *Stats) { s.Received++ })

	var ev types.InboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		d.count(func(s *Stats) { s.Malformed++ })
		d.logger.Warn("dropping malformed frame", "error", err, "frame", preview(raw))
		return
	}
	if ev.EventType == "" {
		d.count(func(s *Stats) { s.Malformed++ })
		d.logger.Warn("dropping frame without event_type", "frame", preview(raw))
		return
	}

	d.mu.RLock()
	handler, ok := d.handlers[ev.EventType]
	d.mu.RUnlock()
	if !ok {
		d.count(func(s *Stats) { s.Unknown++ })
		d.logger.Debug("ignoring unknown event", "event_type", ev.EventType)
		return
	}

	d.count(func(s *Stats) { s.ByType[ev.EventType]++ })
	d.invoke(handler, ev)
}

func (d *Dispatcher) invoke(handler Handler, ev types.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked", "event_type", ev.EventType, "panic", r)
		}
	}()
	handler(ev)
}

// Stats returns a copy of the frame counters.
func (d *Dispatcher) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	out := d.stats
	out.ByType = make(map[string]int, len(d.stats.ByType))
	for k, v := range d.stats.ByType {
		out.ByType[k] = v
	}
	return out
}

func (d *Dispatcher) count(fn func(*Stats)) {
	d.statsMu.Lock()
	fn(&d.stats)
	d.statsMu.Unlock()
}

func preview(raw []byte) string {
	const limit = 120
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
