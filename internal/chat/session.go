package chat

import (
	"fmt"
	"time"

	"github.com/user/cortexdash/internal/cancel"
	"github.com/user/cortexdash/internal/types"
)

// Phase is the lifecycle state of a chat exchange.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseOpening   Phase = "opening"
	PhaseStreaming Phase = "streaming"
	PhaseCompleted Phase = "completed"
	PhaseCancelled Phase = "cancelled"
	PhaseErrored   Phase = "errored"
)

// Active reports whether the exchange is still in flight.
func (p Phase) Active() bool {
	return p == PhaseOpening || p == PhaseStreaming
}

// Terminal reports whether the exchange has ended.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled || p == PhaseErrored
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// CancelledMarker is appended to the display of an answer the user stopped.
const CancelledMarker = "[response cancelled]"

// Message is one entry in the conversation.
type Message struct {
	ID        types.MessageID
	Role      Role
	Content   string
	Sources   []types.Source
	Phase     Phase
	Err       string
	SessionID types.SessionID
	CreatedAt time.Time
}

// Display renders the message text with a marker for cancelled or failed
// answers. Partial content is always kept.
func (m Message) Display() string {
	var marker string
	switch m.Phase {
	case PhaseCancelled:
		marker = CancelledMarker
	case PhaseErrored:
		marker = fmt.Sprintf("[error: %s]", m.Err)
	default:
		return m.Content
	}
	if m.Content == "" {
		return marker
	}
	return m.Content + "\n\n" + marker
}

// Session is one question/answer exchange. Content only grows while the
// session is Streaming and is frozen once it reaches a terminal phase.
type Session struct {
	ID         types.SessionID
	Question   string
	QuestionID types.MessageID
	AnswerID   types.MessageID
	Content    string
	Sources    []types.Source
	Phase      Phase
	Err        error
	Fallback   bool
	StartedAt  time.Time
	EndedAt    time.Time

	token    *cancel.Token
	stopTick chan struct{}
}

// Elapsed returns how long the session has been running, or ran.
func (s Session) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if !s.EndedAt.IsZero() {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

func (s *Session) snapshot() Session {
	c := *s
	c.Sources = append([]types.Source(nil), s.Sources...)
	c.token = nil
	c.stopTick = nil
	return c
}
