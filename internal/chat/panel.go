// Package chat runs question/answer exchanges against the backend's chat
// endpoint with incremental delivery and mid-flight cancellation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/user/cortexdash/internal/cancel"
	"github.com/user/cortexdash/internal/types"
	"github.com/user/cortexdash/pkg/cortexapi"
)

var (
	// ErrBusy is returned when a new exchange is requested while one is in
	// flight. Requests are refused, not queued.
	ErrBusy = errors.New("a response is already in progress")
	// ErrNoSuchMessage is returned for an unknown message id.
	ErrNoSuchMessage = errors.New("no such message")
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("chat panel closed")
	// ErrStreamClosed is the error for a stream that ended without a done
	// or error event.
	ErrStreamClosed = errors.New("stream closed before completion")
)

// Transport is the backend chat API.
type Transport interface {
	AskStream(ctx context.Context, project, question string) (<-chan cortexapi.StreamEvent, error)
	Ask(ctx context.Context, project, question string) (*cortexapi.ChatResponse, error)
}

// Options configures a Panel.
type Options struct {
	// Project returns the project questions are asked about.
	Project func() string
	// Timeout bounds a whole exchange. Zero means no limit.
	Timeout time.Duration
	// TickInterval is how often observers are told about elapsed time while
	// a session is in flight.
	TickInterval time.Duration
	Logger       *slog.Logger
}

// Panel holds a conversation and at most one in-flight Session.
type Panel struct {
	transport Transport
	project   func() string
	timeout   time.Duration
	tick      time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	messages  []Message
	active    *Session
	closed    bool
	observers []func(Session)
}

// NewPanel creates an idle panel.
func NewPanel(transport Transport, opts Options) *Panel {
	if opts.Project == nil {
		opts.Project = func() string { return "" }
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Panel{
		transport: transport,
		project:   opts.Project,
		timeout:   opts.Timeout,
		tick:      opts.TickInterval,
		logger:    opts.Logger.With("component", "chat"),
	}
}

// OnChange registers an observer called with a copy of the session after
// every chunk, sources update, phase change and elapsed-time tick.
func (p *Panel) OnChange(fn func(Session)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

func (p *Panel) notify(sess *Session) {
	p.mu.Lock()
	snap := sess.snapshot()
	obs := p.observers
	p.mu.Unlock()
	for _, fn := range obs {
		fn(snap)
	}
}

// Messages returns a copy of the conversation.
func (p *Panel) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	for i, m := range p.messages {
		m.Sources = append([]types.Source(nil), m.Sources...)
		out[i] = m
	}
	return out
}

// Current returns the most recent session, if any.
func (p *Panel) Current() (Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return Session{}, false
	}
	return p.active.snapshot(), true
}

// Phase returns the phase of the most recent session, or Idle.
func (p *Panel) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return PhaseIdle
	}
	return p.active.Phase
}

// Send asks question. It returns ErrBusy while another session is Opening
// or Streaming. The exchange runs in the background; ctx supplies values
// only and does not bound it (use Cancel).
func (p *Panel) Send(ctx context.Context, question string) (types.SessionID, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	p.mu.Lock()
	if err := p.checkIdleLocked(); err != nil {
		p.mu.Unlock()
		return "", err
	}
	q := Message{
		ID:        types.NewMessageID(),
		Role:      RoleUser,
		Content:   question,
		CreatedAt: time.Now(),
	}
	p.messages = append(p.messages, q)
	sess := p.startLocked(ctx, q)
	p.mu.Unlock()

	p.notify(sess)
	return sess.ID, nil
}

// Regenerate discards everything after the question that messageID belongs
// to and asks it again. messageID may name the question or its answer.
func (p *Panel) Regenerate(ctx context.Context, messageID types.MessageID) (types.SessionID, error) {
	return p.resend(ctx, messageID, nil)
}

// EditAndResend rewrites the question that messageID belongs to, discards
// everything after it and asks the new text.
func (p *Panel) EditAndResend(ctx context.Context, messageID types.MessageID, content string) (types.SessionID, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyQuestion
	}
	return p.resend(ctx, messageID, &content)
}

func (p *Panel) resend(ctx context.Context, messageID types.MessageID, edit *string) (types.SessionID, error) {
	p.mu.Lock()
	if err := p.checkIdleLocked(); err != nil {
		p.mu.Unlock()
		return "", err
	}
	qi := p.questionIndexLocked(messageID)
	if qi < 0 {
		p.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrNoSuchMessage, messageID)
	}
	if edit != nil {
		p.messages[qi].Content = *edit
	}
	p.messages = p.messages[:qi+1]
	sess := p.startLocked(ctx, p.messages[qi])
	p.mu.Unlock()

	p.notify(sess)
	return sess.ID, nil
}

// Cancel stops the in-flight session. The partial content is kept and the
// session ends Cancelled. It reports false when nothing was in flight.
func (p *Panel) Cancel() bool {
	p.mu.Lock()
	sess := p.active
	p.mu.Unlock()
	if sess == nil {
		return false
	}
	return sess.token.Cancel() && p.phaseOf(sess) == PhaseCancelled
}

// Close cancels any in-flight session and refuses new ones.
func (p *Panel) Close() {
	p.mu.Lock()
	p.closed = true
	sess := p.active
	p.mu.Unlock()
	if sess != nil {
		sess.token.Cancel()
	}
}

func (p *Panel) checkIdleLocked() error {
	if p.closed {
		return ErrClosed
	}
	if p.active != nil && p.active.Phase.Active() {
		return ErrBusy
	}
	return nil
}

// questionIndexLocked resolves messageID to the index of its question.
func (p *Panel) questionIndexLocked(messageID types.MessageID) int {
	idx := -1
	for i := range p.messages {
		if p.messages[i].ID == messageID {
			idx = i
			break
		}
	}
	for ; idx >= 0; idx-- {
		if p.messages[idx].Role == RoleUser {
			return idx
		}
	}
	return -1
}

// startLocked appends the pending answer, creates the session and starts it.
// Caller holds mu.
func (p *Panel) startLocked(ctx context.Context, q Message) *Session {
	sess := &Session{
		ID:         types.NewSessionID(),
		Question:   q.Content,
		QuestionID: q.ID,
		AnswerID:   types.NewMessageID(),
		Phase:      PhaseOpening,
		StartedAt:  time.Now(),
		token:      cancel.New(),
		stopTick:   make(chan struct{}),
	}
	p.messages = append(p.messages, Message{
		ID:        sess.AnswerID,
		Role:      RoleAssistant,
		Phase:     PhaseOpening,
		SessionID: sess.ID,
		CreatedAt: sess.StartedAt,
	})
	p.active = sess

	// Freeze first, then abort the request.
	sess.token.OnCancel(func() { p.finish(sess, PhaseCancelled, nil) })
	runCtx, release := sess.token.Bind(context.WithoutCancel(ctx))
	if p.timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, p.timeout)
		prev := release
		release = func() { cancelTimeout(); prev() }
	}

	go p.tickLoop(sess)
	go p.run(runCtx, release, sess, p.project())
	p.logger.Info("chat session started", "session_id", sess.ID, "question_len", len(sess.Question))
	return sess
}

func (p *Panel) run(ctx context.Context, release context.CancelFunc, sess *Session, project string) {
	defer release()

	events, err := p.transport.AskStream(ctx, project, sess.Question)
	if err != nil {
		if sess.token.Cancelled() {
			return
		}
		p.logger.Warn("chat stream unavailable, falling back to single request", "session_id", sess.ID, "error", err)
		p.fallback(ctx, sess, project)
		return
	}
	if !p.advance(sess, PhaseOpening, PhaseStreaming) {
		return
	}

	for ev := range events {
		switch ev.Type {
		case cortexapi.StreamChunk:
			p.appendChunk(sess, ev.Content)
		case cortexapi.StreamSources:
			p.setSources(sess, ev.Sources)
		case cortexapi.StreamDone:
			p.finish(sess, PhaseCompleted, nil)
		case cortexapi.StreamError:
			p.finish(sess, PhaseErrored, errors.New(ev.Error))
		}
	}

	// no terminal event arrived
	if err := ctx.Err(); err != nil && !sess.token.Cancelled() {
		p.finish(sess, PhaseErrored, err)
		return
	}
	p.finish(sess, PhaseErrored, ErrStreamClosed)
}

// fallback answers with one non-streaming request. The answer is applied in
// a single step.
func (p *Panel) fallback(ctx context.Context, sess *Session, project string) {
	p.mu.Lock()
	sess.Fallback = true
	p.mu.Unlock()

	resp, err := p.transport.Ask(ctx, project, sess.Question)
	if err != nil {
		p.finish(sess, PhaseErrored, err)
		return
	}
	if resp.Answer == "" && resp.Error != "" {
		p.finish(sess, PhaseErrored, errors.New(resp.Error))
		return
	}

	p.mu.Lock()
	if sess.Phase != PhaseOpening {
		p.mu.Unlock()
		return
	}
	sess.Phase = PhaseStreaming
	sess.Content = resp.Answer
	sess.Sources = resp.Sources
	p.syncAnswerLocked(sess)
	p.mu.Unlock()

	p.finish(sess, PhaseCompleted, nil)
}

func (p *Panel) advance(sess *Session, from, to Phase) bool {
	p.mu.Lock()
	if sess.Phase != from {
		p.mu.Unlock()
		return false
	}
	sess.Phase = to
	p.syncAnswerLocked(sess)
	p.mu.Unlock()
	p.notify(sess)
	return true
}

func (p *Panel) appendChunk(sess *Session, chunk string) {
	p.mu.Lock()
	if sess.Phase != PhaseStreaming {
		p.mu.Unlock()
		return
	}
	sess.Content += chunk
	p.syncAnswerLocked(sess)
	p.mu.Unlock()
	p.notify(sess)
}

func (p *Panel) setSources(sess *Session, sources []types.Source) {
	p.mu.Lock()
	if sess.Phase != PhaseStreaming {
		p.mu.Unlock()
		return
	}
	sess.Sources = append([]types.Source(nil), sources...)
	p.syncAnswerLocked(sess)
	p.mu.Unlock()
	p.notify(sess)
}

// finish moves sess to a terminal phase. Only the first call has effect.
func (p *Panel) finish(sess *Session, phase Phase, err error) bool {
	p.mu.Lock()
	if sess.Phase.Terminal() {
		p.mu.Unlock()
		return false
	}
	sess.Phase = phase
	sess.Err = err
	sess.EndedAt = time.Now()
	close(sess.stopTick)
	p.syncAnswerLocked(sess)
	fallback, elapsed := sess.Fallback, sess.EndedAt.Sub(sess.StartedAt)
	p.mu.Unlock()

	switch phase {
	case PhaseErrored:
		p.logger.Error("chat session failed", "session_id", sess.ID, "fallback", fallback, "error", err)
	default:
		p.logger.Info("chat session ended", "session_id", sess.ID, "phase", phase, "fallback", fallback, "elapsed", elapsed)
	}
	p.notify(sess)
	return true
}

func (p *Panel) phaseOf(sess *Session) Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sess.Phase
}

// syncAnswerLocked copies session state onto its answer message.
func (p *Panel) syncAnswerLocked(sess *Session) {
	for i := len(p.messages) - 1; i >= 0; i-- {
		m := &p.messages[i]
		if m.ID != sess.AnswerID {
			continue
		}
		m.Content = sess.Content
		m.Sources = append([]types.Source(nil), sess.Sources...)
		m.Phase = sess.Phase
		if sess.Err != nil {
			m.Err = sess.Err.Error()
		}
		return
	}
}

func (p *Panel) tickLoop(sess *Session) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-sess.stopTick:
			return
		case <-ticker.C:
			p.notify(sess)
		}
	}
}
