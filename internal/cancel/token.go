// Package cancel provides the abort primitive shared by the connection
// manager, the reconciler and the chat panel.
package cancel

import (
	"context"
	"sync"
	"sync/atomic"
)

// Token is a one-shot cancellation signal. It is safe for concurrent use and
// is passed by pointer so every holder observes the same state.
type Token struct {
	cancelled atomic.Bool

	mu        sync.Mutex
	callbacks []func()
}

// New returns an uncancelled token.
func New() *Token {
	return &Token{}
}

// Cancel marks the token cancelled and runs every registered callback once,
// in registration order, on the calling goroutine. It returns true only for
// the call that performed the cancellation.
func (t *Token) Cancel() bool {
	t.mu.Lock()
	if !t.cancelled.CompareAndSwap(false, true) {
		t.mu.Unlock()
		return false
	}
	cbs := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	for _, fn := range cbs {
		fn()
	}
	return true
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// OnCancel registers fn to run on cancellation. If the token is already
// cancelled fn runs immediately.
func (t *Token) OnCancel(fn func()) {
	t.mu.Lock()
	if t.cancelled.Load() {
		t.mu.Unlock()
		fn()
		return
	}
	t.callbacks = append(t.callbacks, fn)
	t.mu.Unlock()
}

// Bind derives a context that is cancelled together with the token. The
// returned CancelFunc releases the context without cancelling the token.
func (t *Token) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	t.OnCancel(cancel)
	return ctx, cancel
}
