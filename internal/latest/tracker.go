package latest

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Token identifies one request issued by a Tracker
type Token string

// Tracker guards asynchronous requests so that only the newest one may apply its result.
// Beginning a new request cancels the context of the previous one.
type Tracker struct {
	mu      sync.Mutex
	current Token
	cancel  context.CancelFunc
}

// NewTracker creates an idle tracker
func NewTracker() *Tracker {
	return &Tracker{}
}

// Begin starts a new request, superseding and canceling any previous one
func (t *Tracker) Begin(ctx context.Context) (context.Context, Token) {
	reqCtx, cancel := context.WithCancel(ctx)
	token := Token(uuid.NewString())

	t.mu.Lock()
	prev := t.cancel
	t.current = token
	t.cancel = cancel
	t.mu.Unlock()

	if prev != nil {
		prev()
	}
	return reqCtx, token
}

// IsCurrent reports whether token belongs to the newest request
func (t *Tracker) IsCurrent(token Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return token != "" && token == t.current
}

// Commit runs apply only if token is still current; stale results are dropped.
// apply runs under the tracker lock so a concurrent Begin cannot interleave.
func (t *Tracker) Commit(token Token, apply func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if token == "" || token != t.current {
		return false
	}
	apply()
	return true
}

// Stop cancels the current request, if any
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.current = ""
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
