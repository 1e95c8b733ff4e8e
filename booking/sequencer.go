package booking

import (
	"context"
	"sync"
)

// Sequencer enforces last-request-wins for one session.
//
// Every search or pricing request takes a new, strictly increasing
// sequence number. Starting a request cancels the context of the one
// before it, and a finished request may only be applied while its number
// is still the latest.
type Sequencer struct {
	mu     sync.Mutex
	latest uint64
	cancel context.CancelFunc
}

func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Begin starts a request. The returned release func must be called when the
// request finishes; it frees the derived context without affecting newer
// requests.
func (q *Sequencer) Begin(parent context.Context) (context.Context, uint64, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}
	q.latest++
	q.cancel = cancel
	return ctx, q.latest, cancel
}

// IsCurrent reports whether seq is still the latest request.
func (q *Sequencer) IsCurrent(seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return seq == q.latest
}

// Current returns the latest issued sequence number.
func (q *Sequencer) Current() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.latest
}

// Invalidate cancels the in-flight request and makes every issued number
// stale.
func (q *Sequencer) Invalidate() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	q.latest++
}
