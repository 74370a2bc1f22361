// Package regulator bounds how many workers may run at once. It is a
// counting semaphore with context-aware acquisition and an acquisition
// timeout, shared by every component that starts model-driven work.
package regulator

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrExhausted is returned when no capacity frees up within the
// acquisition timeout.
var ErrExhausted = errors.New("regulator: capacity exhausted")

// Token represents one held unit of capacity. Release returns it to
// the regulator; releasing twice is a no-op.
type Token struct {
	once sync.Once
	r    *Regulator
}

// Release returns the token's capacity unit. It never blocks.
func (t *Token) Release() {
	t.once.Do(func() {
		<-t.r.slots
	})
}

// Regulator is a fixed-capacity counting semaphore.
type Regulator struct {
	slots   chan struct{}
	timeout time.Duration
}

// New creates a regulator with the given capacity. Capacity below one
// is clamped to one. A non-positive timeout means Acquire waits only
// on the caller's context.
func New(capacity int, acquireTimeout time.Duration) *Regulator {
	if capacity < 1 {
		capacity = 1
	}
	return &Regulator{
		slots:   make(chan struct{}, capacity),
		timeout: acquireTimeout,
	}
}

// Acquire blocks until a capacity unit is free, the context is
// canceled, or the acquisition timeout elapses. On success the caller
// owns the returned token and must Release it.
func (r *Regulator) Acquire(ctx context.Context) (*Token, error) {
	var timeout <-chan time.Time
	if r.timeout > 0 {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r.slots <- struct{}{}:
		return &Token{r: r}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, ErrExhausted
	}
}

// Capacity returns the configured maximum number of holders.
func (r *Regulator) Capacity() int {
	return cap(r.slots)
}

// InUse returns the number of currently held tokens.
func (r *Regulator) InUse() int {
	return len(r.slots)
}
