package workers

import "context"

// Pool limits the number of concurrently executing CPU-bound tasks.
// Submission blocks until a slot is free or the caller's context is done,
// so a burst of expensive images cannot stall unrelated goroutines.
type Pool struct {
	slots chan struct{}
}

// NewPool creates a pool with the given capacity. Capacity below 1 is
// raised to 1.
func NewPool(capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{slots: make(chan struct{}, capacity)}
}

// Capacity returns the maximum number of concurrent tasks.
func (p *Pool) Capacity() int {
	return cap(p.slots)
}

// Do runs fn in the calling goroutine once a slot is available. It returns
// the context error if ctx is done before a slot frees up; fn is not run in
// that case.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()
	return fn()
}
