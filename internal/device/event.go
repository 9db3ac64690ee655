package device

import (
	"context"
	"sync"
)

// Event is a reusable completion marker.
// A fresh or Reset event is signaled; Record arms it and it is signaled again once
// the work queued before it has completed.
type Event struct {
	mu       sync.Mutex
	done     chan struct{}
	signaled bool
	err      error
}

// NewEvent creates a signaled event.
func NewEvent() *Event {
	e := &Event{}
	e.Reset()
	return e
}

// Record arms the event on order. On a host order all prior work has already
// completed, so the event is signaled immediately.
func (e *Event) Record(order Order) error {
	if order.IsDevice() {
		return order.stream.Record(e)
	}
	e.arm()
	e.signal(nil)
	return nil
}

// Query reports whether the event is signaled.
func (e *Event) Query() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled
}

// Wait blocks until the event is signaled or ctx is done.
// It returns the error of the work the event guards.
func (e *Event) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	select {
	case <-done:
		return e.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the error recorded when the event was signaled.
func (e *Event) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Reset returns the event to the signaled state with no error, releasing any waiters.
func (e *Event) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.done == nil:
		e.done = make(chan struct{})
		close(e.done)
	case !e.signaled:
		close(e.done)
	}
	e.signaled = true
	e.err = nil
}

func (e *Event) arm() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signaled {
		e.done = make(chan struct{})
		e.signaled = false
	}
	e.err = nil
}

func (e *Event) signal(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signaled {
		return
	}
	e.err = err
	e.signaled = true
	close(e.done)
}
