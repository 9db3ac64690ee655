package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/eapache/queue"
)

// ErrStreamClosed is returned when work is queued on a closed stream.
var ErrStreamClosed = errors.New("stream is closed")

// task is one unit of stream work: an operation, an event to signal, or an event to wait for.
type task struct {
	run    func() error
	signal *Event
	wait   *Event
	keep   bool // signal without clearing the pending error
}

// Stream executes queued work in strict FIFO order on its own goroutine.
// An operation error is sticky: it is delivered to the next recorded event and
// then cleared.
type Stream struct {
	deviceID int

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  *queue.Queue
	closed bool
	done   chan struct{}

	err error // owned by the run goroutine
}

// NewStream starts a stream bound to device id.
func NewStream(deviceID int) *Stream {
	s := &Stream{
		deviceID: deviceID,
		tasks:    queue.New(),
		done:     make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// DeviceID returns the device the stream is bound to.
func (s *Stream) DeviceID() int { return s.deviceID }

// Order returns the execution order that queues work on this stream.
func (s *Stream) Order() Order {
	return Order{kind: orderDevice, stream: s}
}

// Enqueue queues fn after all previously queued work.
func (s *Stream) Enqueue(fn func() error) error {
	return s.push(&task{run: fn})
}

// Record arms e and queues its signal after all previously queued work.
func (s *Stream) Record(e *Event) error {
	e.arm()
	if err := s.push(&task{signal: e}); err != nil {
		e.signal(err)
		return err
	}
	return nil
}

// Mark is Record for observers that do not own the stream: e carries the
// pending error but the error stays pending for the next Record.
func (s *Stream) Mark(e *Event) error {
	e.arm()
	if err := s.push(&task{signal: e, keep: true}); err != nil {
		e.signal(err)
		return err
	}
	return nil
}

// WaitEvent makes later work on the stream wait until e is signaled.
// A failure recorded on e becomes this stream's pending error.
func (s *Stream) WaitEvent(e *Event) error {
	return s.push(&task{wait: e})
}

// Synchronize blocks until all work queued so far has completed and returns its error.
func (s *Stream) Synchronize(ctx context.Context) error {
	e := NewEvent()
	if err := s.Record(e); err != nil {
		return err
	}
	return e.Wait(ctx)
}

// Close stops accepting work, drains what is queued and waits for the goroutine to exit.
// Close is idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.cond.Broadcast()
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Stream) push(t *task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.tasks.Add(t)
	s.cond.Signal()
	return nil
}

func (s *Stream) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for s.tasks.Length() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.tasks.Length() == 0 {
			s.mu.Unlock()
			return
		}
		t := s.tasks.Remove().(*task)
		s.mu.Unlock()

		s.execute(t)
	}
}

func (s *Stream) execute(t *task) {
	switch {
	case t.run != nil:
		if err := safeRun(t.run); err != nil && s.err == nil {
			s.err = err
		}
	case t.wait != nil:
		if err := t.wait.Wait(context.Background()); err != nil && s.err == nil {
			s.err = err
		}
	case t.signal != nil:
		t.signal.signal(s.err)
		if !t.keep {
			s.err = nil
		}
	}
}

// safeRun turns a panicking operation into an error so the stream keeps running.
func safeRun(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stream task panicked: %v", r)
		}
	}()
	return fn()
}
