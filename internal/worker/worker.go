// Package worker provides a single background goroutine owned by one component,
// used for ancillary asynchronous bookkeeping such as deferred buffer recycling.
package worker

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/eapache/queue"
)

// ErrStopped is returned when work is submitted to a stopped thread.
var ErrStopped = errors.New("worker thread is stopped")

// Thread runs submitted tasks one at a time, in submission order.
type Thread struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	stopped bool

	ready chan struct{}
	done  chan struct{}
}

// Start launches a thread. A nil logger uses slog.Default().
func Start(name string, logger *slog.Logger) *Thread {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Thread{
		name:   name,
		logger: logger,
		tasks:  queue.New(),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)
	go t.run()
	return t
}

// WaitForInit blocks until the goroutine is running.
func (t *Thread) WaitForInit() {
	<-t.ready
}

// Do queues task for execution.
func (t *Thread) Do(task func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return ErrStopped
	}
	t.tasks.Add(task)
	t.cond.Signal()
	return nil
}

// Pending returns the number of queued tasks not yet started.
func (t *Thread) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tasks.Length()
}

// ForceStop stops the thread, dropping tasks that have not started.
// It is idempotent and safe to call with no pending work.
func (t *Thread) ForceStop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if n := t.tasks.Length(); n > 0 {
		t.logger.Debug("worker: dropping pending tasks", "worker", t.name, "count", n)
		t.tasks = queue.New()
	}
	t.cond.Broadcast()
}

// Shutdown stops accepting work, lets queued tasks finish and joins the goroutine.
// It is idempotent and may follow ForceStop.
func (t *Thread) Shutdown() {
	t.mu.Lock()
	if !t.stopped {
		t.stopped = true
		t.cond.Broadcast()
	}
	t.mu.Unlock()
	<-t.done
}

func (t *Thread) run() {
	defer close(t.done)
	close(t.ready)
	for {
		t.mu.Lock()
		for t.tasks.Length() == 0 && !t.stopped {
			t.cond.Wait()
		}
		if t.tasks.Length() == 0 {
			t.mu.Unlock()
			return
		}
		task := t.tasks.Remove().(func())
		t.mu.Unlock()

		t.execute(task)
	}
}

func (t *Thread) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("worker: task panicked", "worker", t.name, "panic", r)
		}
	}()
	task()
}
