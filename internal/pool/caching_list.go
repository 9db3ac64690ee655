// Package pool provides the recycling queue that lets producers and consumers
// exchange pooled containers instead of building new ones every cycle.
package pool

import (
	"errors"

	"github.com/eapache/queue"
)

var (
	// ErrEmpty is returned when the consumer-visible queue has nothing to read.
	ErrEmpty = errors.New("queue is empty")
	// ErrProphetExhausted is returned when the look-ahead cursor runs past the last queued item.
	ErrProphetExhausted = errors.New("prophet cursor is past the last queued item")
)

// Stats describes CachingList usage.
type Stats struct {
	Allocated int // items created by the constructor function
	Reused    int // GetEmpty calls served from the free list
	Queued    int // items currently visible to consumers
	Free      int // items currently idle in the free list
}

// CachingList is a FIFO of pooled items with a free list for reuse.
//
// An item is always in exactly one place: the free list, a producer's hands
// (between GetEmpty and PushBack), the queue, or a consumer's hands (between
// PopFront and Recycle).
//
// A secondary prophet cursor can look further ahead than the front so schedulers
// can plan upcoming iterations before consuming them.
//
// CachingList is not safe for concurrent use; the owner serializes access.
type CachingList[T any] struct {
	free    []T
	full    *queue.Queue
	prophet int
	newFn   func() T
	ready   func(T) bool
	stats   Stats
}

// New creates a CachingList that builds fresh items with newFn.
func New[T any](newFn func() T) *CachingList[T] {
	return &CachingList[T]{
		full:  queue.New(),
		newFn: newFn,
	}
}

// WithReady installs a guard consulted by GetEmpty: a free item is handed out
// only when ready reports true, e.g. once the transfer that last wrote it has completed.
func (l *CachingList[T]) WithReady(ready func(T) bool) *CachingList[T] {
	l.ready = ready
	return l
}

// GetEmpty takes an item from the free list, or creates one when no idle item is ready.
func (l *CachingList[T]) GetEmpty() T {
	for i := len(l.free) - 1; i >= 0; i-- {
		item := l.free[i]
		if l.ready != nil && !l.ready(item) {
			continue
		}
		l.free = append(l.free[:i], l.free[i+1:]...)
		l.stats.Reused++
		return item
	}
	l.stats.Allocated++
	return l.newFn()
}

// PushBack publishes a producer-filled item at the back of the queue.
func (l *CachingList[T]) PushBack(item T) {
	l.full.Add(item)
}

// PeekFront returns the next item due for consumption without dequeuing it.
func (l *CachingList[T]) PeekFront() (T, error) {
	var zero T
	if l.full.Length() == 0 {
		return zero, ErrEmpty
	}
	return l.full.Peek().(T), nil
}

// PopFront dequeues the next item. The caller owns it until Recycle.
func (l *CachingList[T]) PopFront() (T, error) {
	var zero T
	if l.full.Length() == 0 {
		return zero, ErrEmpty
	}
	item := l.full.Remove().(T)
	if l.prophet > 0 {
		l.prophet--
	}
	return item, nil
}

// PeekProphet returns the item under the look-ahead cursor.
func (l *CachingList[T]) PeekProphet() (T, error) {
	var zero T
	if l.prophet >= l.full.Length() {
		return zero, ErrProphetExhausted
	}
	return l.full.Get(l.prophet).(T), nil
}

// AdvanceProphet moves the look-ahead cursor to the next queued item.
func (l *CachingList[T]) AdvanceProphet() error {
	if l.prophet >= l.full.Length() {
		return ErrProphetExhausted
	}
	l.prophet++
	return nil
}

// Recycle returns a consumed item to the free list.
func (l *CachingList[T]) Recycle(item T) {
	l.free = append(l.free, item)
}

// Len returns the number of queued items.
func (l *CachingList[T]) Len() int { return l.full.Length() }

// FreeLen returns the number of idle items.
func (l *CachingList[T]) FreeLen() int { return len(l.free) }

// ProphetOffset returns how many queued items the prophet is ahead of the front.
func (l *CachingList[T]) ProphetOffset() int { return l.prophet }

// Stats returns usage statistics.
func (l *CachingList[T]) Stats() Stats {
	s := l.stats
	s.Queued = l.full.Length()
	s.Free = len(l.free)
	return s
}
