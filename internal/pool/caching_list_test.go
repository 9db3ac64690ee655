package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	id    int
	value int
	ready bool
}

func newCounter() func() *item {
	n := 0
	return func() *item {
		n++
		return &item{id: n, ready: true}
	}
}

func TestGetEmptyAllocatesThenReuses(t *testing.T) {
	l := New(newCounter())

	a := l.GetEmpty()
	assert.Equal(t, 1, a.id)

	l.PushBack(a)
	got, err := l.PopFront()
	require.NoError(t, err)
	assert.Same(t, a, got)

	l.Recycle(got)
	assert.Equal(t, 1, l.FreeLen())

	b := l.GetEmpty()
	assert.Same(t, a, b)

	stats := l.Stats()
	assert.Equal(t, 1, stats.Allocated)
	assert.Equal(t, 1, stats.Reused)
	assert.Equal(t, 0, stats.Free)
}

func TestFIFOOrder(t *testing.T) {
	l := New(newCounter())
	for i := 0; i < 5; i++ {
		it := l.GetEmpty()
		it.value = i
		l.PushBack(it)
	}

	front, err := l.PeekFront()
	require.NoError(t, err)
	assert.Equal(t, 0, front.value)
	assert.Equal(t, 5, l.Len(), "PeekFront must not dequeue")

	for i := 0; i < 5; i++ {
		it, err := l.PopFront()
		require.NoError(t, err)
		assert.Equal(t, i, it.value)
	}
	_, err = l.PopFront()
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = l.PeekFront()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestFIFOUnderConcurrentProducers(t *testing.T) {
	l := New(func() *item { return &item{} })
	var mu sync.Mutex
	var order []*item

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				mu.Lock()
				it := l.GetEmpty()
				it.value = p*1000 + i
				l.PushBack(it)
				order = append(order, it)
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	for _, want := range order {
		got, err := l.PopFront()
		require.NoError(t, err)
		assert.Same(t, want, got)
	}
}

func TestProphetLooksAhead(t *testing.T) {
	l := New(newCounter())
	_, err := l.PeekProphet()
	assert.ErrorIs(t, err, ErrProphetExhausted)
	assert.ErrorIs(t, l.AdvanceProphet(), ErrProphetExhausted)

	for i := 0; i < 3; i++ {
		it := l.GetEmpty()
		it.value = 10 + i
		l.PushBack(it)
	}

	p, err := l.PeekProphet()
	require.NoError(t, err)
	assert.Equal(t, 10, p.value)

	require.NoError(t, l.AdvanceProphet())
	require.NoError(t, l.AdvanceProphet())
	p, err = l.PeekProphet()
	require.NoError(t, err)
	assert.Equal(t, 12, p.value)

	// Consuming the front keeps the prophet on the same item.
	_, err = l.PopFront()
	require.NoError(t, err)
	assert.Equal(t, 1, l.ProphetOffset())
	p, err = l.PeekProphet()
	require.NoError(t, err)
	assert.Equal(t, 12, p.value)

	require.NoError(t, l.AdvanceProphet())
	_, err = l.PeekProphet()
	assert.ErrorIs(t, err, ErrProphetExhausted)

	// A new push becomes visible to the exhausted prophet.
	it := l.GetEmpty()
	it.value = 13
	l.PushBack(it)
	p, err = l.PeekProphet()
	require.NoError(t, err)
	assert.Equal(t, 13, p.value)
}

func TestGetEmptySkipsUnreadyItems(t *testing.T) {
	l := New(newCounter()).WithReady(func(it *item) bool { return it.ready })

	busy := l.GetEmpty()
	busy.ready = false
	l.Recycle(busy)

	fresh := l.GetEmpty()
	assert.NotSame(t, busy, fresh, "an item whose transfer is pending must not be reused")
	assert.Equal(t, 1, l.FreeLen())

	busy.ready = true
	assert.Same(t, busy, l.GetEmpty())
}
