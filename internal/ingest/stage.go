// Package ingest implements the producer-facing input stage: it accepts batches
// at irregular cadence, aliases or copies them into pooled containers and hands
// them to consumers in FIFO order.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/born-ml/feed/internal/config"
	"github.com/born-ml/feed/internal/device"
	"github.com/born-ml/feed/internal/memory"
	"github.com/born-ml/feed/internal/parallel"
	"github.com/born-ml/feed/internal/pool"
	"github.com/born-ml/feed/internal/tensor"
	"github.com/born-ml/feed/internal/worker"
)

// slot is one pooled container together with the marker guarding its storage.
type slot struct {
	batch *tensor.Batch
	event *device.Event // signaled once the last write into batch completed
	state State
}

// ready reports whether the slot's storage may be written again.
func (s *slot) ready() bool {
	return s.event == nil || s.event.Query()
}

// Stats is a snapshot of stage counters.
type Stats struct {
	Fed                     uint64 // batches accepted
	ZeroCopy                uint64 // batches published by aliasing producer memory
	Copied                  uint64 // batches published through a copy
	FallbackCopies          uint64 // no-copy requests that had to copy
	MixedContiguityWarnings uint64
	BytesCopied             uint64
	Forwarded               uint64 // batches handed to consumers
	Recycled                uint64
	TransferFailures        uint64
	Queued                  int
	Free                    int
}

type counters struct {
	fed, zeroCopy, copied, fallback, mixed atomic.Uint64
	bytesCopied, forwarded, recycled       atomic.Uint64
	failures                               atomic.Uint64
}

// Option configures a Stage.
type Option func(*Stage)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stage) { s.logger = logger }
}

// WithMemory sets the memory manager pooled containers allocate from.
func WithMemory(mgr *memory.Manager) Option {
	return func(s *Stage) { s.mem = mgr }
}

// WithStream sets the internal copy stream of a device stage. The stage does
// not close a stream it did not create.
func WithStream(stream *device.Stream) Option {
	return func(s *Stage) { s.stream = stream }
}

// Stage is the ingestion stage. Producers call Feed from any goroutine;
// consumers call HandleAvailability and ForwardCurrentData.
type Stage struct {
	cfg    config.Config
	space  memory.Space
	par    parallel.Config
	logger *slog.Logger
	mem    *memory.Manager

	stream    *device.Stream // internal copy order of device stages
	ownStream bool
	sync      *worker.Thread

	// mu guards everything below; it never covers a data copy.
	mu            sync.Mutex
	cond          *sync.Cond
	data          *pool.CachingList[*slot]
	events        *pool.CachingList[*device.Event]
	sawContiguous bool
	closed        bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	stats     counters
}

// New creates a stage and starts its worker.
func New(cfg config.Config, opts ...Option) (*Stage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Stage{
		cfg:   cfg,
		space: cfg.Space(),
		par:   cfg.ParallelConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.mem == nil {
		s.mem = memory.DefaultManager()
	}
	if s.space.IsDevice() {
		if s.stream == nil {
			s.stream = device.NewStream(cfg.DeviceID)
			s.ownStream = true
		} else if s.stream.DeviceID() != cfg.DeviceID {
			return nil, fmt.Errorf("%w: stream on device %d for stage on device %d",
				config.ErrInvalid, s.stream.DeviceID(), cfg.DeviceID)
		}
	}

	s.cond = sync.NewCond(&s.mu)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.data = pool.New(s.newSlot).WithReady((*slot).ready)
	s.events = pool.New(device.NewEvent).WithReady((*device.Event).Query)
	for i := 0; i < cfg.Prefill; i++ {
		s.data.Recycle(s.newSlot())
		s.events.Recycle(device.NewEvent())
	}

	s.sync = worker.Start(cfg.Name+" sync worker", s.logger)
	s.sync.WaitForInit()

	s.logger.Debug("ingest: stage started",
		"stage", cfg.Name,
		"space", s.space.String(),
		"blocking", cfg.Blocking,
		"no_copy", cfg.NoCopy)
	return s, nil
}

// Name returns the configured stage name.
func (s *Stage) Name() string { return s.cfg.Name }

// Space returns the memory space of the stage's containers.
func (s *Stage) Space() memory.Space { return s.space }

// Order returns the internal copy order: the stage stream on device stages,
// host order otherwise.
func (s *Stage) Order() device.Order {
	if s.stream != nil {
		return s.stream.Order()
	}
	return device.HostOrder()
}

// Stats returns a snapshot of the stage counters.
func (s *Stage) Stats() Stats {
	s.mu.Lock()
	ps := s.data.Stats()
	s.mu.Unlock()

	return Stats{
		Fed:                     s.stats.fed.Load(),
		ZeroCopy:                s.stats.zeroCopy.Load(),
		Copied:                  s.stats.copied.Load(),
		FallbackCopies:          s.stats.fallback.Load(),
		MixedContiguityWarnings: s.stats.mixed.Load(),
		BytesCopied:             s.stats.bytesCopied.Load(),
		Forwarded:               s.stats.forwarded.Load(),
		Recycled:                s.stats.recycled.Load(),
		TransferFailures:        s.stats.failures.Load(),
		Queued:                  ps.Queued,
		Free:                    ps.Free,
	}
}

// Close stops the stage: waiting consumers wake with ErrClosed, the worker is
// force-stopped and joined, and queued containers release their storage.
// Close is idempotent.
func (s *Stage) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.mu.Unlock()

		s.cancel()
		s.sync.ForceStop()
		s.sync.Shutdown()
		if s.ownStream {
			s.stream.Close()
		}

		s.mu.Lock()
		for s.data.Len() > 0 {
			sl, _ := s.data.PopFront()
			sl.batch.Reset()
		}
		s.mu.Unlock()
		s.logger.Debug("ingest: stage closed", "stage", s.cfg.Name)
	})
	return nil
}

func (s *Stage) newSlot() *slot {
	b := tensor.NewBatch(s.space)
	b.SetMemory(s.mem)
	b.SetContiguous(true)
	return &slot{batch: b}
}

// getEmpty takes a container and a marker for a producer (must hold mu).
func (s *Stage) getEmpty() (*slot, *device.Event) {
	sl := s.data.GetEmpty()
	if sl.event != nil {
		s.events.Recycle(sl.event)
		sl.event = nil
	}
	sl.state = State{}
	return sl, s.events.GetEmpty()
}

// recycle returns a container and its marker to the pool (must hold mu).
// Containers that aliased producer memory drop the alias first.
func (s *Stage) recycle(sl *slot) {
	if sl.state.NoCopy && !sl.state.CopiedSharedData {
		sl.batch.Reset()
	}
	if sl.event != nil && sl.event.Query() {
		s.events.Recycle(sl.event)
		sl.event = nil
	}
	s.data.Recycle(sl)
	s.stats.recycled.Add(1)
}

// discard returns an unpublished container and its marker (must hold mu).
func (s *Stage) discard(sl *slot, ev *device.Event) {
	sl.event = ev
	s.recycle(sl)
}
