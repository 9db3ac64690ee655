package ingest

import (
	"context"
	"fmt"

	"github.com/born-ml/feed/internal/device"
	"github.com/born-ml/feed/internal/memory"
	"github.com/born-ml/feed/internal/tensor"
	"github.com/google/uuid"
)

// Feed hands a batch to the stage. Depending on the no-copy policy the batch
// is aliased or copied; order is the order the producer wrote src on.
func (s *Stage) Feed(ctx context.Context, src *tensor.Batch, order device.Order, mode SettingMode) error {
	if src == nil || src.Size() == 0 {
		return ErrEmptyBatch
	}
	return s.feed(ctx, src, order, mode)
}

// FeedBlock hands a contiguous block to the stage.
func (s *Stage) FeedBlock(ctx context.Context, block *tensor.FlatBlock, order device.Order, mode SettingMode) error {
	if block == nil || block.NumSamples() == 0 {
		return ErrEmptyBatch
	}
	src := tensor.NewBatchFromBlock(block)
	defer src.Reset()
	return s.feed(ctx, src, order, mode)
}

// FeedSamples hands independently allocated samples to the stage.
func (s *Stage) FeedSamples(ctx context.Context, samples []*tensor.Sample, order device.Order, mode SettingMode) error {
	if len(samples) == 0 {
		return ErrEmptyBatch
	}
	src := tensor.NewBatchSize(len(samples), samples[0].Space())
	defer src.Reset()
	for i, sample := range samples {
		if err := src.SetSample(i, sample); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return s.feed(ctx, src, order, mode)
}

func (s *Stage) feed(ctx context.Context, src *tensor.Batch, order device.Order, mode SettingMode) error {
	noCopy := s.cfg.NoCopy
	switch mode.NoCopy {
	case ForceCopy:
		noCopy = false
	case ForceNoCopy:
		noCopy = true
	}

	var err error
	if noCopy {
		err = s.share(ctx, src, order, mode)
	} else {
		err = s.copyIn(ctx, src, order, mode, State{})
	}
	if err != nil {
		return err
	}
	s.stats.fed.Add(1)
	return nil
}

// share aliases src into a pooled container. Scattered input that cannot be
// aliased safely is copied instead.
func (s *Stage) share(ctx context.Context, src *tensor.Batch, order device.Order, mode SettingMode) error {
	if srcSpace := src.Space(); !srcSpace.SameDomain(s.space) {
		return fmt.Errorf("%w: %s input for %s stage %q", ErrUnsupportedNoCopy, srcSpace, s.space, s.cfg.Name)
	}

	contiguous := src.IsContiguous()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	state := State{ID: uuid.New(), NoCopy: true}
	switch {
	case contiguous:
		s.sawContiguous = true
	case s.sawContiguous:
		// Earlier batches alias producer blocks; scattered input now needs
		// stage storage, which the consumer may still be reading from.
		if s.cfg.RejectMixedContiguity {
			s.mu.Unlock()
			return fmt.Errorf("stage %q: %w", s.cfg.Name, ErrMixedContiguity)
		}
		state.CopiedSharedData = true
		state.Warning = ErrMixedContiguity
	case s.space.IsDevice():
		state.CopiedSharedData = true
	}

	if state.CopiedSharedData {
		s.mu.Unlock()
		if state.Warning != nil {
			s.stats.mixed.Add(1)
			s.logger.Warn("ingest: stage should not mix contiguous and scattered no-copy inputs, copying",
				"stage", s.cfg.Name,
				"id", state.ID.String())
		}
		s.stats.fallback.Add(1)
		return s.copyIn(ctx, src, order, mode, state)
	}

	sl, ev := s.getEmpty()
	if src.IsPinned() != sl.batch.IsPinned() && s.space.IsHost() {
		sl.batch.Reset()
		sl.batch.SetPinned(src.IsPinned())
	}
	sl.batch.ShareData(src)
	sl.state = state
	if order.IsDevice() {
		// Consumers must not read before the producer's pending writes land.
		if err := ev.Record(order); err != nil {
			s.discard(sl, ev)
			s.mu.Unlock()
			return fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
		sl.event = ev
	} else {
		s.events.Recycle(ev)
	}
	s.data.PushBack(sl)
	s.cond.Signal()
	s.mu.Unlock()

	s.stats.zeroCopy.Add(1)
	s.logger.Debug("ingest: batch shared",
		"stage", s.cfg.Name,
		"id", state.ID.String(),
		"samples", src.Size(),
		"contiguous", contiguous)
	return nil
}

// copyIn copies src into a pooled container and publishes it.
func (s *Stage) copyIn(ctx context.Context, src *tensor.Batch, order device.Order, mode SettingMode, state State) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	sl, ev := s.getEmpty()
	s.mu.Unlock()

	if state.ID == uuid.Nil {
		state.ID = uuid.New()
	}
	copyOrder := s.copyOrder(src.Space(), order)
	if s.space.IsHost() {
		pinned := s.space.IsPinned()
		if src.Space().IsHost() {
			pinned = src.IsPinned()
		}
		sl.batch.SetSpace(memory.HostSpace(pinned))
	}

	if err := sl.batch.Copy(src, copyOrder,
		tensor.WithCopyKernel(mode.UseCopyKernel),
		tensor.WithParallel(s.par)); err != nil {
		return s.abort(sl, ev, state, copyOrder, err)
	}
	if err := ev.Record(copyOrder); err != nil {
		return s.abort(sl, ev, state, copyOrder, err)
	}
	if mode.Sync {
		if err := ev.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.mu.Lock()
				s.discard(sl, ev)
				s.mu.Unlock()
				return ctxErr
			}
			return s.abort(sl, ev, state, copyOrder, err)
		}
	}
	nbytes := sl.batch.NBytes()

	s.mu.Lock()
	if s.closed {
		s.discard(sl, ev)
		s.mu.Unlock()
		return ErrClosed
	}
	sl.event = ev
	sl.state = state
	s.data.PushBack(sl)
	s.cond.Signal()
	s.mu.Unlock()

	s.stats.copied.Add(1)
	s.stats.bytesCopied.Add(uint64(nbytes))
	s.logger.Debug("ingest: batch copied",
		"stage", s.cfg.Name,
		"id", state.ID.String(),
		"samples", src.Size(),
		"bytes", nbytes,
		"order", copyOrder.String(),
		"sync", mode.Sync)
	return nil
}

// abort drops a container whose copy failed; it is never published.
func (s *Stage) abort(sl *slot, ev *device.Event, state State, order device.Order, err error) error {
	s.stats.failures.Add(1)
	s.mu.Lock()
	s.discard(sl, ev)
	s.mu.Unlock()
	s.logger.Error("ingest: copy into stage storage failed",
		"stage", s.cfg.Name,
		"id", state.ID.String(),
		"order", order.String(),
		"error", err)
	return fmt.Errorf("%w: %w", ErrTransferFailed, err)
}

// copyOrder picks the order a copy from srcSpace runs on. Host to host copies
// never use a device order; device stages fall back to their own stream when
// the producer supplied none.
func (s *Stage) copyOrder(srcSpace memory.Space, order device.Order) device.Order {
	if s.space.IsHost() {
		if srcSpace.IsHost() || !order.IsDevice() {
			return device.HostOrder()
		}
		return order
	}
	if order.IsDevice() {
		return order
	}
	return s.stream.Order()
}
