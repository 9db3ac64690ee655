package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/born-ml/feed/internal/device"
	"github.com/born-ml/feed/internal/tensor"
)

// HandleAvailability returns once a batch is queued. A blocking stage waits
// for a producer; a non-blocking one fails with ErrNoDataAvailable.
func (s *Stage) HandleAvailability(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitLocked(ctx)
}

// waitLocked waits on the availability condition (must hold mu).
func (s *Stage) waitLocked(ctx context.Context) error {
	for s.data.Len() == 0 {
		if s.closed {
			return ErrClosed
		}
		if !s.cfg.Blocking {
			return fmt.Errorf("stage %q: %w", s.cfg.Name, ErrNoDataAvailable)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		stop := context.AfterFunc(ctx, func() {
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		s.cond.Wait()
		stop()
	}
	if s.closed {
		return ErrClosed
	}
	return nil
}

// PeekCurrent returns the batch next in line without dequeuing it. Its
// contents may still be in flight; ForwardCurrentData synchronizes.
func (s *Stage) PeekCurrent() (*tensor.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.data.PeekFront()
	if err != nil {
		return nil, fmt.Errorf("stage %q: %w: %w", s.cfg.Name, ErrNoDataAvailable, err)
	}
	return sl.batch, nil
}

// CurrentState returns how the batch next in line was ingested.
func (s *Stage) CurrentState() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.data.PeekFront()
	if err != nil {
		return State{}, fmt.Errorf("stage %q: %w: %w", s.cfg.Name, ErrNoDataAvailable, err)
	}
	return sl.state, nil
}

// NextBatchSize returns the sample count of the batch under the look-ahead
// cursor without consuming anything.
func (s *Stage) NextBatchSize() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.data.PeekProphet()
	if err != nil {
		return 0, fmt.Errorf("stage %q: %w: %w", s.cfg.Name, ErrNoDataAvailable, err)
	}
	return sl.batch.Size(), nil
}

// Advance moves the look-ahead cursor to the next queued batch.
func (s *Stage) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.data.AdvanceProphet(); err != nil {
		return fmt.Errorf("stage %q: %w: %w", s.cfg.Name, ErrNoDataAvailable, err)
	}
	return nil
}

// ForwardCurrentData dequeues the next batch, makes target share its data and
// returns the container to the pool.
//
// The call waits for the copy that filled the batch, so a failed copy is
// reported as ErrTransferFailed and never reaches target. With a device
// consumerOrder the container is recycled by the stage worker once the
// consumer stream has passed the point where target was filled.
func (s *Stage) ForwardCurrentData(ctx context.Context, target *tensor.Batch, consumerOrder device.Order) (State, error) {
	sl, err := s.popReady(ctx)
	if err != nil {
		return State{}, err
	}

	if sl.event != nil && sl.event.Query() && sl.event.Err() != nil {
		cause := sl.event.Err()
		s.stats.failures.Add(1)
		s.mu.Lock()
		sl.batch.Reset()
		s.recycle(sl)
		s.mu.Unlock()
		s.logger.Error("ingest: dropping batch whose transfer failed",
			"stage", s.cfg.Name,
			"id", sl.state.ID.String(),
			"error", cause)
		return State{}, fmt.Errorf("%w: %w", ErrTransferFailed, cause)
	}

	target.ShareData(sl.batch)
	state := sl.state
	s.stats.forwarded.Add(1)

	if consumerOrder.IsDevice() {
		s.recycleAfter(sl, consumerOrder)
	} else {
		s.mu.Lock()
		s.recycle(sl)
		s.mu.Unlock()
	}
	return state, nil
}

// popReady dequeues the front batch once its copy marker has fired. A
// cancelled wait leaves the batch queued.
func (s *Stage) popReady(ctx context.Context) (*slot, error) {
	for {
		s.mu.Lock()
		if err := s.waitLocked(ctx); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		front, _ := s.data.PeekFront()
		marker := front.event
		s.mu.Unlock()

		if marker != nil {
			if err := marker.Wait(ctx); err != nil && ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}

		s.mu.Lock()
		current, err := s.data.PeekFront()
		if err != nil || current != front {
			// Another consumer took it.
			s.mu.Unlock()
			continue
		}
		sl, _ := s.data.PopFront()
		s.mu.Unlock()
		return sl, nil
	}
}

// recycleAfter records a marker on the consumer stream and lets the worker
// recycle the container once it fires.
func (s *Stage) recycleAfter(sl *slot, consumerOrder device.Order) {
	s.mu.Lock()
	done := s.events.GetEmpty()
	s.mu.Unlock()

	// Mark leaves the consumer's own pending stream error for its owner.
	if err := consumerOrder.Stream().Mark(done); err != nil {
		s.logger.Warn("ingest: consumer stream rejected marker",
			"stage", s.cfg.Name,
			"order", consumerOrder.String(),
			"error", err)
	}

	err := s.sync.Do(func() {
		if err := done.Wait(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("ingest: consumer stream reported error",
				"stage", s.cfg.Name,
				"error", err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.releaseMarker(sl)
		sl.event = done
		s.recycle(sl)
	})
	if err != nil {
		// Worker is stopped; the marker still guards reuse.
		s.mu.Lock()
		s.releaseMarker(sl)
		sl.event = done
		s.recycle(sl)
		s.mu.Unlock()
	}
}

// releaseMarker returns the copy marker of sl to the pool (must hold mu).
func (s *Stage) releaseMarker(sl *slot) {
	if sl.event != nil && sl.event.Query() {
		s.events.Recycle(sl.event)
	}
	sl.event = nil
}
