package tensor

import (
	"context"
	"fmt"

	"github.com/born-ml/feed/internal/device"
	"github.com/born-ml/feed/internal/parallel"
)

// CopyOption configures a batch copy.
type CopyOption func(*copyConfig)

type copyConfig struct {
	kernel bool
	par    parallel.Config
}

func defaultCopyConfig() copyConfig {
	return copyConfig{kernel: true, par: parallel.DefaultConfig()}
}

// WithCopyKernel selects a single batched gather (true, the default) or one
// plain copy per sample issued back to back (false).
func WithCopyKernel(on bool) CopyOption {
	return func(c *copyConfig) { c.kernel = on }
}

// WithParallel sets the worker configuration of the batched gather.
func WithParallel(cfg parallel.Config) CopyOption {
	return func(c *copyConfig) { c.par = cfg }
}

// piece is one contiguous run copied from src to dst.
type piece struct {
	dst, src []byte
	owner    *Storage // storage holding src
}

// transfer copies pieces into dst. A host (or unset) order runs the copy on
// the calling goroutine. A device order queues it on the stream; sources and
// destination stay referenced until the queued copy has run.
func transfer(order device.Order, dst *Storage, pieces []piece, opts []CopyOption) error {
	cfg := defaultCopyConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	dst.Retain()
	for _, p := range pieces {
		p.owner.Retain()
	}
	release := func() {
		for _, p := range pieces {
			p.owner.Release()
		}
		dst.Release()
	}

	job := func() error {
		defer release()
		return gather(dst, pieces, cfg)
	}

	if !order.IsDevice() {
		return job()
	}
	if err := order.Stream().Enqueue(job); err != nil {
		release()
		return fmt.Errorf("queue copy on %s: %w", order, err)
	}
	return nil
}

func gather(dst *Storage, pieces []piece, cfg copyConfig) error {
	loaded := make(map[*Storage]bool)
	for _, p := range pieces {
		if loaded[p.owner] {
			continue
		}
		loaded[p.owner] = true
		if err := p.owner.load(p.owner.data); err != nil {
			return fmt.Errorf("load source: %w", err)
		}
	}

	if cfg.kernel {
		err := parallel.ForEach(context.Background(), len(pieces), func(_ context.Context, i int) error {
			copy(pieces[i].dst, pieces[i].src)
			return nil
		}, cfg.par)
		if err != nil {
			return err
		}
	} else {
		for _, p := range pieces {
			copy(p.dst, p.src)
		}
	}

	if err := dst.flush(dst.data); err != nil {
		return fmt.Errorf("flush destination: %w", err)
	}
	return nil
}
