// Package main provides the feed CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/born-ml/feed/device"
	"github.com/born-ml/feed/ingest"
	"github.com/born-ml/feed/memory"
	"github.com/born-ml/feed/tensor"
	"golang.org/x/sync/errgroup"
)

const version = "v0.0.1-dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("feed %s\n", version)
		return
	}
	if len(os.Args) > 1 && os.Args[1] == "demo" {
		if err := runDemo(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "demo: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("feed - batch ingestion for Go pipelines")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  demo       Feed synthetic batches through a stage and print stats")
}

type demoOptions struct {
	configPath string
	batches    int
	samples    int
	scattered  bool
	sync       bool
	verbose    bool
}

func runDemo(args []string) error {
	var opts demoOptions
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "YAML stage configuration")
	fs.IntVar(&opts.batches, "batches", 16, "number of batches to feed")
	fs.IntVar(&opts.samples, "samples", 8, "samples per batch")
	fs.BoolVar(&opts.scattered, "scattered", false, "feed independently allocated samples")
	fs.BoolVar(&opts.sync, "sync", false, "wait for each copy before returning from Feed")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := ingest.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = ingest.LoadConfig(opts.configPath); err != nil {
			return err
		}
	}

	stage, err := ingest.New(cfg, ingest.WithLogger(logger))
	if err != nil {
		return err
	}
	defer stage.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mode := ingest.DefaultSettingMode()
	mode.Sync = opts.sync
	shape := tensor.Shape{4, 4, 3}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := 0; i < opts.batches; i++ {
			if err := feedOne(gctx, stage, i, opts, shape, mode); err != nil {
				return fmt.Errorf("feed batch %d: %w", i, err)
			}
		}
		return nil
	})
	g.Go(func() error {
		out := tensor.NewBatch(stage.Space())
		defer out.Reset()
		for i := 0; i < opts.batches; i++ {
			state, err := stage.ForwardCurrentData(gctx, out, device.HostOrder())
			if err != nil {
				return fmt.Errorf("forward batch %d: %w", i, err)
			}
			if state.Warning != nil {
				logger.Warn("demo: batch ingested with warning", "id", state.ID.String(), "warning", state.Warning)
			}
			if err := report(logger, i, out, state); err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	st := stage.Stats()
	logger.Info("demo: done",
		"stage", stage.Name(),
		"elapsed", time.Since(start).String(),
		"fed", st.Fed,
		"zero_copy", st.ZeroCopy,
		"copied", st.Copied,
		"fallback_copies", st.FallbackCopies,
		"bytes_copied", st.BytesCopied,
		"forwarded", st.Forwarded)
	return nil
}

// feedOne feeds batch i filled with a recognizable byte pattern.
func feedOne(ctx context.Context, stage *ingest.Stage, i int, opts demoOptions, shape tensor.Shape, mode ingest.SettingMode) error {
	host := memory.HostSpace(false)
	per := shape.Volume()

	if opts.scattered {
		samples := make([]*tensor.Sample, opts.samples)
		for j := range samples {
			data := make([]byte, per)
			fill(data, i, j)
			s, err := tensor.NewSampleFrom(data, shape, tensor.Uint8, host)
			if err != nil {
				return err
			}
			s.SetLayout("HWC")
			s.SetMeta(tensor.Meta{SourceInfo: fmt.Sprintf("batch-%d/sample-%d", i, j)})
			samples[j] = s
		}
		return stage.FeedSamples(ctx, samples, device.Order{}, mode)
	}

	data := make([]byte, per*opts.samples)
	for j := 0; j < opts.samples; j++ {
		fill(data[j*per:(j+1)*per], i, j)
	}
	block, err := tensor.WrapBlock(data, tensor.UniformListShape(opts.samples, shape), tensor.Uint8, host)
	if err != nil {
		return err
	}
	block.SetLayout("HWC")
	for j := 0; j < opts.samples; j++ {
		block.SetMeta(j, tensor.Meta{SourceInfo: fmt.Sprintf("batch-%d/sample-%d", i, j)})
	}
	return stage.FeedBlock(ctx, block, device.Order{}, mode)
}

func fill(b []byte, batch, sample int) {
	for k := range b {
		b[k] = byte(batch*31 + sample*7 + k)
	}
}

// report logs one forwarded batch and the size of its metadata snapshot.
func report(logger *slog.Logger, i int, out *tensor.Batch, state ingest.State) error {
	var metaBytes int
	if out.IsContiguous() {
		block, err := out.AsFlatBlock(true)
		if err != nil {
			return err
		}
		snapshot, err := block.MetaTable().Marshal()
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metaBytes = len(snapshot)
	}
	logger.Debug("demo: batch forwarded",
		"index", i,
		"id", state.ID.String(),
		"samples", out.Size(),
		"bytes", out.NBytes(),
		"contiguous", out.IsContiguous(),
		"no_copy", state.NoCopy,
		"meta_bytes", metaBytes)
	return nil
}
