// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ingest provides the input stage that moves producer batches to consumers.
//
// Producers call Feed from any goroutine. Depending on the configuration and
// the per-call SettingMode, a batch is either aliased (no-copy) or copied into
// storage owned by the stage. Consumers wait with HandleAvailability and take
// batches in FIFO order with ForwardCurrentData.
//
// Example:
//
//	cfg := ingest.DefaultConfig()
//	cfg.NoCopy = true
//
//	stage, err := ingest.New(cfg, ingest.WithLogger(slog.Default()))
//	if err != nil {
//	    return err
//	}
//	defer stage.Close()
//
//	_ = stage.FeedBlock(ctx, block, device.Order{}, ingest.DefaultSettingMode())
//
//	out := tensor.NewBatch(memory.HostSpace(false))
//	state, err := stage.ForwardCurrentData(ctx, out, device.HostOrder())
//
// # No-copy
//
// No-copy input must live in the stage's memory domain. Contiguous input is
// always aliased. Scattered input is aliased per sample on host stages, and
// copied on device stages or after a contiguous no-copy batch was seen; the
// returned State reports such fallbacks.
package ingest

import (
	"log/slog"

	"github.com/born-ml/feed/internal/config"
	"github.com/born-ml/feed/internal/device"
	"github.com/born-ml/feed/internal/ingest"
	"github.com/born-ml/feed/internal/memory"
)

// Stage is the ingestion stage.
type Stage = ingest.Stage

// Stats is a snapshot of stage counters.
type Stats = ingest.Stats

// Option configures a Stage.
type Option = ingest.Option

// SettingMode configures one Feed call.
type SettingMode = ingest.SettingMode

// NoCopyMode overrides the stage's no-copy setting for one call.
type NoCopyMode = ingest.NoCopyMode

// No-copy overrides.
const (
	NoCopyDefault NoCopyMode = ingest.NoCopyDefault
	ForceCopy     NoCopyMode = ingest.ForceCopy
	ForceNoCopy   NoCopyMode = ingest.ForceNoCopy
)

// State describes how a published batch was ingested.
type State = ingest.State

// Config is the stage configuration.
type Config = config.Config

// Device names accepted in Config.Device.
const (
	DeviceCPU = config.DeviceCPU
	DeviceGPU = config.DeviceGPU
)

// Errors.
var (
	ErrUnsupportedNoCopy = ingest.ErrUnsupportedNoCopy
	ErrNoDataAvailable   = ingest.ErrNoDataAvailable
	ErrMixedContiguity   = ingest.ErrMixedContiguity
	ErrEmptyBatch        = ingest.ErrEmptyBatch
	ErrTransferFailed    = ingest.ErrTransferFailed
	ErrClosed            = ingest.ErrClosed
	ErrInvalidConfig     = config.ErrInvalid
)

// New creates a stage and starts its worker.
func New(cfg Config, opts ...Option) (*Stage, error) {
	return ingest.New(cfg, opts...)
}

// DefaultConfig returns a blocking CPU stage configuration.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// ParseConfig decodes YAML on top of DefaultConfig.
func ParseConfig(data []byte) (Config, error) { return config.Parse(data) }

// DefaultSettingMode returns an asynchronous, configuration-driven mode.
func DefaultSettingMode() SettingMode { return ingest.DefaultSettingMode() }

// WithLogger sets the stage logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option { return ingest.WithLogger(logger) }

// WithMemory sets the memory manager stage containers allocate from.
func WithMemory(mgr *memory.Manager) Option { return ingest.WithMemory(mgr) }

// WithStream sets the copy stream of a device stage.
func WithStream(stream *device.Stream) Option { return ingest.WithStream(stream) }
