package ingest

import "errors"

// Common errors.
var (
	ErrUnsupportedNoCopy = errors.New("no-copy ingestion across memory spaces is not supported")
	ErrNoDataAvailable   = errors.New("no data was fed to the stage")
	ErrMixedContiguity   = errors.New("no-copy input mixes contiguous and scattered batches")
	ErrEmptyBatch        = errors.New("fed batch is empty")
	ErrTransferFailed    = errors.New("transfer into stage storage failed")
	ErrClosed            = errors.New("stage is closed")
)
