package ingest

import "github.com/google/uuid"

// NoCopyMode overrides the stage's no-copy setting for one call.
type NoCopyMode int

// No-copy overrides.
const (
	NoCopyDefault NoCopyMode = iota // use the stage configuration
	ForceCopy
	ForceNoCopy
)

// String returns a human-readable mode name.
func (m NoCopyMode) String() string {
	switch m {
	case ForceCopy:
		return "force-copy"
	case ForceNoCopy:
		return "force-no-copy"
	default:
		return "default"
	}
}

// SettingMode configures one Feed call.
type SettingMode struct {
	// Sync blocks Feed until the data has been copied into stage storage.
	// Use it when the source may be modified or freed right after the call.
	Sync bool
	// UseCopyKernel gathers scattered samples in one batched copy instead of
	// one copy per sample.
	UseCopyKernel bool
	NoCopy        NoCopyMode
}

// DefaultSettingMode returns an asynchronous, configuration-driven mode.
func DefaultSettingMode() SettingMode {
	return SettingMode{UseCopyKernel: true}
}

// State describes how a published batch was ingested.
type State struct {
	ID uuid.UUID
	// CopiedSharedData is set when no-copy was requested but the data had to
	// be copied regardless.
	CopiedSharedData bool
	// NoCopy is the effective no-copy choice of the call.
	NoCopy bool
	// Warning is a non-fatal diagnostic such as ErrMixedContiguity.
	Warning error
}
