// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package memory exposes memory spaces and allocators for feed containers.
//
// A Space is host memory, page-locked host memory, or the memory of a numbered
// device. A Manager pools allocations per space; register an Allocator to back
// a device with real device memory.
package memory

import "github.com/born-ml/feed/internal/memory"

// Kind identifies the class of memory an allocation lives in.
type Kind = memory.Kind

// Memory kinds.
const (
	Host   Kind = memory.Host
	Pinned Kind = memory.Pinned
	Device Kind = memory.Device
)

// Space is a concrete memory space.
type Space = memory.Space

// Allocator hands out raw byte regions for one memory space.
type Allocator = memory.Allocator

// Syncer is implemented by allocators that keep a device-side twin of each region.
type Syncer = memory.Syncer

// Manager owns one allocation pool per memory space.
type Manager = memory.Manager

// PoolStats describes pool usage.
type PoolStats = memory.Stats

// ErrAllocFailed is returned when an allocator cannot satisfy a request.
var ErrAllocFailed = memory.ErrAllocFailed

// HostSpace returns the host space, page-locked when pinned is true.
func HostSpace(pinned bool) Space { return memory.HostSpace(pinned) }

// DeviceSpace returns the memory space of device id.
func DeviceSpace(id int) Space { return memory.DeviceSpace(id) }

// NewManager creates a manager with no registered device allocators.
func NewManager() *Manager { return memory.NewManager() }

// DefaultManager returns the process-wide manager.
func DefaultManager() *Manager { return memory.DefaultManager() }

// HeapAllocator returns an allocator backed by ordinary Go memory.
func HeapAllocator() Allocator { return memory.HeapAllocator() }

// PinnedAllocator returns an allocator of page-locked host memory.
func PinnedAllocator() Allocator { return memory.PinnedAllocator() }
