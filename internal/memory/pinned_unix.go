//go:build unix

package memory

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

// pinnedAllocator maps anonymous memory and locks it into RAM so a device can
// transfer from it without a staging copy.
type pinnedAllocator struct {
	warnOnce sync.Once
}

// PinnedAllocator returns the page-locked host allocator for this platform.
func PinnedAllocator() Allocator {
	return &pinnedAllocator{}
}

func (p *pinnedAllocator) Alloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrAllocFailed
	}
	if size == 0 {
		return []byte{}, nil
	}
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %v", ErrAllocFailed, size, err)
	}
	// RLIMIT_MEMLOCK is often tiny in containers; an unlocked mapping still works.
	if err := unix.Mlock(b); err != nil {
		p.warnOnce.Do(func() {
			slog.Debug("memory: mlock denied, pinned allocations are not page-locked", "error", err)
		})
	}
	return b, nil
}

func (p *pinnedAllocator) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	b = b[:cap(b)]
	_ = unix.Munlock(b)
	if err := unix.Munmap(b); err != nil {
		slog.Warn("memory: munmap failed", "size", len(b), "error", err)
	}
}
