// Package memory provides memory spaces, allocators and allocation reuse for batch storage.
//
// Every allocation lives in a Space: plain host memory, pinned (page-locked) host memory,
// or the memory of a numbered device. Pools per space bound allocation churn; a Manager
// owns the pools and lets callers plug a custom Allocator for a device.
package memory

import "fmt"

// Kind identifies the class of memory an allocation lives in.
type Kind int

// Supported memory kinds.
const (
	Host Kind = iota
	Pinned
	Device
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case Host:
		return "host"
	case Pinned:
		return "pinned"
	case Device:
		return "device"
	default:
		return "unknown"
	}
}

// Space is a concrete memory space: a kind plus, for device memory, the device id.
// Host spaces always carry DeviceID -1.
type Space struct {
	Kind     Kind
	DeviceID int
}

// HostSpace returns the host space, page-locked when pinned is true.
func HostSpace(pinned bool) Space {
	if pinned {
		return Space{Kind: Pinned, DeviceID: -1}
	}
	return Space{Kind: Host, DeviceID: -1}
}

// DeviceSpace returns the memory space of device id.
func DeviceSpace(id int) Space {
	return Space{Kind: Device, DeviceID: id}
}

// IsDevice reports whether the space is device memory.
func (s Space) IsDevice() bool { return s.Kind == Device }

// IsHost reports whether the space is host memory, pinned or not.
func (s Space) IsHost() bool { return s.Kind != Device }

// IsPinned reports whether the space is page-locked host memory.
func (s Space) IsPinned() bool { return s.Kind == Pinned }

// SameDomain reports whether data can be aliased between s and other without a transfer.
// Pinned and unpinned host memory share a domain; devices only match themselves.
func (s Space) SameDomain(other Space) bool {
	if s.IsHost() && other.IsHost() {
		return true
	}
	return s.Kind == other.Kind && s.DeviceID == other.DeviceID
}

// String returns a human-readable space name.
func (s Space) String() string {
	if s.IsDevice() {
		return fmt.Sprintf("device:%d", s.DeviceID)
	}
	return s.Kind.String()
}
