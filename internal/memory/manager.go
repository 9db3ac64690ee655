package memory

import "sync"

// Manager owns one Pool per memory space.
// Device spaces use heap memory unless an Allocator was registered for the device id,
// which models devices that share address space with the host.
type Manager struct {
	mu      sync.RWMutex
	pools   map[Space]*Pool
	devices map[int]Allocator
}

var (
	defaultOnce sync.Once
	defaultMgr  *Manager
)

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		pools:   make(map[Space]*Pool),
		devices: make(map[int]Allocator),
	}
}

// DefaultManager returns the process-wide manager used when no other is supplied.
func DefaultManager() *Manager {
	defaultOnce.Do(func() {
		defaultMgr = NewManager()
	})
	return defaultMgr
}

// Register installs alloc as the allocator for device id. Any idle regions of the
// previous device pool are freed.
func (m *Manager) Register(deviceID int, alloc Allocator) {
	m.mu.Lock()
	m.devices[deviceID] = alloc
	old := m.pools[DeviceSpace(deviceID)]
	delete(m.pools, DeviceSpace(deviceID))
	m.mu.Unlock()

	if old != nil {
		old.Clear()
	}
}

// Pool returns the pool for space, creating it on first use.
func (m *Manager) Pool(space Space) *Pool {
	if space.IsHost() {
		space.DeviceID = -1
	}

	m.mu.RLock()
	p, ok := m.pools[space]
	m.mu.RUnlock()
	if ok {
		return p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[space]; ok {
		return p
	}
	p = NewPool(space, m.allocatorFor(space))
	m.pools[space] = p
	return p
}

// Clear frees the idle regions of every pool.
func (m *Manager) Clear() {
	m.mu.RLock()
	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.RUnlock()

	for _, p := range pools {
		p.Clear()
	}
}

// allocatorFor picks the allocator for a space (must hold mu).
func (m *Manager) allocatorFor(space Space) Allocator {
	switch space.Kind {
	case Pinned:
		return PinnedAllocator()
	case Device:
		if a, ok := m.devices[space.DeviceID]; ok {
			return a
		}
		return HeapAllocator()
	default:
		return HeapAllocator()
	}
}
