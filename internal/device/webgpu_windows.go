//go:build windows

package device

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

const mirrorUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// twin is the GPU-resident copy of one host shadow region.
type twin struct {
	buffer *wgpu.Buffer
	size   uint64
}

// WebGPUMirror is a memory.Allocator for a WebGPU device.
// Batch storage reads and writes a host shadow; each shadow has a GPU buffer twin
// kept coherent through Flush (shadow to GPU) and Load (GPU to shadow).
type WebGPUMirror struct {
	device *wgpu.Device
	queue  *wgpu.Queue

	mu    sync.Mutex
	twins map[*byte]*twin
}

// NewWebGPUMirror creates a mirror allocating on device and transferring through queue.
func NewWebGPUMirror(device *wgpu.Device, queue *wgpu.Queue) *WebGPUMirror {
	return &WebGPUMirror{
		device: device,
		queue:  queue,
		twins:  make(map[*byte]*twin),
	}
}

// Alloc returns a shadow region and creates its GPU twin.
func (m *WebGPUMirror) Alloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("webgpu: invalid allocation size %d", size)
	}
	shadow := make([]byte, size)
	if size == 0 {
		return shadow, nil
	}

	aligned := align4(uint64(size))
	buffer := m.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: mirrorUsage,
		Size:  aligned,
	})
	if buffer == nil {
		return nil, fmt.Errorf("webgpu: failed to create %d byte buffer", aligned)
	}

	m.mu.Lock()
	m.twins[unsafe.SliceData(shadow)] = &twin{buffer: buffer, size: aligned}
	m.mu.Unlock()
	return shadow, nil
}

// Free releases the GPU twin of b.
func (m *WebGPUMirror) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	m.mu.Lock()
	key := unsafe.SliceData(b)
	tw, ok := m.twins[key]
	delete(m.twins, key)
	m.mu.Unlock()

	if ok {
		tw.buffer.Release()
	}
}

// Flush uploads the shadow bytes of b to its GPU twin.
func (m *WebGPUMirror) Flush(b []byte) error {
	tw, err := m.lookup(b)
	if err != nil {
		return err
	}
	size := align4(uint64(len(b)))
	if size == 0 {
		return nil
	}

	staging := m.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	defer staging.Release()

	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mapped, b)
	staging.Unmap()

	encoder := m.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, tw.buffer, 0, size)
	cmdBuffer := encoder.Finish(nil)
	m.queue.Submit(cmdBuffer)
	return nil
}

// Load reads the GPU twin of b back into the shadow bytes.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (m *WebGPUMirror) Load(b []byte) error {
	tw, err := m.lookup(b)
	if err != nil {
		return err
	}
	size := align4(uint64(len(b)))
	if size == 0 {
		return nil
	}

	staging := m.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := m.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(tw.buffer, 0, staging, 0, size)
	cmdBuffer := encoder.Finish(nil)
	m.queue.Submit(cmdBuffer)

	if err := staging.MapAsync(m.device, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), size)
	copy(b, mapped)
	staging.Unmap()
	return nil
}

// Buffers returns the number of live GPU twins.
func (m *WebGPUMirror) Buffers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.twins)
}

func (m *WebGPUMirror) lookup(b []byte) (*twin, error) {
	if cap(b) == 0 {
		return &twin{}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tw, ok := m.twins[unsafe.SliceData(b)]
	if !ok {
		return nil, fmt.Errorf("webgpu: region %p has no GPU twin", unsafe.SliceData(b))
	}
	if align4(uint64(len(b))) > tw.size {
		return nil, fmt.Errorf("webgpu: region of %d bytes exceeds twin of %d bytes", len(b), tw.size)
	}
	return tw, nil
}

// align4 rounds size up to the 4-byte copy granularity WebGPU requires.
func align4(size uint64) uint64 {
	return (size + 3) &^ 3
}
