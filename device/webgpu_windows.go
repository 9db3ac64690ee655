// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

//go:build windows

package device

import (
	"github.com/born-ml/feed/internal/device"
	"github.com/go-webgpu/webgpu/wgpu"
)

// WebGPUMirror is a memory.Allocator backed by WebGPU buffers.
// Register it with a memory.Manager to run a device stage on a GPU.
type WebGPUMirror = device.WebGPUMirror

// NewWebGPUMirror creates a mirror allocating on dev and transferring through queue.
func NewWebGPUMirror(dev *wgpu.Device, queue *wgpu.Queue) *WebGPUMirror {
	return device.NewWebGPUMirror(dev, queue)
}
