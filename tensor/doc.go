// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the batch containers moved through a feed stage.
//
// # Overview
//
// A Batch holds a list of samples that share an element type and a memory
// space. It is in one of two states:
//   - Contiguous: all samples are views into one FlatBlock allocation
//   - Scattered: every sample owns (or shares) its own allocation
//
// Contiguous batches can be handed to consumers as a single FlatBlock
// without copying; scattered batches are gathered into one block when
// copied.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/feed/memory"
//	    "github.com/born-ml/feed/tensor"
//	)
//
//	func main() {
//	    data := make([]byte, 48)
//	    shapes := tensor.UniformListShape(4, tensor.Shape{2, 2, 3})
//	    block, _ := tensor.WrapBlock(data, shapes, tensor.Uint8, memory.HostSpace(false))
//
//	    b := tensor.NewBatchFromBlock(block) // no copy
//	    fmt.Println(b.IsContiguous(), b.NBytes()) // true 48
//	}
//
// # Supported Data Types
//
// Elements are fixed-size numbers or booleans:
//   - uint8, uint16, uint32, uint64
//   - int8, int16, int32, int64
//   - float16 (stored as uint16), float32, float64
//   - bool
//
// # Memory Management
//
// Storage is reference counted. Sharing data between containers never copies;
// a container only writes in place when it holds the sole external reference,
// otherwise it detaches into a fresh allocation first (copy-on-write).
package tensor
