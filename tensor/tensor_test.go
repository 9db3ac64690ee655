// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/born-ml/feed/memory"
	"github.com/born-ml/feed/tensor"
)

// TestBatchAPI verifies the Batch alias exposes the container API.
func TestBatchAPI(t *testing.T) {
	data := make([]byte, 48)
	for i := range data {
		data[i] = byte(i)
	}
	block, err := tensor.WrapBlock(data, tensor.UniformListShape(4, tensor.Shape{2, 2, 3}), tensor.Uint8, memory.HostSpace(false))
	if err != nil {
		t.Fatalf("WrapBlock failed: %v", err)
	}

	b := tensor.NewBatchFromBlock(block)
	if !b.IsContiguous() {
		t.Error("IsContiguous() = false, want true")
	}
	if b.State() != tensor.Contiguous {
		t.Errorf("State() = %v, want Contiguous", b.State())
	}
	if b.NBytes() != 48 {
		t.Errorf("NBytes() = %d, want 48", b.NBytes())
	}
	if b.Type() != tensor.Uint8 {
		t.Errorf("Type() = %v, want Uint8", b.Type())
	}

	// Sample views alias the block.
	got := b.Sample(1).Bytes()
	if got[0] != 12 {
		t.Errorf("Sample(1).Bytes()[0] = %d, want 12", got[0])
	}

	b.Reset()
	if b.Size() != 0 {
		t.Errorf("Size() after Reset = %d, want 0", b.Size())
	}
}

// TestSampleValues verifies typed access through the public API.
func TestSampleValues(t *testing.T) {
	values := []float32{1, 2, 3, 4}
	s, err := tensor.NewSampleFrom(tensor.BytesOf(values), tensor.Shape{2, 2}, tensor.Float32, memory.HostSpace(false))
	if err != nil {
		t.Fatalf("NewSampleFrom failed: %v", err)
	}

	got, err := tensor.Values[float32](s)
	if err != nil {
		t.Fatalf("Values failed: %v", err)
	}
	if len(got) != 4 || got[3] != 4 {
		t.Errorf("Values() = %v, want %v", got, values)
	}

	if _, err := tensor.Values[int64](s); err == nil {
		t.Error("Values[int64] on a float32 sample should fail")
	}
}

// TestParseDataType verifies type names round trip.
func TestParseDataType(t *testing.T) {
	for _, dt := range []tensor.DataType{tensor.Uint8, tensor.Float16, tensor.Float64, tensor.Bool} {
		got, err := tensor.ParseDataType(dt.String())
		if err != nil {
			t.Errorf("ParseDataType(%q) failed: %v", dt.String(), err)
			continue
		}
		if got != dt {
			t.Errorf("ParseDataType(%q) = %v, want %v", dt.String(), got, dt)
		}
	}
}
