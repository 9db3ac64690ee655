// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package device exposes execution orders, streams and completion events.
//
// An Order tells where a piece of work runs: synchronously on the calling
// goroutine (host order) or queued on a Stream. Events mark a point in an
// order and let other orders or goroutines wait for it.
//
// Example:
//
//	stream := device.NewStream(0)
//	defer stream.Close()
//
//	ev := device.NewEvent()
//	_ = stream.Enqueue(upload)
//	_ = ev.Record(stream.Order())
//	_ = ev.Wait(ctx) // upload finished
package device

import "github.com/born-ml/feed/internal/device"

// Order is an execution order: unset, host, or a device stream.
type Order = device.Order

// Stream executes queued work in FIFO order on its own goroutine.
type Stream = device.Stream

// Event marks a point in an order.
type Event = device.Event

// ErrStreamClosed is returned when work is queued on a closed stream.
var ErrStreamClosed = device.ErrStreamClosed

// HostOrder returns the synchronous host order.
func HostOrder() Order { return device.HostOrder() }

// NewStream starts a stream for device id.
func NewStream(deviceID int) *Stream { return device.NewStream(deviceID) }

// NewEvent returns a signaled event.
func NewEvent() *Event { return device.NewEvent() }
