// Package device provides execution orders, asynchronous copy streams and
// completion events.
//
// An Order says where work runs: synchronously on the calling goroutine (host order)
// or queued on a Stream bound to a device. Work queued on a stream runs strictly in
// submission order; an Event recorded on a stream is signaled once everything queued
// before it has finished.
package device

import "fmt"

type orderKind uint8

const (
	orderUnset orderKind = iota
	orderHost
	orderDevice
)

// Order is an opaque execution-order token. The zero value is unset.
type Order struct {
	kind   orderKind
	stream *Stream
}

// HostOrder returns the host-synchronous order.
func HostOrder() Order {
	return Order{kind: orderHost}
}

// IsSet reports whether the order was explicitly chosen.
func (o Order) IsSet() bool { return o.kind != orderUnset }

// IsHost reports whether work runs synchronously on the caller.
func (o Order) IsHost() bool { return o.kind == orderHost }

// IsDevice reports whether work is queued on a stream.
func (o Order) IsDevice() bool { return o.kind == orderDevice }

// Stream returns the stream of a device order, nil otherwise.
func (o Order) Stream() *Stream { return o.stream }

// DeviceID returns the device of a device order, -1 otherwise.
func (o Order) DeviceID() int {
	if o.stream == nil {
		return -1
	}
	return o.stream.deviceID
}

// String returns a human-readable order name.
func (o Order) String() string {
	switch o.kind {
	case orderHost:
		return "host"
	case orderDevice:
		return fmt.Sprintf("stream(device:%d)", o.stream.deviceID)
	default:
		return "unset"
	}
}
