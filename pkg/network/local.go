// Package network implements the two channel kinds of §4.7: a local
// bounded in-memory channel for same-host edges, and a TCP
// multiplexer/demultiplexer with header-framed messages for cross-host
// edges.
package network

import (
	"errors"

	"github.com/rosscartlidge/dataflow/pkg/streaming"
)

// DefaultLocalCapacity is the default bounded queue depth for a local
// channel (§4.7 "Local channel ... default capacity 16").
const DefaultLocalCapacity = 16

// ErrFull is returned by TrySend when the channel's bounded queue has no
// free slot (§4.7 "Back-pressure"; §7 "Channel full").
var ErrFull = errors.New("network: local channel full")

// ErrClosed is returned by Send/TrySend after Close, and by Receive once
// the channel is closed and drained.
var ErrClosed = errors.New("network: local channel closed")

// LocalChannel is a bounded queue of StreamElements connecting two
// replicas co-located on the same host.
type LocalChannel struct {
	ch     chan streaming.Element
	closed chan struct{}
}

// NewLocalChannel builds a local channel with the given bounded capacity
// (use DefaultLocalCapacity to match the spec default).
func NewLocalChannel(capacity int) *LocalChannel {
	if capacity <= 0 {
		capacity = DefaultLocalCapacity
	}
	return &LocalChannel{ch: make(chan streaming.Element, capacity), closed: make(chan struct{})}
}

// Send blocks until the element is enqueued or the channel is closed.
func (c *LocalChannel) Send(e streaming.Element) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.ch <- e:
		return nil
	case <-c.closed:
		return ErrClosed
	}
}

// TrySend enqueues without blocking; on a full queue it returns ErrFull so
// the caller (e.g. iteration feedback, §4.7) can buffer and retry.
func (c *LocalChannel) TrySend(e streaming.Element) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.ch <- e:
		return nil
	case <-c.closed:
		return ErrClosed
	default:
		return ErrFull
	}
}

// Receive blocks for the next element; it reports ErrClosed once the
// channel has been closed and fully drained — the local analogue of a
// remote Disconnected error (§4.7), for the Start operator to treat as
// end-of-input on this edge.
func (c *LocalChannel) Receive() (streaming.Element, error) {
	e, ok := <-c.ch
	if !ok {
		return streaming.Element{}, ErrClosed
	}
	return e, nil
}

// AsStream adapts the channel to the streaming.Stream pull-iterator shape.
func (c *LocalChannel) AsStream() streaming.Stream { return c.Receive }

// Close signals no further sends will succeed and, once drained, Receive
// callers observe ErrClosed.
func (c *LocalChannel) Close() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
		close(c.ch)
	}
}
