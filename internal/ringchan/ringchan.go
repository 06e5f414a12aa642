// Package ringchan provides non-blocking hand-off primitives for producers
// that must never stall, such as interrupt handlers.
package ringchan

import "sync/atomic"

// RingChannel is a bounded channel-like buffer whose producers never block:
// a send into a full buffer is dropped and counted. Consumers read from C()
// like a normal channel, or use TryReceive to have reads counted in the
// metrics.
type RingChannel[T any] struct {
	ch      chan T
	metrics Metrics
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
//
// Reads from the returned channel bypass the Processed metric.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// TrySend attempts to insert without blocking.
// Returns false if the buffer is full.
func (rc *RingChannel[T]) TrySend(v T) bool {
	select {
	case rc.ch <- v:
		rc.metrics.addWritten()
		return true
	default:
		rc.metrics.addDropped()
		return false
	}
}

// TryReceive attempts a non-blocking receive.
// Returns (zero, false) if no value is ready.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.metrics.addProcessed()
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// GetMetrics returns a snapshot of current metrics values.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Processed: atomic.LoadInt64(&rc.metrics.Processed),
		Written:   atomic.LoadInt64(&rc.metrics.Written),
		Dropped:   atomic.LoadInt64(&rc.metrics.Dropped),
	}
}

// Metrics provides lock-free counters for a RingChannel.
type Metrics struct {
	Processed int64
	Written   int64
	Dropped   int64 // rejected by TrySend
}

func (m *Metrics) addProcessed() {
	atomic.AddInt64(&m.Processed, 1)
}

func (m *Metrics) addWritten() {
	atomic.AddInt64(&m.Written, 1)
}

func (m *Metrics) addDropped() {
	atomic.AddInt64(&m.Dropped, 1)
}
