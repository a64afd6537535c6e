// ring.go: lock-free bounded ring buffer with overwrite-on-full semantics
//
// This is the retained-event-history ring. It is disruptor-shaped like the
// internal/zephyroslite control channel (cache-line padded atomic cursors,
// per-slot publication sequence), but its full-buffer policy is the
// opposite of zephyroslite's: zephyroslite drops the newest item when full
// (right for the bounded control channel), this ring evicts the oldest
// item when full (right for "retain the last N events").
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package ring

import "github.com/agilira/ttlog/internal/zephyroslite"

// emptySeq marks a slot that has never been published, or whose published
// value has been consumed and not yet overwritten.
const emptySeq = -1

// Ring is a bounded FIFO of capacity N fixed at construction. Multiple
// producer goroutines may Push concurrently; the common case is a single
// consumer draining via Pop/TakeSnapshot, but the sequence-per-slot
// protocol holds for multiple concurrent consumers too.
type Ring[T any] struct {
	buffer   []T
	seq      []zephyroslite.AtomicPaddedInt64
	capacity int64

	writeCursor zephyroslite.AtomicPaddedInt64 // next sequence to claim
	readCursor  zephyroslite.AtomicPaddedInt64 // oldest sequence still logically present

	totalPushed  zephyroslite.AtomicPaddedInt64
	totalEvicted zephyroslite.AtomicPaddedInt64
}

// New creates a Ring with the given capacity, which must be positive.
func New[T any](capacity int64) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	r := &Ring[T]{
		buffer:   make([]T, capacity),
		seq:      make([]zephyroslite.AtomicPaddedInt64, capacity),
		capacity: capacity,
	}
	for i := range r.seq {
		r.seq[i].Store(emptySeq)
	}
	return r
}

// Push enqueues item. If the ring is full the oldest element is evicted to
// make room; evicted reports whether that happened. Push never blocks: it
// is bounded by a small, constant number of compare-and-swap attempts on
// the read cursor (only contended when multiple producers race the same
// eviction).
func (r *Ring[T]) Push(item T) (evicted bool) {
	seqNum := r.writeCursor.Add(1) - 1
	idx := seqNum % r.capacity

	for {
		rd := r.readCursor.Load()
		if seqNum < rd+r.capacity {
			break // room available for this sequence
		}
		if r.readCursor.CompareAndSwap(rd, rd+1) {
			r.totalEvicted.Add(1)
			evicted = true
			break
		}
		// Another producer already advanced the read cursor; re-check.
	}

	r.buffer[idx] = item
	r.seq[idx].Store(seqNum)
	r.totalPushed.Add(1)
	return evicted
}

// PushOverwrite is Push without the eviction signal: it always "succeeds"
// in the sense that the item is always stored, silently evicting the
// oldest element when the ring is full.
func (r *Ring[T]) PushOverwrite(item T) {
	r.Push(item)
}

// Pop removes and returns the FIFO-oldest element. ok is false if the ring
// is currently empty.
func (r *Ring[T]) Pop() (item T, ok bool) {
	for {
		rd := r.readCursor.Load()
		wr := r.writeCursor.Load()
		if rd >= wr {
			return item, false
		}
		idx := rd % r.capacity
		if r.seq[idx].Load() != rd {
			// The slot hasn't been published yet (producer in flight) or was
			// already consumed by a racing Pop; retry rather than block.
			continue
		}
		if r.readCursor.CompareAndSwap(rd, rd+1) {
			item = r.buffer[idx]
			r.seq[idx].Store(emptySeq)
			return item, true
		}
	}
}

// TakeSnapshot drains the ring and returns every element currently present,
// in FIFO order. After this call the ring is empty (modulo concurrent
// pushes racing the drain, which are simply not included).
func (r *Ring[T]) TakeSnapshot() []T {
	var out []T
	for {
		item, ok := r.Pop()
		if !ok {
			break
		}
		out = append(out, item)
	}
	return out
}

// Len returns the current number of elements in the ring.
func (r *Ring[T]) Len() int64 {
	n := r.writeCursor.Load() - r.readCursor.Load()
	if n < 0 {
		return 0
	}
	return n
}

// Capacity returns the ring's fixed capacity.
func (r *Ring[T]) Capacity() int64 { return r.capacity }

// IsFull reports whether the ring is currently at capacity.
func (r *Ring[T]) IsFull() bool { return r.Len() >= r.capacity }

// RemainingCapacity returns how many more elements fit before the next
// Push would evict.
func (r *Ring[T]) RemainingCapacity() int64 {
	remaining := r.capacity - r.Len()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Stats is a point-in-time snapshot of the ring's counters.
type Stats struct {
	Len          int64
	Capacity     int64
	TotalPushed  int64
	TotalEvicted int64
	FillRatio    float64
}

// Stats returns a point-in-time snapshot of counters and fill ratio.
func (r *Ring[T]) Stats() Stats {
	length := r.Len()
	return Stats{
		Len:          length,
		Capacity:     r.capacity,
		TotalPushed:  r.totalPushed.Load(),
		TotalEvicted: r.totalEvicted.Load(),
		FillRatio:    float64(length) / float64(r.capacity),
	}
}
