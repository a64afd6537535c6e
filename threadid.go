// threadid.go: approximate stable per-goroutine thread identifier
//
// Go exposes no OS thread id at the goroutine level, so Event.ThreadID is
// approximated the same way the interner's hot cache approximates
// thread-local storage: a sync.Pool-distributed slot whose id, once
// assigned, tends to stay associated with the same P/goroutine under low
// contention. It is a heuristic grouping key for log correlation, not a
// guaranteed unique OS thread id.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package ttlog

import (
	"sync"
	"sync/atomic"
)

var threadIDCounter uint32

type threadSlot struct {
	id uint8
}

var threadSlotPool = sync.Pool{
	New: func() any {
		n := atomic.AddUint32(&threadIDCounter, 1)
		return &threadSlot{id: uint8(n)}
	},
}

// currentThreadID returns the calling goroutine's approximate thread slot.
func currentThreadID() uint8 {
	slot := threadSlotPool.Get().(*threadSlot)
	id := slot.id
	threadSlotPool.Put(slot)
	return id
}
