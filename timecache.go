// timecache.go: cached millisecond clock for the Event construction hot path
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package ttlog

import (
	"sync/atomic"
	"time"
)

// timeCache provides cached time access so the emit fast path never calls
// time.Now() directly: one atomic load instead of a syscall/vDSO hit per
// event, at the cost of up to one tick of timestamp skew.
type timeCache struct {
	cachedMillis int64
	ticker       *time.Ticker
	stopCh       chan struct{}
}

var globalTimeCache = newTimeCache(500 * time.Microsecond)

func newTimeCache(resolution time.Duration) *timeCache {
	tc := &timeCache{
		cachedMillis: time.Now().UnixMilli(),
		ticker:       time.NewTicker(resolution),
		stopCh:       make(chan struct{}),
	}
	go tc.updateLoop()
	return tc
}

func (tc *timeCache) updateLoop() {
	for {
		select {
		case <-tc.ticker.C:
			atomic.StoreInt64(&tc.cachedMillis, time.Now().UnixMilli())
		case <-tc.stopCh:
			tc.ticker.Stop()
			return
		}
	}
}

func (tc *timeCache) nowMillis() int64 {
	return atomic.LoadInt64(&tc.cachedMillis)
}

func (tc *timeCache) stop() {
	close(tc.stopCh)
}

// CachedTimeMillis returns the ttlog package's cached current time in
// milliseconds since the Unix epoch. Used by the fast emission path to
// build Event.packedMeta without a syscall per event.
func CachedTimeMillis() int64 {
	return globalTimeCache.nowMillis()
}
