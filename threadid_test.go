// threadid_test.go: tests for the approximate per-goroutine thread slot
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package ttlog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrentThreadID_ReturnsNonZero(t *testing.T) {
	id := currentThreadID()
	assert.NotEqual(t, uint8(0), id)
}

func TestCurrentThreadID_ConcurrentCallsAreRaceFree(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = currentThreadID()
			}
		}()
	}
	wg.Wait()
}
