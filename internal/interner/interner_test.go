// interner_test.go: tests for per-namespace string interning
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package interner

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespace_InternAssignsDenseStableIDs(t *testing.T) {
	ns := NewNamespace("targets", nil)

	id1 := ns.Intern([]byte("auth"))
	id2 := ns.Intern([]byte("billing"))
	id1Again := ns.Intern([]byte("auth"))

	assert.NotEqual(t, uint16(0), id1)
	assert.NotEqual(t, uint16(0), id2)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, id1, id1Again, "interning the same bytes twice must return the same ID")
}

func TestNamespace_ZeroIsReservedForAbsent(t *testing.T) {
	ns := NewNamespace("messages", nil)

	b, ok := ns.Get(0)
	assert.False(t, ok)
	assert.Nil(t, b)
}

func TestNamespace_GetResolvesInternedBytes(t *testing.T) {
	ns := NewNamespace("files", nil)

	id := ns.Intern([]byte("main.go"))
	b, ok := ns.Get(id)
	require.True(t, ok)
	assert.Equal(t, "main.go", string(b))

	_, ok = ns.Get(id + 1000)
	assert.False(t, ok, "unassigned ID must not resolve")
}

func TestNamespace_LenTracksAssignedIDs(t *testing.T) {
	ns := NewNamespace("targets", nil)
	assert.Equal(t, 0, ns.Len())

	ns.Intern([]byte("a"))
	ns.Intern([]byte("b"))
	ns.Intern([]byte("a")) // repeat, must not grow Len

	assert.Equal(t, 2, ns.Len())
}

func TestNamespace_CallerSliceIsCopiedOnIntern(t *testing.T) {
	ns := NewNamespace("kv", nil)
	buf := []byte("mutable")
	id := ns.Intern(buf)

	buf[0] = 'M'

	resolved, ok := ns.Get(id)
	require.True(t, ok)
	assert.Equal(t, "mutable", string(resolved), "namespace must own a copy, not alias the caller's slice")
}

func TestNamespace_ConcurrentInternIsRaceFree(t *testing.T) {
	ns := NewNamespace("targets", nil)
	const goroutines = 32
	const perGoroutine = 200

	var wg sync.WaitGroup
	ids := make([][]uint16, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			local := make([]uint16, perGoroutine)
			for i := 0; i < perGoroutine; i++ {
				key := fmt.Sprintf("key-%d", i%50)
				local[i] = ns.Intern([]byte(key))
			}
			ids[g] = local
		}(g)
	}
	wg.Wait()

	// Every goroutine interning "key-7" must observe the same ID.
	want := ids[0][7]
	for g := 1; g < goroutines; g++ {
		assert.Equal(t, want, ids[g][7])
	}
	assert.LessOrEqual(t, ns.Len(), 50)
}

func TestNamespace_ExhaustionInvokesOnWarnOnce(t *testing.T) {
	var calls int
	var mu sync.Mutex
	ns := NewNamespace("tiny", func(namespace string) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		assert.Equal(t, "tiny", namespace)
	})

	for i := 0; i <= maxID+5; i++ {
		ns.Intern([]byte(fmt.Sprintf("v-%d", i)))
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "exhaustion callback must fire exactly once")
}

// TestNamespace_ExhaustionBoundary pins down the exact entry count at which
// a namespace starts returning the sentinel. IDs are dense from 1 (0 is
// reserved for absent), so 1..maxID (u16::MAX = 65535) are all assignable:
// the maxID-th distinct string still gets a real ID, and only the next
// (65536th) one is exhausted.
func TestNamespace_ExhaustionBoundary(t *testing.T) {
	ns := NewNamespace("bound", nil)

	var lastID uint16
	for i := 0; i < maxID; i++ {
		lastID = ns.Intern([]byte(fmt.Sprintf("v-%d", i)))
	}
	assert.EqualValues(t, maxID, lastID, "the maxID-th distinct string must still receive a real ID")
	assert.EqualValues(t, maxID, ns.Len())

	sentinel := ns.Intern([]byte("one-too-many"))
	assert.EqualValues(t, 0, sentinel, "the entry past maxID must yield the sentinel")
}

func TestFnv1aIsDeterministic(t *testing.T) {
	a := fnv1a([]byte("hello world"))
	b := fnv1a([]byte("hello world"))
	c := fnv1a([]byte("hello world!"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
