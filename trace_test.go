// trace_test.go: integration tests for Init, emission, snapshotting and
// shutdown of a full Trace pipeline
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package ttlog

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_RejectsInvalidConfig(t *testing.T) {
	_, err := Init(Config{})
	assert.Error(t, err)
}

func TestInit_CreatesSnapshotDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/snapshots"
	cfg := TestConfigWithListeners(dir, NewStdoutListener())

	tr, err := Init(cfg)
	require.NoError(t, err)
	defer shutdownNow(t, tr)

	_, statErr := os.Stat(dir)
	require.NoError(t, statErr)
}

func TestTrace_EmitDeliversToListener(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingListener{name: "rec"}
	tr, err := Init(TestConfigWithListeners(dir, rec))
	require.NoError(t, err)
	defer shutdownNow(t, tr)

	tr.Info("svc.auth", "user logged in", Str("user", "alice"))

	require.Eventually(t, func() bool {
		return len(rec.handled) == 1
	}, CIFriendlyTimeout(time.Second), 5*time.Millisecond)

	ev := rec.handled[0]
	assert.Equal(t, "svc.auth", ev.Target)
	assert.Equal(t, "user logged in", ev.Message)
	assert.Contains(t, string(ev.KV), "alice")
}

func TestTrace_LevelGateFiltersBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingListener{name: "rec"}
	cfg := TestConfigWithListeners(dir, rec)
	cfg.Level = WARN
	tr, err := Init(cfg)
	require.NoError(t, err)
	defer shutdownNow(t, tr)

	tr.Info("svc", "should be filtered")
	tr.Error("svc", "should pass")

	require.Eventually(t, func() bool {
		return len(rec.handled) == 1
	}, CIFriendlyTimeout(time.Second), 5*time.Millisecond)
	assert.Equal(t, "should pass", rec.handled[0].Message)
}

func TestTrace_SetLevelTakesEffectImmediately(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingListener{name: "rec"}
	tr, err := Init(TestConfigWithListeners(dir, rec))
	require.NoError(t, err)
	defer shutdownNow(t, tr)

	tr.SetLevel(ERROR)
	assert.Equal(t, ERROR, tr.Level())

	tr.Warn("svc", "dropped")
	tr.Error("svc", "kept")

	require.Eventually(t, func() bool {
		return len(rec.handled) == 1
	}, CIFriendlyTimeout(time.Second), 5*time.Millisecond)
}

func TestTrace_RequestSnapshotBlockingWritesFile(t *testing.T) {
	dir := t.TempDir()
	tr, err := Init(TestConfig(dir))
	require.NoError(t, err)
	defer shutdownNow(t, tr)

	tr.Info("svc", "event before snapshot")

	ctx, cancel := context.WithTimeout(context.Background(), CIFriendlyTimeout(2*time.Second))
	defer cancel()
	_, snapErr := tr.RequestSnapshotBlocking(ctx, "manual")
	require.NoError(t, snapErr)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.NotEmpty(t, entries)
}

func TestTrace_OverwriteOnFullRingDropsOldest(t *testing.T) {
	dir := t.TempDir()
	cfg := TestConfig(dir)
	cfg.Capacity = 4
	tr, err := Init(cfg)
	require.NoError(t, err)
	defer shutdownNow(t, tr)

	for i := 0; i < 20; i++ {
		tr.Info("svc", "spam")
	}

	require.Eventually(t, func() bool {
		return tr.Stats().Ring.TotalPushed >= 20
	}, CIFriendlyTimeout(time.Second), 5*time.Millisecond)

	stats := tr.Stats()
	assert.LessOrEqual(t, stats.Ring.Len, int64(4))
	assert.Greater(t, stats.Ring.TotalEvicted, int64(0))
}

func TestTrace_AddListenerAfterInit(t *testing.T) {
	dir := t.TempDir()
	tr, err := Init(TestConfig(dir))
	require.NoError(t, err)
	defer shutdownNow(t, tr)

	rec := &recordingListener{name: "late"}
	require.NoError(t, tr.AddListener(rec))

	tr.Info("svc", "after listener added")
	require.Eventually(t, func() bool {
		return len(rec.handled) == 1
	}, CIFriendlyTimeout(time.Second), 5*time.Millisecond)
}

func TestTrace_ShutdownIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	tr, err := Init(TestConfig(dir))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), CIFriendlyTimeout(time.Second))
	defer cancel()
	require.NoError(t, tr.Shutdown(ctx))
	require.NoError(t, tr.Shutdown(ctx), "a second Shutdown call must be a no-op, not an error or panic")
}

func TestTrace_ConcurrentEmitIsRaceFree(t *testing.T) {
	dir := t.TempDir()
	tr, err := Init(TestConfig(dir))
	require.NoError(t, err)
	defer shutdownNow(t, tr)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				tr.Info("svc", "concurrent", Int("goroutine", g), Int("i", i))
			}
		}(g)
	}
	wg.Wait()
}

func shutdownNow(t *testing.T, tr *Trace) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), CIFriendlyTimeout(2*time.Second))
	defer cancel()
	assert.NoError(t, tr.Shutdown(ctx))
}
