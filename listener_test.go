// listener_test.go: tests for Listener dispatch and the stdout/file sinks
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package ttlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	name         string
	handled      []ResolvedEvent
	flushCount   int
	shutdownDone bool
	handleErr    error
	panicOnce    bool
}

func (r *recordingListener) Name() string   { return r.name }
func (r *recordingListener) OnStart() error { return nil }
func (r *recordingListener) Handle(ev ResolvedEvent) error {
	if r.panicOnce {
		r.panicOnce = false
		panic("boom")
	}
	r.handled = append(r.handled, ev)
	return r.handleErr
}
func (r *recordingListener) OnFlush() error    { r.flushCount++; return nil }
func (r *recordingListener) OnShutdown() error { r.shutdownDone = true; return nil }

func TestDispatch_DeliversToAllListeners(t *testing.T) {
	a := &recordingListener{name: "a"}
	b := &recordingListener{name: "b"}
	ev := ResolvedEvent{Message: "hello"}

	dispatch([]Listener{a, b}, ev)

	require.Len(t, a.handled, 1)
	require.Len(t, b.handled, 1)
	assert.Equal(t, "hello", a.handled[0].Message)
}

func TestDispatch_PanicInOneListenerDoesNotBlockOthers(t *testing.T) {
	broken := &recordingListener{name: "broken", panicOnce: true}
	fine := &recordingListener{name: "fine"}

	assert.NotPanics(t, func() {
		dispatch([]Listener{broken, fine}, ResolvedEvent{Message: "x"})
	})
	assert.Len(t, fine.handled, 1)
	assert.Empty(t, broken.handled)
}

func TestDispatch_HandleErrorIsReportedNotFatal(t *testing.T) {
	l := &recordingListener{name: "erroring", handleErr: errors.New("disk full")}
	assert.NotPanics(t, func() {
		dispatch([]Listener{l}, ResolvedEvent{})
	})
	assert.Len(t, l.handled, 1)
}

func TestFlushAllAndShutdownAll(t *testing.T) {
	l := &recordingListener{name: "l"}
	flushAll([]Listener{l})
	assert.Equal(t, 1, l.flushCount)

	shutdownAll([]Listener{l})
	assert.True(t, l.shutdownDone)
}

func TestStdoutListener_HandleWritesFormattedLine(t *testing.T) {
	l := NewStdoutListener()
	require.NoError(t, l.OnStart())
	err := l.Handle(ResolvedEvent{TimestampMs: 1, Level: INFO, Target: "svc", Message: "hi", File: "main.go", Line: 10})
	assert.NoError(t, err)
	assert.NoError(t, l.OnFlush())
	assert.NoError(t, l.OnShutdown())
}

func TestFileListener_WritesAndFormatsLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "out.log")
	l := NewFileListener(path)
	require.NoError(t, l.OnStart())

	require.NoError(t, l.Handle(ResolvedEvent{
		TimestampMs: 1700000000000,
		Level:       ERROR,
		Target:      "svc",
		Message:     "boom",
		File:        "main.go",
		Line:        42,
		Column:      3,
		KV:          []byte(`{"k":"v"}`),
	}))
	require.NoError(t, l.OnFlush())
	require.NoError(t, l.OnShutdown())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "ERROR svc: boom (main.go:42:3)")
	assert.Contains(t, string(contents), `{"k":"v"}`)
}

func TestFileListener_HandleBeforeStartFails(t *testing.T) {
	l := NewFileListener(filepath.Join(t.TempDir(), "out.log"))
	err := l.Handle(ResolvedEvent{})
	assert.Error(t, err)
}
