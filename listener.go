// listener.go: Listener interface and the stdout/file sinks the writer
// thread fans resolved events out to
//
// Each listener wraps an io.Writer plus an explicit Sync(), file listeners
// serialize writes under a mutex, and multiple listeners fan out
// independently with panic isolation per call.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package ttlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/agilira/ttlog/internal/bufferpool"
)

// ResolvedEvent is an Event with every interned ID resolved back to its
// string form, the shape Listener implementations actually consume. KV is
// the raw JSON blob bytes, or nil if the event carried none.
type ResolvedEvent struct {
	TimestampMs int64
	Level       Level
	Target      string
	Message     string
	File        string
	Line        uint32
	Column      uint32
	ThreadID    uint8
	KV          []byte
}

// resolvedEventWire is the on-disk CBOR shape of a ResolvedEvent: level as
// its text name, line/column collapsed into a two-element position array,
// and kv as the decoded JSON value (or null when absent), matching how a
// non-Go reader is expected to parse a snapshot file.
type resolvedEventWire struct {
	TimestampMs int64       `cbor:"timestamp_ms"`
	Level       string      `cbor:"level"`
	Target      string      `cbor:"target"`
	Message     string      `cbor:"message"`
	File        string      `cbor:"file"`
	Position    [2]uint32   `cbor:"position"`
	ThreadID    uint8       `cbor:"thread_id"`
	KV          interface{} `cbor:"kv"`
}

// MarshalCBOR implements cbor.Marshaler, producing the wire schema a
// snapshot reader expects rather than a direct field-by-field encoding of
// ResolvedEvent's Go-side representation.
func (ev ResolvedEvent) MarshalCBOR() ([]byte, error) {
	wire := resolvedEventWire{
		TimestampMs: ev.TimestampMs,
		Level:       ev.Level.String(),
		Target:      ev.Target,
		Message:     ev.Message,
		File:        ev.File,
		Position:    [2]uint32{ev.Line, ev.Column},
		ThreadID:    ev.ThreadID,
	}
	if len(ev.KV) > 0 {
		var decoded interface{}
		if err := json.Unmarshal(ev.KV, &decoded); err != nil {
			return nil, fmt.Errorf("decode kv blob as JSON: %w", err)
		}
		wire.KV = decoded
	}
	return cbor.Marshal(wire)
}

// UnmarshalCBOR implements cbor.Unmarshaler, the inverse of MarshalCBOR.
func (ev *ResolvedEvent) UnmarshalCBOR(data []byte) error {
	var wire resolvedEventWire
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return err
	}
	level, err := ParseLevel(wire.Level)
	if err != nil {
		return fmt.Errorf("decode resolved event level: %w", err)
	}
	ev.TimestampMs = wire.TimestampMs
	ev.Level = level
	ev.Target = wire.Target
	ev.Message = wire.Message
	ev.File = wire.File
	ev.Line = wire.Position[0]
	ev.Column = wire.Position[1]
	ev.ThreadID = wire.ThreadID
	ev.KV = nil
	if wire.KV != nil {
		kv, err := json.Marshal(wire.KV)
		if err != nil {
			return fmt.Errorf("re-encode kv value as JSON: %w", err)
		}
		ev.KV = kv
	}
	return nil
}

// Listener receives resolved events from the writer thread. Handle is
// called once per event outside of any batch boundary guarantee: a
// Listener that wants batching should buffer internally and flush from
// OnFlush. A panicking Handle/OnFlush is recovered by the caller and
// reported through the error handler; it never stops the pipeline.
type Listener interface {
	// Name identifies the listener in error reports.
	Name() string
	// OnStart is called once before the writer thread begins delivering
	// events, letting the listener open files or allocate buffers.
	OnStart() error
	// Handle processes a single resolved event.
	Handle(ev ResolvedEvent) error
	// OnFlush is called on the configured flush interval and on shutdown,
	// after which any internally buffered output must be durable.
	OnFlush() error
	// OnShutdown releases resources. Called exactly once, after a final
	// OnFlush.
	OnShutdown() error
}

// dispatch delivers ev to every listener, isolating panics and I/O errors
// per listener so one faulty sink can't block or corrupt the others.
func dispatch(listeners []Listener, ev ResolvedEvent) {
	for _, l := range listeners {
		handleOneListener(l, ev)
	}
}

func handleOneListener(l Listener, ev ResolvedEvent) {
	defer recoverListenerPanic(l.Name())
	if err := l.Handle(ev); err != nil {
		handleError(wrapTraceError(err, ErrCodeListenerPanic, fmt.Sprintf("listener %q handle error", l.Name())))
	}
}

func flushAll(listeners []Listener) {
	for _, l := range listeners {
		func() {
			defer recoverListenerPanic(l.Name())
			if err := l.OnFlush(); err != nil {
				handleError(wrapTraceError(err, ErrCodeListenerPanic, fmt.Sprintf("listener %q flush error", l.Name())))
			}
		}()
	}
}

func shutdownAll(listeners []Listener) {
	for _, l := range listeners {
		func() {
			defer recoverListenerPanic(l.Name())
			_ = l.OnShutdown()
		}()
	}
}

// StdoutListener formats each resolved event as a single line of
// plain text to os.Stdout. It's the default listener installed when
// Config.Listeners is empty.
type StdoutListener struct {
	mu sync.Mutex
}

// NewStdoutListener creates a StdoutListener.
func NewStdoutListener() *StdoutListener { return &StdoutListener{} }

func (s *StdoutListener) Name() string   { return "stdout" }
func (s *StdoutListener) OnStart() error { return nil }

func (s *StdoutListener) Handle(ev ResolvedEvent) error {
	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	formatLine(buf, ev)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stdout.Write(buf.Bytes())
	return err
}

func (s *StdoutListener) OnFlush() error    { return nil }
func (s *StdoutListener) OnShutdown() error { return nil }

// FileListener appends formatted lines to a file, creating parent
// directories on OnStart if necessary. Writes are serialized under an
// internal mutex; OnFlush fsyncs the file.
type FileListener struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// NewFileListener creates a FileListener targeting path. The file is not
// opened until OnStart.
func NewFileListener(path string) *FileListener {
	return &FileListener{path: path}
}

func (f *FileListener) Name() string { return "file:" + f.path }

func (f *FileListener) OnStart() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create listener directory: %w", err)
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open listener file: %w", err)
	}
	f.mu.Lock()
	f.file = file
	f.mu.Unlock()
	return nil
}

func (f *FileListener) Handle(ev ResolvedEvent) error {
	buf := bufferpool.Get()
	defer bufferpool.Put(buf)
	formatLine(buf, ev)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return fmt.Errorf("file listener %q not started", f.path)
	}
	_, err := f.file.Write(buf.Bytes())
	return err
}

func (f *FileListener) OnFlush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	return f.file.Sync()
}

func (f *FileListener) OnShutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

func formatLine(buf *bytes.Buffer, ev ResolvedEvent) {
	fmt.Fprintf(buf, "%d %s %s: %s (%s:%d:%d)", ev.TimestampMs, ev.Level.String(), ev.Target, ev.Message, ev.File, ev.Line, ev.Column)
	if len(ev.KV) > 0 {
		fmt.Fprintf(buf, " %s", ev.KV)
	}
	buf.WriteByte('\n')
}
