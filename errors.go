// errors.go: error taxonomy and handler integration for ttlog
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package ttlog

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/agilira/go-errors"
)

// Error codes for ttlog. Only conditions
// that must be surfaced somewhere (they can never propagate through the
// fast emission path) get a code; pure programmer misuse on the control
// API returns a plain *errors.Error built from these at the call site.
const (
	// ErrCodeAlreadyInitialized is returned by Init while a previously
	// initialized Trace has not been shut down.
	ErrCodeAlreadyInitialized errors.ErrorCode = "TTLOG_ALREADY_INITIALIZED"
	// ErrCodeNotInitialized names use of a Trace before Init or after
	// Shutdown. No function in this package returns it: after Shutdown,
	// emitted events are dropped and counted, and RequestSnapshotBlocking
	// fails with ErrCodeSnapshotTimeout.
	ErrCodeNotInitialized errors.ErrorCode = "TTLOG_NOT_INITIALIZED"
	// ErrCodeInvalidConfig flags a rejected Config (negative capacity,
	// missing service name, etc).
	ErrCodeInvalidConfig errors.ErrorCode = "TTLOG_INVALID_CONFIG"

	// ErrCodeInternerExhausted marks a namespace that hit u16::MAX entries.
	ErrCodeInternerExhausted errors.ErrorCode = "TTLOG_INTERNER_EXHAUSTED"

	// ErrCodeListenerPanic marks a listener whose handle() panicked; the
	// pipeline isolates and continues, this code is for the surfaced report.
	ErrCodeListenerPanic errors.ErrorCode = "TTLOG_LISTENER_PANIC"

	// ErrCodeSnapshotWrite covers failures writing, fsyncing, or renaming
	// the temporary snapshot file.
	ErrCodeSnapshotWrite errors.ErrorCode = "TTLOG_SNAPSHOT_WRITE"
	// ErrCodeSnapshotEncode covers CBOR/LZ4 encoding failures, logically
	// unreachable for well-formed events.
	ErrCodeSnapshotEncode errors.ErrorCode = "TTLOG_SNAPSHOT_ENCODE"
	// ErrCodeSnapshotTimeout marks a blocking snapshot request that was
	// not confirmed durable within its caller-imposed deadline.
	ErrCodeSnapshotTimeout errors.ErrorCode = "TTLOG_SNAPSHOT_TIMEOUT"

	// ErrCodeShutdownTimeout marks a Shutdown call whose writer thread did
	// not exit within the caller's bound.
	ErrCodeShutdownTimeout errors.ErrorCode = "TTLOG_SHUTDOWN_TIMEOUT"
)

// ErrorHandler receives structured errors for conditions the fast emission
// path can never surface directly: interner exhaustion, listener panics,
// snapshot I/O failures. It must not itself log through ttlog (that would
// recurse); the default handler writes to stderr.
type ErrorHandler func(err *errors.Error)

var defaultErrorHandler ErrorHandler = func(err *errors.Error) {
	fmt.Fprintf(os.Stderr, "[TTLOG ERROR] %s: %s\n", err.Code, err.Message)
	if err.Cause != nil {
		fmt.Fprintf(os.Stderr, "[TTLOG ERROR] caused by: %v\n", err.Cause)
	}
}

var currentErrorHandler = defaultErrorHandler

// SetErrorHandler installs a custom handler for errors the hot path cannot
// return. Passing nil restores the default stderr handler.
func SetErrorHandler(handler ErrorHandler) {
	if handler == nil {
		currentErrorHandler = defaultErrorHandler
		return
	}
	currentErrorHandler = handler
}

// GetErrorHandler returns the current error handler.
func GetErrorHandler() ErrorHandler {
	return currentErrorHandler
}

func handleError(err *errors.Error) {
	if err == nil {
		return
	}
	if err.Context == nil {
		err.Context = make(map[string]interface{})
	}
	err.Context["go_version"] = runtime.Version()
	currentErrorHandler(err)
}

// newTraceError builds a *errors.Error with standard ttlog context.
func newTraceError(code errors.ErrorCode, message string) *errors.Error {
	return errors.New(code, message).
		WithSeverity("error").
		WithContext("component", "ttlog").
		WithContext("timestamp", time.Now().UTC())
}

// wrapTraceError wraps an existing error with ttlog context.
func wrapTraceError(cause error, code errors.ErrorCode, message string) *errors.Error {
	return errors.Wrap(cause, code, message).
		WithSeverity("error").
		WithContext("component", "ttlog").
		WithContext("timestamp", time.Now().UTC())
}

// recoverListenerPanic recovers from a panic inside a Listener's handle()
// and reports it through the error handler, isolating the fault so a
// single faulty listener cannot corrupt the writer pipeline.
func recoverListenerPanic(listenerName string) {
	if r := recover(); r != nil {
		err := newTraceError(ErrCodeListenerPanic, fmt.Sprintf("listener %q panicked: %v", listenerName, r))
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		_ = err.WithContext("listener", listenerName)
		_ = err.WithContext("panic_stack", string(buf[:n]))
		handleError(err)
	}
}
