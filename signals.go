// signals.go: best-effort crash/termination snapshotting
//
// Two independent hooks feed the same bounded blocking snapshot request:
// a panic recovery helper callers defer in goroutine entry points, and a
// background signal handler covering the terminal and fault signals a
// production process is expected to see. Both are bounded waits: a
// logging engine must never let its own durability story hang process
// shutdown.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package ttlog

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// panicSnapshotTimeout bounds how long RecoverAndSnapshot waits for the
// snapshot to become durable before re-panicking anyway.
const panicSnapshotTimeout = 200 * time.Millisecond

// signalSnapshotTimeout bounds the same wait for OS signal handling.
const signalSnapshotTimeout = 500 * time.Millisecond

// RecoverAndSnapshot is meant to be deferred at the top of a goroutine:
//
//	defer t.RecoverAndSnapshot()
//
// On panic it attempts a best-effort snapshot (bounded by
// panicSnapshotTimeout) so the ring's recent history survives the crash,
// then re-panics to preserve normal crash semantics and exit codes.
func (t *Trace) RecoverAndSnapshot() {
	if r := recover(); r != nil {
		ctx, cancel := context.WithTimeout(context.Background(), panicSnapshotTimeout)
		_, err := t.RequestSnapshotBlocking(ctx, "panic")
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "ttlog: panic snapshot failed: %v\n", err)
		}
		panic(r)
	}
}

// terminalSignals end the process after a best-effort snapshot.
var terminalSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGQUIT,
	syscall.SIGHUP,
	syscall.SIGABRT,
	syscall.SIGSEGV,
	syscall.SIGBUS,
	syscall.SIGILL,
	syscall.SIGFPE,
	syscall.SIGPIPE,
}

// installSignalHandlers starts a goroutine that snapshots on any of
// terminalSignals or SIGCHLD, then (for everything but SIGCHLD) exits the
// process. SIGCHLD snapshots and keeps running: it's routine child-process
// bookkeeping noise, not a signal of this process's own termination.
// Closing the returned channel stops the handler without touching process
// signal disposition for anything else in the binary.
func installSignalHandlers(t *Trace) chan struct{} {
	sigCh := make(chan os.Signal, 16)
	watched := append(append([]os.Signal(nil), terminalSignals...), syscall.SIGCHLD)
	signal.Notify(sigCh, watched...)

	done := make(chan struct{})
	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				t.handleSignal(sig)
			case <-done:
				return
			}
		}
	}()
	return done
}

func (t *Trace) handleSignal(sig os.Signal) {
	ctx, cancel := context.WithTimeout(context.Background(), signalSnapshotTimeout)
	_, err := t.RequestSnapshotBlocking(ctx, signalReason(sig))
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ttlog: signal %v snapshot failed: %v\n", sig, err)
	}

	if sig == syscall.SIGCHLD {
		return
	}

	os.Exit(128 + signalNumber(sig))
}

// signalNames maps the signals this package watches to the reason label
// used in snapshot file names and headers. Matches the signal's canonical
// uppercase name (SIGTERM, SIGINT, ...).
var signalNames = map[syscall.Signal]string{
	syscall.SIGINT:  "SIGINT",
	syscall.SIGTERM: "SIGTERM",
	syscall.SIGQUIT: "SIGQUIT",
	syscall.SIGHUP:  "SIGHUP",
	syscall.SIGABRT: "SIGABRT",
	syscall.SIGSEGV: "SIGSEGV",
	syscall.SIGBUS:  "SIGBUS",
	syscall.SIGILL:  "SIGILL",
	syscall.SIGFPE:  "SIGFPE",
	syscall.SIGPIPE: "SIGPIPE",
	syscall.SIGCHLD: "SIGCHLD",
}

// signalReason renders sig as the reason label used in snapshot file names.
func signalReason(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		if name, known := signalNames[s]; known {
			return name
		}
	}
	return "signal"
}

func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 1
}
