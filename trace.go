// trace.go: the Trace controller — fast emission path, single writer
// thread, and the control-channel protocol between them
//
// Producers intern strings and pack the Event on their own goroutine, then
// hand a populated slot to ZephyrosLight.Write; a single consumer goroutine
// runs ZephyrosLight.LoopProcess, calling back into process() for every
// message in arrival order. The ring and the listeners are touched only by
// that goroutine; the interner is shared and guards its own slow path.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package ttlog

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/ttlog/internal/ring"
	"github.com/agilira/ttlog/internal/zephyroslite"
)

type ctrlKind uint8

const (
	ctrlEvent ctrlKind = iota
	ctrlSnapshot
	ctrlFlush
	ctrlShutdown
)

// ctrlMsg is the single message type carried by the control channel. reply,
// when non-nil, is closed by process() after the request is fully handled,
// carrying the operation's error (nil on success).
type ctrlMsg struct {
	kind   ctrlKind
	event  Event
	reason string
	reply  chan *errors.Error
}

// Trace is one fully initialized logging engine: a ring buffer retaining
// recent events, a four-namespace interner, a bounded control channel
// feeding a single writer goroutine, and the listeners that goroutine
// fans resolved events out to.
type Trace struct {
	cfg      *Config
	ring     *ring.Ring[Event]
	interner *StringInterner
	level    *AtomicLevel
	channel  *zephyroslite.ZephyrosLight[ctrlMsg]

	listeners []Listener
	listenMu  sync.RWMutex

	flushTicker *time.Ticker
	flushDone   chan struct{}

	loopDone   chan struct{}
	sigDone    chan struct{}
	closeOnce  sync.Once
	closed     chan struct{}
}

var (
	globalMu    sync.Mutex
	globalTrace *Trace
)

// Init validates cfg, creates the snapshot directory, wires the ring,
// interner, control channel, and configured listeners, and starts the
// writer thread. Only one Trace may be live at a time: Init returns an
// ErrCodeAlreadyInitialized error until the previous Trace is shut down.
func Init(cfg Config) (*Trace, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	full := cfg.withDefaults()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalTrace != nil {
		return nil, newTraceError(ErrCodeAlreadyInitialized, "Init called while a previous Trace is still running")
	}

	if err := os.MkdirAll(full.SnapshotDir, 0o755); err != nil {
		return nil, wrapTraceError(err, ErrCodeInvalidConfig, "create snapshot directory")
	}

	t := &Trace{
		cfg:       full,
		ring:      ring.New[Event](full.Capacity),
		interner:  NewStringInterner(full.OnInternerExhaustion),
		level:     NewAtomicLevel(full.Level),
		listeners: append([]Listener(nil), full.Listeners...),
		closed:    make(chan struct{}),
	}

	for _, l := range t.listeners {
		if err := l.OnStart(); err != nil {
			return nil, wrapTraceError(err, ErrCodeInvalidConfig, fmt.Sprintf("start listener %q", l.Name()))
		}
	}

	channel, err := zephyroslite.NewBuilder[ctrlMsg](nextPowerOfTwo(full.ChannelCapacity)).
		WithProcessor(t.process).
		WithBatchSize(64).
		WithBackpressurePolicy(full.ChannelBackpressure).
		WithIdleStrategy(full.IdleStrategy).
		Build()
	if err != nil {
		return nil, wrapTraceError(err, ErrCodeInvalidConfig, "build control channel")
	}
	t.channel = channel

	t.loopDone = make(chan struct{})
	go func() {
		t.channel.LoopProcess()
		close(t.loopDone)
	}()

	if full.FlushInterval > 0 {
		t.flushTicker = time.NewTicker(full.FlushInterval)
		t.flushDone = make(chan struct{})
		go t.periodicFlush()
	}

	t.sigDone = installSignalHandlers(t)

	globalTrace = t

	return t, nil
}

func nextPowerOfTwo(n int64) int64 {
	if n <= 1 {
		return 1
	}
	p := int64(1)
	for p < n {
		p <<= 1
	}
	return p
}

func (t *Trace) periodicFlush() {
	for {
		select {
		case <-t.flushTicker.C:
			t.channel.Write(func(m *ctrlMsg) { *m = ctrlMsg{kind: ctrlFlush} })
			if _, err := t.RequestSnapshotBlocking(context.Background(), "periodic"); err != nil {
				handleError(wrapTraceError(err, ErrCodeSnapshotTimeout, "periodic snapshot"))
			}
		case <-t.flushDone:
			return
		}
	}
}

// process runs on the single writer goroutine, called once per message in
// the order messages were accepted onto the channel.
func (t *Trace) process(m *ctrlMsg) {
	switch m.kind {
	case ctrlEvent:
		t.ring.PushOverwrite(m.event)
		t.listenMu.RLock()
		listeners := t.listeners
		t.listenMu.RUnlock()
		if len(listeners) > 0 {
			dispatch(listeners, t.resolve(m.event))
		}
	case ctrlFlush:
		t.listenMu.RLock()
		listeners := t.listeners
		t.listenMu.RUnlock()
		flushAll(listeners)
		replyOK(m.reply, nil)
	case ctrlSnapshot:
		snap := t.buildSnapshot(m.reason)
		_, err := t.writeSnapshot(snap)
		if err != nil {
			handleError(err)
		}
		replyOK(m.reply, err)
	case ctrlShutdown:
		t.listenMu.RLock()
		listeners := t.listeners
		t.listenMu.RUnlock()
		flushAll(listeners)
		snap := t.buildSnapshot("shutdown")
		if _, err := t.writeSnapshot(snap); err != nil {
			handleError(err)
		}
		shutdownAll(listeners)
		replyOK(m.reply, nil)
		t.channel.Close()
	}
}

func replyOK(reply chan *errors.Error, err *errors.Error) {
	if reply == nil {
		return
	}
	reply <- err
	close(reply)
}

// emit is the fast path: level-gate, intern, pack, hand off. Under the
// default DropOnFull channel policy it never blocks (a full channel drops
// the event); with BlockOnFull it waits for channel space.
func (t *Trace) emit(level Level, target, message string, fields ...Field) {
	if !t.level.Enabled(level) {
		return
	}

	file, line := callerLocation(3)
	targetID := t.interner.InternTarget([]byte(target))
	messageID := t.interner.InternMessage([]byte(message))
	fileID := t.interner.InternFile([]byte(file))

	var kvID uint16
	if kv := EncodeKV(fields...); kv != nil {
		kvID = t.interner.InternKV(kv)
	}

	ev := NewEvent(CachedTimeMillis(), level, targetID, messageID, fileID, uint32(line), 0, currentThreadID(), kvID)
	t.channel.Write(func(m *ctrlMsg) { *m = ctrlMsg{kind: ctrlEvent, event: ev} })
}

func callerLocation(skip int) (file string, line int) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "<unknown>", 0
	}
	return file, line
}

func (t *Trace) Trace(target, message string, fields ...Field) { t.emit(TRACE, target, message, fields...) }
func (t *Trace) Debug(target, message string, fields ...Field) { t.emit(DEBUG, target, message, fields...) }
func (t *Trace) Info(target, message string, fields ...Field)  { t.emit(INFO, target, message, fields...) }
func (t *Trace) Warn(target, message string, fields ...Field)  { t.emit(WARN, target, message, fields...) }
func (t *Trace) Error(target, message string, fields ...Field) { t.emit(ERROR, target, message, fields...) }
func (t *Trace) Fatal(target, message string, fields ...Field) { t.emit(FATAL, target, message, fields...) }

// SetLevel changes the process-wide minimum emitted level.
func (t *Trace) SetLevel(level Level) { t.level.SetLevel(level) }

// Level returns the current minimum emitted level.
func (t *Trace) Level() Level { return t.level.Level() }

// AddListener registers an additional listener and starts it. Safe to call
// after Init; the listener only observes events processed after it joins.
func (t *Trace) AddListener(l Listener) error {
	if err := l.OnStart(); err != nil {
		return wrapTraceError(err, ErrCodeInvalidConfig, fmt.Sprintf("start listener %q", l.Name()))
	}
	t.listenMu.Lock()
	t.listeners = append(t.listeners, l)
	t.listenMu.Unlock()
	return nil
}

// RequestSnapshot asynchronously triggers a snapshot labeled reason and
// returns without waiting for it to complete; failures surface through the
// error handler.
func (t *Trace) RequestSnapshot(reason string) {
	t.channel.Write(func(m *ctrlMsg) { *m = ctrlMsg{kind: ctrlSnapshot, reason: reason} })
}

// RequestSnapshotBlocking triggers a snapshot labeled reason and waits for
// it to be durable, or for ctx to expire.
func (t *Trace) RequestSnapshotBlocking(ctx context.Context, reason string) (string, error) {
	reply := make(chan *errors.Error, 1)
	accepted := t.channel.Write(func(m *ctrlMsg) { *m = ctrlMsg{kind: ctrlSnapshot, reason: reason, reply: reply} })
	if !accepted {
		return "", newTraceError(ErrCodeSnapshotTimeout, "control channel full, snapshot request dropped")
	}
	select {
	case err := <-reply:
		if err != nil {
			return "", err
		}
		return "", nil
	case <-ctx.Done():
		return "", wrapTraceError(ctx.Err(), ErrCodeSnapshotTimeout, "snapshot request deadline exceeded")
	}
}

// Stats reports point-in-time counters across the ring, interner, and
// control channel, for introspection and tests.
type Stats struct {
	Ring           ring.Stats
	Interner       InternerStats
	ChannelDropped int64
}

// Stats returns the current counters.
func (t *Trace) Stats() Stats {
	chStats := t.channel.Stats()
	return Stats{
		Ring:           t.ring.Stats(),
		Interner:       t.interner.Stats(),
		ChannelDropped: chStats["items_dropped"],
	}
}

// Shutdown signals the flush and signal goroutines to stop, then has the
// writer thread flush listeners, take a final "shutdown" snapshot and close
// every listener, and waits for the writer thread to exit or for ctx to
// expire, whichever comes first.
func (t *Trace) Shutdown(ctx context.Context) error {
	var shutdownErr error
	t.closeOnce.Do(func() {
		if t.flushTicker != nil {
			t.flushTicker.Stop()
			close(t.flushDone)
		}
		if t.sigDone != nil {
			close(t.sigDone)
		}

		reply := make(chan *errors.Error, 1)
		if !t.channel.Write(func(m *ctrlMsg) { *m = ctrlMsg{kind: ctrlShutdown, reply: reply} }) {
			// Channel already full/closed: force-close directly.
			t.channel.Close()
		}

		select {
		case <-reply:
		case <-ctx.Done():
			shutdownErr = wrapTraceError(ctx.Err(), ErrCodeShutdownTimeout, "listener shutdown deadline exceeded")
		case <-t.loopDone:
		}

		select {
		case <-t.loopDone:
		case <-ctx.Done():
			if shutdownErr == nil {
				shutdownErr = newTraceError(ErrCodeShutdownTimeout, "writer thread did not exit before deadline")
			}
		}
		close(t.closed)

		globalMu.Lock()
		if globalTrace == t {
			globalTrace = nil
		}
		globalMu.Unlock()
	})
	return shutdownErr
}
