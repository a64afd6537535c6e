// Package ttlog is an in-process structured logging engine built around a
// compact packed Event record, a four-namespace string interner, and a
// lock-free ring buffer that retains the most recent events for on-demand
// or crash-time snapshotting.
//
// # Design
//
// Every call on the hot path (emit) does no allocation beyond what the
// caller's Field values require: the target, message, file, and any kv
// blob are interned into dense uint16 IDs, and the resulting fixed-size
// Event is handed over a bounded control channel to a single writer
// goroutine. That goroutine pushes each Event into a lock-free ring buffer
// that silently overwrites its oldest entry once full, and, on the same
// channel, receives snapshot/flush/shutdown requests: for a snapshot it
// resolves ring contents back into strings, encodes them as CBOR,
// compresses the result with LZ4, and atomically writes the snapshot file
// (temp file, fsync, rename).
//
// # Quick start
//
//	t, err := ttlog.Init(ttlog.Config{
//		ServiceName: "payments",
//		SnapshotDir: "/var/log/payments/snapshots",
//	})
//	if err != nil {
//		panic(err)
//	}
//	defer t.Shutdown(context.Background())
//
//	t.Info("order", "order placed", ttlog.Int("order_id", 42))
//
// # Snapshots
//
// A snapshot can be requested at any time (t.RequestSnapshot), is taken
// automatically on the configured flush interval, and is taken best-effort
// from a recovered panic or a caught termination signal.
//
// # Error handling
//
// Conditions that cannot be returned from the hot path (interner
// exhaustion, listener panics, snapshot I/O failures) are reported through
// an ErrorHandler installed with SetErrorHandler; the default handler
// writes to stderr.
package ttlog
