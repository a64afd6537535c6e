// snapshot.go: draining the ring into a durable CBOR+LZ4 snapshot file
//
// Uses explicit fsync-before-rename durability: CBOR for the structured
// payload, LZ4 frame-format compression (lz4.NewWriter; the raw LZ4 block
// format is not used), atomic write via temp file + fsync + rename so a
// reader never observes a partial file.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package ttlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agilira/go-errors"
	"github.com/fxamacker/cbor/v2"
	"github.com/pierrec/lz4/v4"
)

// createdAtLayout is the YYYYMMDDHHMMSS UTC timestamp format used in
// snapshot headers and file names.
const createdAtLayout = "20060102150405"

// Snapshot is the full contents of one retained-history dump: every event
// currently in the ring, oldest first, resolved back to strings, under a
// header identifying where and why it was taken.
type Snapshot struct {
	Service   string          `cbor:"service"`
	Hostname  string          `cbor:"hostname"`
	PID       int             `cbor:"pid"`
	CreatedAt string          `cbor:"created_at"`
	Reason    string          `cbor:"reason"`
	Events    []ResolvedEvent `cbor:"events"`
}

// resolve converts a packed Event into a ResolvedEvent using t's interner.
func (t *Trace) resolve(e Event) ResolvedEvent {
	line, column := e.Position()
	messageID, _ := e.MessageID()
	re := ResolvedEvent{
		TimestampMs: e.TimestampMs(),
		Level:       e.Level(),
		Target:      t.interner.ResolveTarget(e.TargetID()),
		Message:     t.interner.ResolveMessage(messageID),
		File:        t.interner.ResolveFile(e.FileID()),
		Line:        line,
		Column:      column,
		ThreadID:    e.ThreadID(),
	}
	if kvID, ok := e.KVID(); ok {
		if kv, present := t.interner.ResolveKV(kvID); present {
			re.KV = kv
		}
	}
	return re
}

// buildSnapshot drains the ring (oldest first) and resolves every event.
// Draining empties the ring: events already snapshotted are not
// snapshotted again by a later periodic flush.
func (t *Trace) buildSnapshot(reason string) Snapshot {
	items := t.ring.TakeSnapshot()
	events := make([]ResolvedEvent, len(items))
	for i, e := range items {
		events[i] = t.resolve(e)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "<unknown>"
	}

	return Snapshot{
		Service:   t.cfg.ServiceName,
		Hostname:  hostname,
		PID:       os.Getpid(),
		CreatedAt: time.UnixMilli(CachedTimeMillis()).UTC().Format(createdAtLayout),
		Reason:    reason,
		Events:    events,
	}
}

// writeSnapshot encodes snap as CBOR, compresses it with LZ4, and writes it
// atomically to t.cfg.SnapshotDir. If the ring was empty at drain time (no
// events), no file is produced and writeSnapshot returns ("", nil): an
// empty drain carries nothing worth making durable.
func (t *Trace) writeSnapshot(snap Snapshot) (path string, err *errors.Error) {
	if len(snap.Events) == 0 {
		return "", nil
	}

	payload, encErr := cbor.Marshal(snap)
	if encErr != nil {
		return "", wrapTraceError(encErr, ErrCodeSnapshotEncode, "encode snapshot to CBOR")
	}

	fileName := fmt.Sprintf("ttlog-%d-%s-%s.bin", snap.PID, snap.CreatedAt, sanitizeReason(snap.Reason))
	finalPath := filepath.Join(t.cfg.SnapshotDir, fileName)
	tmpPath := finalPath + ".tmp"

	tmp, openErr := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if openErr != nil {
		return "", wrapTraceError(openErr, ErrCodeSnapshotWrite, "create temp snapshot file")
	}

	lzw := lz4.NewWriter(tmp)
	if _, writeErr := lzw.Write(payload); writeErr != nil {
		_ = lzw.Close()
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", wrapTraceError(writeErr, ErrCodeSnapshotWrite, "write compressed snapshot body")
	}
	if closeErr := lzw.Close(); closeErr != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", wrapTraceError(closeErr, ErrCodeSnapshotWrite, "close lz4 writer")
	}
	if syncErr := tmp.Sync(); syncErr != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", wrapTraceError(syncErr, ErrCodeSnapshotWrite, "fsync temp snapshot file")
	}
	if closeErr := tmp.Close(); closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", wrapTraceError(closeErr, ErrCodeSnapshotWrite, "close temp snapshot file")
	}
	if renameErr := os.Rename(tmpPath, finalPath); renameErr != nil {
		_ = os.Remove(tmpPath)
		return "", wrapTraceError(renameErr, ErrCodeSnapshotWrite, "rename temp snapshot into place")
	}

	return finalPath, nil
}

// sanitizeReason keeps a snapshot reason label filesystem-safe: alphanumeric
// and underscore only.
func sanitizeReason(reason string) string {
	out := make([]rune, 0, len(reason))
	for _, r := range reason {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "unknown"
	}
	return string(out)
}
