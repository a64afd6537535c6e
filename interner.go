// interner.go: four-namespace string interner for targets, messages, files
// and serialized key/value blobs
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package ttlog

import (
	"fmt"
	"sync"

	"github.com/agilira/ttlog/internal/interner"
)

// StringInterner deduplicates targets, messages, files, and kv blobs into
// small dense IDs. The four namespaces are fully independent: the same
// bytes interned in two different namespaces may (and usually will) get
// different IDs.
type StringInterner struct {
	targets  *interner.Namespace
	messages *interner.Namespace
	files    *interner.Namespace
	kvBlobs  *interner.Namespace

	warnedOnce sync.Once
	onExhaust  func(namespace string)
}

// NewStringInterner creates an interner with all four namespaces empty.
// onExhaust, if non-nil, is called the first time any single namespace
// reaches its u16::MAX capacity; by default an ErrCodeInternerExhausted
// error goes to the ErrorHandler (stderr unless replaced) exactly once per
// namespace.
func NewStringInterner(onExhaust func(namespace string)) *StringInterner {
	si := &StringInterner{onExhaust: onExhaust}
	warn := si.handleExhaustion
	si.targets = interner.NewNamespace("targets", warn)
	si.messages = interner.NewNamespace("messages", warn)
	si.files = interner.NewNamespace("files", warn)
	si.kvBlobs = interner.NewNamespace("kv_blobs", warn)
	return si
}

func (si *StringInterner) handleExhaustion(namespace string) {
	if si.onExhaust != nil {
		si.onExhaust(namespace)
		return
	}
	handleError(newTraceError(ErrCodeInternerExhausted, fmt.Sprintf("interner namespace %q exhausted at 65535 entries; further strings in it resolve to \"<unknown>\"", namespace)))
}

// InternTarget interns a target/module name and returns its ID.
func (si *StringInterner) InternTarget(b []byte) uint16 { return si.targets.Intern(b) }

// InternMessage interns a static message string and returns its ID.
func (si *StringInterner) InternMessage(b []byte) uint16 { return si.messages.Intern(b) }

// InternFile interns a source file path and returns its ID.
func (si *StringInterner) InternFile(b []byte) uint16 { return si.files.Intern(b) }

// InternKV interns a serialized (UTF-8 JSON) key/value blob and returns its ID.
func (si *StringInterner) InternKV(b []byte) uint16 { return si.kvBlobs.Intern(b) }

// ResolveTarget resolves a target ID back to its string, or "<unknown>" if
// the ID is 0 or was never assigned.
func (si *StringInterner) ResolveTarget(id uint16) string { return resolve(si.targets, id) }

// ResolveMessage resolves a message ID back to its string, or "" if absent
// (ResolvedEvent.message is "" when no static message exists).
func (si *StringInterner) ResolveMessage(id uint16) string {
	if id == 0 {
		return ""
	}
	if b, ok := si.messages.Get(id); ok {
		return string(b)
	}
	return "<unknown>"
}

// ResolveFile resolves a file ID back to its string, or "<unknown>" if the
// ID is 0 or was never assigned.
func (si *StringInterner) ResolveFile(id uint16) string { return resolve(si.files, id) }

// ResolveKV resolves a kv blob ID back to its raw JSON bytes. ok is false
// when id is 0 (absent) or unassigned.
func (si *StringInterner) ResolveKV(id uint16) (json []byte, ok bool) {
	if id == 0 {
		return nil, false
	}
	return si.kvBlobs.Get(id)
}

func resolve(ns *interner.Namespace, id uint16) string {
	if id == 0 {
		return "<unknown>"
	}
	if b, ok := ns.Get(id); ok {
		return string(b)
	}
	return "<unknown>"
}

// InternerStats reports the number of assigned entries per namespace, for
// introspection and tests.
type InternerStats struct {
	Targets  int
	Messages int
	Files    int
	KVBlobs  int
}

// Stats returns a point-in-time snapshot of per-namespace occupancy.
func (si *StringInterner) Stats() InternerStats {
	return InternerStats{
		Targets:  si.targets.Len(),
		Messages: si.messages.Len(),
		Files:    si.files.Len(),
		KVBlobs:  si.kvBlobs.Len(),
	}
}
