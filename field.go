// field.go: typed key/value fields attached to an event, serialized into a
// single interned JSON blob
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package ttlog

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/agilira/ttlog/internal/bufferpool"
)

// kind identifies which union member of a Field holds its value.
type kind uint8

const (
	kindString kind = iota + 1
	kindInt64
	kindUint64
	kindFloat64
	kindBool
	kindDur
	kindTime
	kindBytes
	kindError
)

// Field is a single key/value pair supplied to an emit call. Fields never
// reach the ring directly: a whole call's Fields are serialized once into a
// JSON object and interned as a single kv blob, so Event itself stays a
// fixed-size packed record.
type Field struct {
	K   string
	T   kind
	I64 int64
	U64 uint64
	F64 float64
	Str string
	B   []byte
}

func Str(k, v string) Field                    { return Field{K: k, T: kindString, Str: v} }
func Int(k string, v int) Field                { return Field{K: k, T: kindInt64, I64: int64(v)} }
func Int64(k string, v int64) Field            { return Field{K: k, T: kindInt64, I64: v} }
func Uint64(k string, v uint64) Field          { return Field{K: k, T: kindUint64, U64: v} }
func Float64(k string, v float64) Field        { return Field{K: k, T: kindFloat64, F64: v} }
func Bool(k string, v bool) Field {
	if v {
		return Field{K: k, T: kindBool, I64: 1}
	}
	return Field{K: k, T: kindBool, I64: 0}
}
func Dur(k string, v time.Duration) Field      { return Field{K: k, T: kindDur, I64: int64(v)} }
func TimeField(k string, v time.Time) Field    { return Field{K: k, T: kindTime, I64: v.UnixNano()} }
func Bytes(k string, v []byte) Field           { return Field{K: k, T: kindBytes, B: v} }

// Err creates an error field with key "error". A nil error yields an empty
// string rather than being elided, so callers never need to branch.
func Err(err error) Field {
	if err == nil {
		return Field{K: "error", T: kindError, Str: ""}
	}
	return Field{K: "error", T: kindError, Str: err.Error()}
}

func (f Field) jsonValue() interface{} {
	switch f.T {
	case kindString, kindError:
		return f.Str
	case kindInt64:
		return f.I64
	case kindUint64:
		return f.U64
	case kindFloat64:
		return f.F64
	case kindBool:
		return f.I64 != 0
	case kindDur:
		return time.Duration(f.I64).String()
	case kindTime:
		return time.Unix(0, f.I64).UTC().Format(time.RFC3339Nano)
	case kindBytes:
		return f.B
	default:
		return nil
	}
}

// EncodeKV serializes fields into a single JSON object, e.g.
// {"user":"alice","attempt":3}. Field order is preserved. An empty fields
// slice returns nil, signaling "no kv blob for this event" to the caller
// (the event's kvID stays 0).
func EncodeKV(fields ...Field) []byte {
	if len(fields) == 0 {
		return nil
	}

	buf := bufferpool.Get()
	defer bufferpool.Put(buf)

	buf.WriteByte('{')
	enc := json.NewEncoder(buf)
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, _ := json.Marshal(f.K)
		buf.Write(keyBytes)
		buf.WriteByte(':')
		if err := enc.Encode(f.jsonValue()); err != nil {
			// Unencodable values (e.g. NaN) become null so the object stays valid.
			buf.WriteString("null")
			continue
		}
		// json.Encoder.Encode appends a trailing newline; trim it so the
		// object stays a single line.
		trimTrailingNewline(buf)
	}
	buf.WriteByte('}')

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

func trimTrailingNewline(buf *bytes.Buffer) {
	b := buf.Bytes()
	if n := len(b); n > 0 && b[n-1] == '\n' {
		buf.Truncate(n - 1)
	}
}
