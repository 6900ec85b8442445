// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrOverflow is returned by Close when a container received more than
// 2^32-1 entries, the largest count the wire format's widest header can
// hold.
var ErrOverflow = errors.New("record: container entry count overflows 32-bit header")

// mapHeader/arrayHeader are the widest msgpack container headers: a type
// byte (0xdf for map32, 0xdd for array32) followed by a 4-byte big-endian
// count. Builder always emits this 5-byte form up front, even when the
// final count would fit a shorter encoding, exactly as flb_mp_map_header_init
// commits to map32/array32 unconditionally so that finalisation never has to
// shift payload bytes — only the 4 count bytes are ever rewritten.
const (
	mapHeaderTag   = 0xdf
	arrayHeaderTag = 0xdd
	headerLen      = 5
)

// Builder accumulates a binary record into an internal buffer. It is not
// safe for concurrent use; callers needing concurrent rewrites should use
// one Builder per goroutine.
type Builder struct {
	buf bytes.Buffer
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Bytes returns the bytes accumulated so far.
func (b *Builder) Bytes() []byte {
	return b.buf.Bytes()
}

// Cursor is the transient handle map_open/array_open hands back: the byte
// offset of the pre-emitted header and a running entry count. A Cursor must
// be closed exactly once.
type Cursor struct {
	b       *Builder
	offset  int
	entries uint64
	isMap   bool
	closed  bool
}

// OpenMap emits a map header at the widest encoding and returns a cursor for
// appending entries. This is map_open.
func (b *Builder) OpenMap() *Cursor {
	return b.open(true)
}

// OpenArray emits an array header at the widest encoding and returns a
// cursor for appending entries. This is array_open.
func (b *Builder) OpenArray() *Cursor {
	return b.open(false)
}

func (b *Builder) open(isMap bool) *Cursor {
	offset := b.buf.Len()
	tag := byte(arrayHeaderTag)
	if isMap {
		tag = mapHeaderTag
	}
	b.buf.WriteByte(tag)
	var zero [4]byte
	b.buf.Write(zero[:])
	return &Cursor{b: b, offset: offset, isMap: isMap}
}

// Entry registers one more entry (for a map, one key+value pair; for an
// array, one item) and returns the new count. This is map_entry/array_entry.
// The caller must then write exactly the matching number of objects into the
// builder before the next Entry or Close call.
func (c *Cursor) Entry() uint64 {
	c.entries++
	return c.entries
}

// Close overwrites the pre-emitted header with the final entry count. It
// never moves any bytes: the header is always the 5-byte widest form, so
// finalisation is a pure in-place store. This is map_close/array_close.
func (c *Cursor) Close() error {
	if c.closed {
		return fmt.Errorf("record: cursor closed twice")
	}
	c.closed = true

	if c.entries > math.MaxUint32 {
		return ErrOverflow
	}

	raw := c.b.buf.Bytes()
	header := raw[c.offset : c.offset+headerLen]
	binary.BigEndian.PutUint32(header[1:], uint32(c.entries))
	return nil
}

// PutRaw copies an already-encoded object's bytes verbatim into the
// builder. Used for every subtree the accessor engine decides not to touch,
// so leaves are never decoded and re-encoded.
func (b *Builder) PutRaw(p []byte) {
	b.buf.Write(p)
}

// PutString encodes s as a msgpack string object.
func (b *Builder) PutString(s string) {
	n := len(s)
	switch {
	case n < 32:
		b.buf.WriteByte(0xa0 | byte(n))
	case n < 1<<8:
		b.buf.WriteByte(0xd9)
		b.buf.WriteByte(byte(n))
	case n < 1<<16:
		b.buf.WriteByte(0xda)
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], uint16(n))
		b.buf.Write(tmp[:])
	default:
		b.buf.WriteByte(0xdb)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(n))
		b.buf.Write(tmp[:])
	}
	b.buf.WriteString(s)
}

// PutInt encodes i as a msgpack signed integer object.
func (b *Builder) PutInt(i int64) {
	switch {
	case i >= 0 && i <= 0x7f:
		b.buf.WriteByte(byte(i))
	case i < 0 && i >= -32:
		b.buf.WriteByte(byte(int8(i)))
	case i >= math.MinInt8 && i <= math.MaxInt8:
		b.buf.WriteByte(0xd0)
		b.buf.WriteByte(byte(int8(i)))
	case i >= math.MinInt16 && i <= math.MaxInt16:
		b.buf.WriteByte(0xd1)
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], uint16(int16(i)))
		b.buf.Write(tmp[:])
	case i >= math.MinInt32 && i <= math.MaxInt32:
		b.buf.WriteByte(0xd2)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(int32(i)))
		b.buf.Write(tmp[:])
	default:
		b.buf.WriteByte(0xd3)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(i))
		b.buf.Write(tmp[:])
	}
}

// PutNil encodes a msgpack nil object.
func (b *Builder) PutNil() {
	b.buf.WriteByte(0xc0)
}

// PutBool encodes a msgpack boolean object.
func (b *Builder) PutBool(v bool) {
	if v {
		b.buf.WriteByte(0xc3)
	} else {
		b.buf.WriteByte(0xc2)
	}
}
