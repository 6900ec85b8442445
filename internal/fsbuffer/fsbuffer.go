// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

// Package fsbuffer persists task payloads to disk for an output instance
// whose flush cannot keep up with its input, using joncrlsn/dque the same
// way the teacher's pkg/buffer package does for its Loki client: a
// directory-backed FIFO queue that survives process restarts. Here it
// backs the engine's filesystem buffer subsystem referenced in §4.6 — the
// thing that charges and discharges an instance's fs_chunks_size — rather
// than a client-specific send queue.
package fsbuffer

import (
	"os"

	"github.com/joncrlsn/dque"
	"github.com/pkg/errors"
)

// chunk is the on-disk unit dque (de)serializes with its gob-based codec.
type chunk struct {
	Tag string
	Buf []byte
}

func chunkBuilder() any { return &chunk{} }

// Buffer is a directory-backed spillover queue for one output instance.
type Buffer struct {
	q *dque.DQue
}

// Open creates or reopens the on-disk queue rooted at dir/name. segmentSize
// bounds how many chunks live in a single on-disk segment file, matching
// dque's own knob. When sync is false, fsync after every write is disabled
// (dque's TurboOn), trading durability for throughput exactly as the
// teacher's DQueSync option does.
func Open(dir, name string, segmentSize int, sync bool) (*Buffer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "fsbuffer: cannot create queue directory")
	}
	q, err := dque.NewOrOpen(name, dir, segmentSize, chunkBuilder)
	if err != nil {
		return nil, errors.Wrap(err, "fsbuffer: cannot open queue")
	}
	if !sync {
		if err := q.TurboOn(); err != nil {
			return nil, errors.Wrap(err, "fsbuffer: cannot enable turbo mode")
		}
	}
	return &Buffer{q: q}, nil
}

// Enqueue persists buf (and its routing tag) to disk. It returns the
// chunk's size in bytes so the caller can charge it against fs_chunks_size.
func (b *Buffer) Enqueue(tag string, buf []byte) (int, error) {
	if err := b.q.Enqueue(&chunk{Tag: tag, Buf: buf}); err != nil {
		return 0, errors.Wrap(err, "fsbuffer: enqueue failed")
	}
	return len(buf), nil
}

// DequeueBlock blocks until a chunk is available, returning its tag,
// payload and byte size (for discharging fs_chunks_size).
func (b *Buffer) DequeueBlock() (tag string, buf []byte, size int, err error) {
	item, err := b.q.DequeueBlock()
	if err != nil {
		if errors.Is(err, dque.ErrQueueClosed) {
			return "", nil, 0, err
		}
		return "", nil, 0, errors.Wrap(err, "fsbuffer: dequeue failed")
	}
	c, ok := item.(*chunk)
	if !ok {
		return "", nil, 0, errors.New("fsbuffer: dequeued item of unexpected type")
	}
	return c.Tag, c.Buf, len(c.Buf), nil
}

// Close shuts down the queue; pending chunks remain on disk for the next
// Open.
func (b *Buffer) Close() error {
	return errors.Wrap(b.q.Close(), "fsbuffer: close failed")
}
