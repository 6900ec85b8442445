// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/gardener/logdispatch/internal/registry"
)

// Task is a formatted batch of records awaiting dispatch to one or more
// output instances (C5's unit of work). It is owned by the engine scheduler
// and only observed by the dispatcher: the dispatcher never mutates Buf,
// Tag, RecordCount or ByteSize, only the bookkeeping fields below.
type Task struct {
	ID          int
	Buf         []byte
	Tag         string
	RecordCount int
	ByteSize    int

	// Outputs is the route set resolved once at dispatch time.
	Outputs []*registry.Instance

	// users mirrors the source material's reference count: incremented
	// on every flush context spawned for this task, decremented on every
	// completion (whichever disposition). The task is only eligible for
	// retirement once it reaches zero.
	users int32

	mu          sync.Mutex
	contexts    map[int]*FlushContext
	nextFrameID int

	retiredCh chan struct{}
	retired   bool
}

// NewTask constructs a task ready for dispatch against outputs.
func NewTask(id int, buf []byte, tag string, recordCount int, outputs []*registry.Instance) *Task {
	return &Task{
		ID:          id,
		Buf:         buf,
		Tag:         tag,
		RecordCount: recordCount,
		ByteSize:    len(buf),
		Outputs:     outputs,
		contexts:    make(map[int]*FlushContext),
		retiredCh:   make(chan struct{}),
	}
}

// Users reports the current live flush-context count.
func (t *Task) Users() int32 { return atomic.LoadInt32(&t.users) }

// Retired reports whether the task has reached users == 0 and been
// released by the dispatcher, with no pending retry.
func (t *Task) Retired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retired
}

// Done returns a channel closed once the task is retired; useful for tests
// and for callers that want to block until a task fully drains.
func (t *Task) Done() <-chan struct{} { return t.retiredCh }

func (t *Task) allocFrameID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextFrameID
	t.nextFrameID++
	return id
}

func (t *Task) addContext(fc *FlushContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.contexts[fc.ID] = fc
}

func (t *Task) popContext(frameID int) *FlushContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	fc := t.contexts[frameID]
	delete(t.contexts, frameID)
	return fc
}

func (t *Task) markRetired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.retired {
		return
	}
	t.retired = true
	close(t.retiredCh)
}
