// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/gardener/logdispatch/internal/fsbuffer"
)

// completionWord is the wire type used for the completion signal; defined
// here (rather than in internal/dispatch) because the event pipe is an
// attribute of the instance itself per the data model, even though only the
// dispatcher ever writes or reads it.
type completionWord = uint64

// Instance is one configured occurrence of an output plugin (C3's
// OutputInstance). Its identity (ID, Name, MaskBit) is fixed at creation;
// everything else may be set until the registry is frozen by Registry.Check.
type Instance struct {
	ID     int
	Name   string // "<plugin>.<n>"
	Alias  string

	LogLevel string
	MaskBit  uint64

	Descriptor *Descriptor
	Flags      Flags

	Route Route
	Net   NetworkOptions

	Workers int // 0 means "run on the engine thread"

	TotalLimitSize int64
	fsChunksSize   int64 // atomic

	// FSBuffer, when non-nil, is the on-disk spillover queue backing this
	// instance's storage.path configuration; Charge/DischargeChunk track
	// its size against TotalLimitSize regardless of whether it is set.
	FSBuffer *fsbuffer.Buffer

	PluginCtx any

	// EventPipe is this instance's single-producer single-consumer
	// completion channel: the returning flush is the sole producer, the
	// engine event loop the sole consumer. It stands in for the OS pipe
	// the source material writes a packed 64-bit word to (see
	// internal/dispatch for the encode/decode of that word); a buffered
	// Go channel gives the same FIFO, lock-free handoff without needing
	// real file descriptors.
	EventPipe chan completionWord

	activeMu sync.Mutex
	active   map[int]struct{}

	unusable bool // set if Init failed; instance is disabled for the session
}

// newInstance allocates an instance; used only by Registry.New so mask bit
// assignment stays centralized.
func newInstance(id int, name string, maskBit uint64, desc *Descriptor) *Instance {
	return &Instance{
		ID:         id,
		Name:       name,
		MaskBit:    maskBit,
		Descriptor: desc,
		Flags:      desc.Flags,
		EventPipe:  make(chan completionWord, 64),
		active:     make(map[int]struct{}),
	}
}

// TryBeginFlush registers frameID as active on this instance. It returns
// false without registering anything if the instance is NoMultiplex and
// already has an active flush — the dispatcher must not spawn a second one
// in that case (the task stays pending and is rescheduled by the engine).
func (i *Instance) TryBeginFlush(frameID int) bool {
	i.activeMu.Lock()
	defer i.activeMu.Unlock()
	if i.Flags.Has(FlagNoMultiplex) && len(i.active) > 0 {
		return false
	}
	i.active[frameID] = struct{}{}
	return true
}

// EndFlush unregisters frameID, e.g. on completion or cancellation.
func (i *Instance) EndFlush(frameID int) {
	i.activeMu.Lock()
	defer i.activeMu.Unlock()
	delete(i.active, frameID)
}

// ActiveFrameIDs returns a snapshot of currently active frame ids.
func (i *Instance) ActiveFrameIDs() []int {
	i.activeMu.Lock()
	defer i.activeMu.Unlock()
	ids := make([]int, 0, len(i.active))
	for id := range i.active {
		ids = append(ids, id)
	}
	return ids
}

// ActiveCount reports how many flushes are currently active on this
// instance; used to verify the NoMultiplex invariant in tests.
func (i *Instance) ActiveCount() int {
	i.activeMu.Lock()
	defer i.activeMu.Unlock()
	return len(i.active)
}

// ChargeChunk accounts bytes buffered to the filesystem for this instance.
// It returns an error — without charging anything — if doing so would
// exceed TotalLimitSize (when one is configured).
func (i *Instance) ChargeChunk(bytes int64) error {
	if i.TotalLimitSize > 0 {
		if atomic.LoadInt64(&i.fsChunksSize)+bytes > i.TotalLimitSize {
			return fmt.Errorf("registry: instance %s: filesystem buffer limit exceeded (%d + %d > %d)",
				i.Name, atomic.LoadInt64(&i.fsChunksSize), bytes, i.TotalLimitSize)
		}
	}
	atomic.AddInt64(&i.fsChunksSize, bytes)
	return nil
}

// DischargeChunk releases previously charged filesystem buffer bytes.
func (i *Instance) DischargeChunk(bytes int64) {
	atomic.AddInt64(&i.fsChunksSize, -bytes)
}

// FSChunksSize returns the current filesystem buffer usage.
func (i *Instance) FSChunksSize() int64 {
	return atomic.LoadInt64(&i.fsChunksSize)
}

// SpillChunk persists buf to this instance's on-disk buffer and charges its
// size against fs_chunks_size, for a flush that cannot be delivered now
// (e.g. a busy NoMultiplex instance, or a plugin shedding load under
// backpressure). It fails without writing anything if charging would exceed
// TotalLimitSize.
//
// Deciding *when* to spill a chunk instead of deferring it in memory, and
// when to redeliver one via UnspillChunk, is the engine's buffer subsystem
// policy referenced in §4.6 and §1 ("it does not itself choose retry
// policy") — deliberately not internal/dispatch's call. This method and
// UnspillChunk are the registry-side charge/discharge primitives that
// policy is built on; internal/dispatch's own NoMultiplex handling only
// ever queues a task in memory (see Dispatcher.deferTask) and never spills,
// since the core has no backoff/retry policy to decide a spill is
// warranted rather than a bounded in-memory wait.
func (i *Instance) SpillChunk(tag string, buf []byte) error {
	if i.FSBuffer == nil {
		return errors.Errorf("registry: instance %s: no filesystem buffer configured", i.Name)
	}
	if err := i.ChargeChunk(int64(len(buf))); err != nil {
		return err
	}
	if _, err := i.FSBuffer.Enqueue(tag, buf); err != nil {
		i.DischargeChunk(int64(len(buf)))
		return err
	}
	return nil
}

// UnspillChunk blocks until a previously spilled chunk is available,
// discharging its accounted size before returning it for redelivery.
func (i *Instance) UnspillChunk() (tag string, buf []byte, err error) {
	if i.FSBuffer == nil {
		return "", nil, errors.Errorf("registry: instance %s: no filesystem buffer configured", i.Name)
	}
	tag, buf, size, err := i.FSBuffer.DequeueBlock()
	if err != nil {
		return "", nil, err
	}
	i.DischargeChunk(int64(size))
	return tag, buf, nil
}

// Unusable reports whether Init failed for this instance.
func (i *Instance) Unusable() bool { return i.unusable }

func (i *Instance) validateNetAndTLS() error {
	if i.Flags.Has(FlagTLS) && !i.Descriptor.Flags.Has(FlagNetwork) {
		return errors.Errorf("registry: instance %s: tls.* configured but plugin %q is not network-capable", i.Name, i.Descriptor.Name)
	}
	if i.TotalLimitSize > 0 && i.FSChunksSize() > i.TotalLimitSize {
		return errors.Errorf("registry: instance %s: fs_chunks_size exceeds total_limit_size at creation", i.Name)
	}
	return nil
}
