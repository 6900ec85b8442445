// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/gardener/logdispatch/internal/registry"
)

// MetricsSink receives per-flush outcomes; internal/metrics implements it
// against Prometheus collectors. Kept as an interface here so the
// dispatcher can be tested without pulling in a metrics registry.
type MetricsSink interface {
	ObserveOK(inst *registry.Instance, records, bytes int)
	ObserveError(inst *registry.Instance)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOK(*registry.Instance, int, int) {}
func (nopMetrics) ObserveError(*registry.Instance)         {}

type instWord struct {
	inst *registry.Instance
	word uint64
}

// Dispatcher is the engine-thread side of C5: it owns task bookkeeping, the
// fan-in of every instance's completion pipe, and the single loop that
// consumes them. Run must execute on one goroutine for the lifetime of the
// dispatcher — that goroutine is "the engine thread" the spec refers to for
// metrics and active-list mutation exclusivity.
type Dispatcher struct {
	reg     *registry.Registry
	metrics MetricsSink
	log     logr.Logger

	// Reschedule is invoked when a task's last completing frame reported
	// RETRY and task.users has reached zero. The dispatcher itself makes
	// no decision about whether or when to re-dispatch — that is the
	// scheduler's responsibility per §4.5, and the source material
	// leaves the retry counter's increment points undefined (§9 open
	// questions). Leaving this nil parks the task undestroyed, which is
	// the only behavior the spec actually commits to.
	Reschedule func(task *Task)

	central chan instWord

	mu     sync.Mutex
	tasks  map[int]*Task
	nextID int

	poolsMu sync.Mutex
	pools   map[*registry.Instance]*workerPool

	activeMu     sync.Mutex
	activeFrames map[*registry.Instance]map[int]*FlushContext

	// waitMu/waiting hold the FIFO of tasks deferred against a busy
	// NoMultiplex instance, keyed by instance rather than by task: a task
	// parked here may be a different task than the one whose completion
	// frees the instance up, so the wait queue has to live at dispatcher
	// scope, not on the Task that happened to lose the race.
	waitMu  sync.Mutex
	waiting map[*registry.Instance][]*Task
}

// NewDispatcher builds a dispatcher over reg and starts watching every
// instance currently registered. Instances created after this call must be
// registered with WatchInstance.
func NewDispatcher(reg *registry.Registry, metrics MetricsSink, log logr.Logger) *Dispatcher {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	d := &Dispatcher{
		reg:          reg,
		metrics:      metrics,
		log:          log,
		central:      make(chan instWord, 256),
		tasks:        make(map[int]*Task),
		pools:        make(map[*registry.Instance]*workerPool),
		activeFrames: make(map[*registry.Instance]map[int]*FlushContext),
		waiting:      make(map[*registry.Instance][]*Task),
	}
	for _, inst := range reg.Instances() {
		d.WatchInstance(inst)
	}
	return d
}

// WatchInstance forwards inst's event pipe into the dispatcher's central
// completion channel, preserving the per-instance FIFO order the pipe
// already guarantees (one forwarding goroutine per instance, each reading
// its own channel in order).
func (d *Dispatcher) WatchInstance(inst *registry.Instance) {
	go func() {
		for word := range inst.EventPipe {
			d.central <- instWord{inst: inst, word: word}
		}
	}()
}

// NewTaskID allocates the next task id, bounded to the 15-bit completion
// word field.
func (d *Dispatcher) NewTaskID() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.nextID > MaxTaskID {
		return 0, errWordSpaceExhausted
	}
	id := d.nextID
	d.nextID++
	return id, nil
}

var errWordSpaceExhausted = errTaskIDSpace{}

type errTaskIDSpace struct{}

func (errTaskIDSpace) Error() string { return "dispatch: exhausted the 15-bit task id space" }

// NewTaskForTag resolves tag against the bound registry's route table and
// builds a task ready for Dispatch, allocating its id from the same 15-bit
// space the completion word carries.
func (d *Dispatcher) NewTaskForTag(buf []byte, tag string, recordCount int) (*Task, error) {
	id, err := d.NewTaskID()
	if err != nil {
		return nil, err
	}
	return NewTask(id, buf, tag, recordCount, d.reg.Route(tag)), nil
}

// Dispatch is the hot path (§4.5): for every instance in task.Outputs it
// either spawns a flush context or, for a busy NoMultiplex instance, defers
// it. A task with no matching outputs retires immediately.
func (d *Dispatcher) Dispatch(task *Task) {
	d.mu.Lock()
	d.tasks[task.ID] = task
	d.mu.Unlock()

	if len(task.Outputs) == 0 {
		task.markRetired()
		d.removeTask(task.ID)
		return
	}
	for _, inst := range task.Outputs {
		d.launch(task, inst)
	}
}

func (d *Dispatcher) launch(task *Task, inst *registry.Instance) {
	frameID := task.allocFrameID()
	if frameID > MaxFrameID {
		d.log.Error(nil, "dispatch: frame id space exhausted for task", "task", task.ID)
		return
	}
	if !inst.TryBeginFlush(frameID) {
		d.deferTask(inst, task)
		return
	}

	fc := &FlushContext{ID: frameID, Task: task, Instance: inst}
	task.addContext(fc)
	atomic.AddInt32(&task.users, 1)

	d.activeMu.Lock()
	if d.activeFrames[inst] == nil {
		d.activeFrames[inst] = make(map[int]*FlushContext)
	}
	d.activeFrames[inst][frameID] = fc
	d.activeMu.Unlock()

	d.spawn(fc)
}

func (d *Dispatcher) spawn(fc *FlushContext) {
	ctx, cancel := context.WithCancel(context.Background())
	fc.cancel = cancel

	work := func() {
		disposition := fc.run(ctx)
		if ctx.Err() != nil {
			// Cancelled by CancelInstance: the frame was already torn down
			// there, so no completion word is emitted.
			return
		}
		word, err := PackWord(disposition, fc.Task.ID, fc.ID)
		if err != nil {
			d.log.Error(err, "dispatch: failed to pack completion word; signal lost", "instance", fc.Instance.Name)
			return
		}
		fc.Instance.EventPipe <- word
	}

	if fc.Instance.Workers > 0 {
		d.pool(fc.Instance).submit(work)
		return
	}
	go work()
}

func (d *Dispatcher) pool(inst *registry.Instance) *workerPool {
	d.poolsMu.Lock()
	defer d.poolsMu.Unlock()
	p, ok := d.pools[inst]
	if !ok {
		p = newWorkerPool(inst.Workers)
		d.pools[inst] = p
	}
	return p
}

// Run consumes the central completion channel until ctx is cancelled. It
// must be the only goroutine calling handleCompletion, since metrics and
// active-list mutation are only safe from "the engine thread".
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-d.central:
			d.handleCompletion(evt)
		}
	}
}

func (d *Dispatcher) handleCompletion(evt instWord) {
	kind, disposition, taskID, frameID := UnpackWord(evt.word)
	if kind != EventKindTask {
		return
	}

	d.mu.Lock()
	task, ok := d.tasks[taskID]
	d.mu.Unlock()
	if !ok {
		return
	}

	fc := task.popContext(frameID)
	if fc == nil {
		return
	}

	d.activeMu.Lock()
	if frames, ok := d.activeFrames[evt.inst]; ok {
		delete(frames, frameID)
	}
	d.activeMu.Unlock()
	evt.inst.EndFlush(frameID)

	switch disposition {
	case registry.OK:
		d.metrics.ObserveOK(evt.inst, task.RecordCount, task.ByteSize)
	case registry.ERROR:
		d.metrics.ObserveError(evt.inst)
	case registry.RETRY:
		// Retry accounting belongs to the scheduler (§9 open question);
		// the dispatcher only releases what it owns.
	}

	if next := d.popWaiting(evt.inst); next != nil {
		d.launch(next, evt.inst)
	}

	if atomic.AddInt32(&task.users, -1) == 0 {
		if disposition == registry.RETRY {
			if d.Reschedule != nil {
				d.Reschedule(task)
			}
			return
		}
		task.markRetired()
		d.removeTask(task.ID)
	}
}

// deferTask parks task at the back of inst's wait queue; it is relaunched
// by popWaiting once inst's active flush completes. Because the queue is
// keyed by instance rather than by the task that lost the TryBeginFlush
// race, a later task can free up an earlier one's wait and vice versa —
// exactly the cross-task deferral §4.5's NoMultiplex rule requires.
func (d *Dispatcher) deferTask(inst *registry.Instance, task *Task) {
	d.waitMu.Lock()
	defer d.waitMu.Unlock()
	if d.waiting == nil {
		d.waiting = make(map[*registry.Instance][]*Task)
	}
	d.waiting[inst] = append(d.waiting[inst], task)
}

// popWaiting removes and returns the oldest task waiting on inst, or nil if
// none is queued.
func (d *Dispatcher) popWaiting(inst *registry.Instance) *Task {
	d.waitMu.Lock()
	defer d.waitMu.Unlock()
	q := d.waiting[inst]
	if len(q) == 0 {
		return nil
	}
	task := q[0]
	d.waiting[inst] = q[1:]
	return task
}

// clearWaiting drops every task parked on inst's wait queue without
// launching them, used when inst is torn down: a NoMultiplex instance that
// is gone will never free up, so tasks waiting on it would otherwise park
// forever.
func (d *Dispatcher) clearWaiting(inst *registry.Instance) {
	d.waitMu.Lock()
	defer d.waitMu.Unlock()
	delete(d.waiting, inst)
}

func (d *Dispatcher) removeTask(id int) {
	d.mu.Lock()
	delete(d.tasks, id)
	d.mu.Unlock()
}

// CancelInstance tears down every frame active on inst without emitting a
// completion word, per §4.4's cancellation path: task.users is decremented
// directly, no disposition is recorded, and a task whose last outstanding
// frame was cancelled is retired and dropped by the dispatcher right here.
func (d *Dispatcher) CancelInstance(inst *registry.Instance) {
	d.activeMu.Lock()
	frames := d.activeFrames[inst]
	delete(d.activeFrames, inst)
	d.activeMu.Unlock()

	d.clearWaiting(inst)

	for frameID, fc := range frames {
		if fc.cancel != nil {
			fc.cancel()
		}
		fc.Task.popContext(frameID)
		inst.EndFlush(frameID)
		if atomic.AddInt32(&fc.Task.users, -1) == 0 {
			fc.Task.markRetired()
			d.removeTask(fc.Task.ID)
		}
	}
}

// TaskCount reports how many tasks the dispatcher is currently tracking;
// used by tests to verify retirement.
func (d *Dispatcher) TaskCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}
