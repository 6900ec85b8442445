// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch implements the output dispatch core (C4/C5): flush
// execution contexts, the completion bus, and the single-threaded engine
// loop that interlocks them. Per the design notes (§9) the cooperative-stack
// frame with its thread-local parameter slot is replaced with a goroutine
// per flush attempt and a channel carrying the same fields as the original
// pipe word; the packed word itself is still produced and consumed exactly
// as specified, since it is the one piece of this subsystem the design
// notes call a wire format rather than an implementation detail.
package dispatch

import (
	"github.com/pkg/errors"

	"github.com/gardener/logdispatch/internal/registry"
)

// EventKind identifies the kind of event carried by a completion word. TASK
// is the only kind the dispatcher currently produces or consumes.
type EventKind uint32

// EventKindTask is the only defined event kind.
const EventKindTask EventKind = 2

const (
	dispositionBits = 2
	taskIDBits      = 15
	frameIDBits     = 15

	dispositionMask = uint32(1)<<dispositionBits - 1
	taskIDMask      = uint32(1)<<taskIDBits - 1
	frameIDMask     = uint32(1)<<frameIDBits - 1

	taskIDShift  = dispositionBits
	frameIDShift = dispositionBits + taskIDBits

	// MaxTaskID and MaxFrameID are the largest ids the 15-bit fields can
	// carry; PackWord refuses anything larger rather than silently
	// truncating.
	MaxTaskID  = int(taskIDMask)
	MaxFrameID = int(frameIDMask)
)

// PackWord composes the little-endian 64-bit completion word: high 32 bits
// are the event kind (always TASK here), low 32 bits are disposition (2
// bits), task id (15 bits), frame id (15 bits), packed least-significant
// field first. Implementations sharing a wire format with this one must
// preserve these exact bit positions.
func PackWord(d registry.Disposition, taskID, frameID int) (uint64, error) {
	if taskID < 0 || taskID > MaxTaskID {
		return 0, errors.Errorf("dispatch: task id %d does not fit in %d bits", taskID, taskIDBits)
	}
	if frameID < 0 || frameID > MaxFrameID {
		return 0, errors.Errorf("dispatch: frame id %d does not fit in %d bits", frameID, frameIDBits)
	}

	low := uint32(d)&dispositionMask | uint32(taskID)<<taskIDShift | uint32(frameID)<<frameIDShift
	return uint64(EventKindTask)<<32 | uint64(low), nil
}

// UnpackWord decodes a completion word produced by PackWord.
func UnpackWord(word uint64) (kind EventKind, d registry.Disposition, taskID, frameID int) {
	kind = EventKind(word >> 32)
	low := uint32(word)
	d = registry.Disposition(low & dispositionMask)
	taskID = int((low >> taskIDShift) & taskIDMask)
	frameID = int((low >> frameIDShift) & frameIDMask)
	return
}
