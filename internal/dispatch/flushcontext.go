// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"

	"github.com/gardener/logdispatch/internal/registry"
)

// FlushContext is one in-flight invocation of an output's flush entry
// (C4). In the source material this owns a cooperative stack and a
// thread-local parameter slot; here the goroutine running run plays
// the part of the stack, and the arguments it closes over play the part of
// the slot — per §9, the parameter bundle collapses into captured state
// because Go goroutines are first-class and argument-carrying.
type FlushContext struct {
	ID       int // local id, unique within its task
	Task     *Task
	Instance *registry.Instance

	cancel context.CancelFunc
}

// run invokes the plugin's flush body and returns its disposition. It is
// the goroutine equivalent of "switch to the frame, run flush, yield at
// return(disposition)": the one suspension point is this goroutine
// blocking inside the plugin's own I/O between spawn and return.
func (fc *FlushContext) run(ctx context.Context) registry.Disposition {
	params := registry.FlushParams{
		Buf:           fc.Task.Buf,
		Tag:           fc.Task.Tag,
		InputInstance: fc.Instance.Name,
		PluginCtx:     fc.Instance.PluginCtx,
	}
	return fc.Instance.Descriptor.Flush(ctx, params)
}
