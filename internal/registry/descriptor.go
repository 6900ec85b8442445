// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

// Package registry implements the output instance registry (C3): plugin
// descriptors, per-destination instance allocation/validation/teardown, mask
// bit assignment, and the routing/TLS/network option surface the dispatcher
// and flush contexts consume. It intentionally knows nothing about how a
// flush actually runs (see internal/dispatch) — only what an instance is
// configured to do and whether it is allowed to run at all.
package registry

import (
	"context"

	"github.com/pkg/errors"
)

// Flags is the bitwise-OR of plugin-declared capabilities and per-instance
// toggles (the invariant "flags is the OR of plugin capabilities and the
// per-instance TLS flag").
type Flags uint32

const (
	// FlagNetwork marks a plugin that talks to a remote endpoint; only
	// such plugins may carry tls.* configuration.
	FlagNetwork Flags = 1 << iota
	// FlagNoMultiplex marks a plugin that can only ever have one active
	// flush at a time.
	FlagNoMultiplex
	// FlagProxy marks a plugin that is proxy-hosted (routes through
	// another process rather than dialing directly).
	FlagProxy
	// FlagTLS is set per-instance, not by the descriptor, when the
	// instance's tls.* properties enable transport security.
	FlagTLS
)

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// Disposition is the outcome of a flush: OK, RETRY, or ERROR.
type Disposition int

const (
	// OK means the flush succeeded.
	OK Disposition = iota
	// ERROR means the flush failed permanently for this attempt.
	ERROR
	// RETRY means the flush failed transiently; the scheduler, not the
	// dispatcher, decides whether and when to retry.
	RETRY
)

func (d Disposition) String() string {
	switch d {
	case OK:
		return "OK"
	case ERROR:
		return "ERROR"
	case RETRY:
		return "RETRY"
	default:
		return "UNKNOWN"
	}
}

// FlushParams is the argument bundle a flush entry point receives: the task
// buffer, its routing tag, the instance it is addressed to, and whatever
// opaque context init produced. In the source material this bundle is
// marshalled through a thread-local slot because the underlying coroutine
// primitive is argument-free; in Go it is simply the flush goroutine's
// captured state (see internal/dispatch), so FlushParams collapses straight
// into a plain struct instead of a slot handoff.
type FlushParams struct {
	Buf           []byte
	Tag           string
	InputInstance string
	PluginCtx     any
	Config        map[string]string
}

// InitFunc configures a freshly allocated instance and returns the opaque
// plugin context later handed to flush/pre_run/exit.
type InitFunc func(inst *Instance, config map[string]string, userData any) (pluginCtx any, err error)

// PreRunFunc runs once after init, before the instance accepts any flush.
type PreRunFunc func(ctx context.Context, config map[string]string) error

// FlushFunc performs one flush attempt. It reports its outcome via the
// return value rather than an error return, since RETRY is not a Go error —
// it's data the dispatcher routes to the scheduler.
type FlushFunc func(ctx context.Context, params FlushParams) Disposition

// ExitFunc tears down plugin-owned resources.
type ExitFunc func(pluginCtx any, config map[string]string) error

// Descriptor is the immutable, process-wide description of a type of
// destination. It is registered once at startup and never mutated.
type Descriptor struct {
	Name        string
	Description string
	Flags       Flags

	Init   InitFunc
	PreRun PreRunFunc
	Flush  FlushFunc
	Exit   ExitFunc
}

func (d *Descriptor) validate() error {
	if d.Name == "" {
		return errors.New("registry: descriptor has no name")
	}
	if d.Flush == nil {
		return errors.Errorf("registry: descriptor %q has no flush entry", d.Name)
	}
	return nil
}
