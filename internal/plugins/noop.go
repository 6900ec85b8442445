// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package plugins

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/gardener/logdispatch/internal/registry"
)

// NewNoop returns the descriptor for the "noop" output: it discards every
// task it is handed and always reports OK, mirroring the teacher's
// NoopClient which keeps metrics moving without doing any I/O. Useful for
// load tests and for routes an operator wants to silence without removing.
func NewNoop(log logr.Logger) *registry.Descriptor {
	return &registry.Descriptor{
		Name:        "noop",
		Description: "discards every record it receives",
		Init: func(inst *registry.Instance, config map[string]string, userData any) (any, error) {
			return log.WithValues("instance", inst.Name), nil
		},
		Flush: func(ctx context.Context, p registry.FlushParams) registry.Disposition {
			return registry.OK
		},
	}
}
