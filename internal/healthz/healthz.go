// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

// Package healthz builds the process health endpoint on top of
// controller-runtime's healthz.Handler, the same library the teacher wraps
// for its fluent-bit plugin. Where the teacher's checker polls an external
// metrics endpoint for staleness, this one asks the registry directly
// whether every configured instance is still usable — there is no external
// process to poll here, the dispatch core is the process.
package healthz

import (
	"net/http"

	"sigs.k8s.io/controller-runtime/pkg/healthz"

	"github.com/gardener/logdispatch/internal/registry"
)

// Handler returns an http.Handler serving /healthz and /readyz-style checks
// against reg: healthy once every instance that went through Check is
// still usable (no failed init has taken it out of rotation).
func Handler(reg *registry.Registry) http.Handler {
	chk := &instanceChecker{reg: reg}
	return &healthz.Handler{
		Checks: map[string]healthz.Checker{
			"healthz": chk.check,
		},
	}
}

type instanceChecker struct {
	reg *registry.Registry
}

func (c *instanceChecker) check(_ *http.Request) error {
	for _, inst := range c.reg.Instances() {
		if inst.Unusable() {
			return unusableError{name: inst.Name}
		}
	}
	return nil
}

type unusableError struct{ name string }

func (e unusableError) Error() string { return "instance " + e.name + " is unusable" }
