// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"sync"

	"github.com/pkg/errors"
)

// Catalog is the plugin descriptor registry. The design notes call this a
// process-wide singleton bracketed by the engine's startup/shutdown phases;
// this port keeps that lifecycle explicit but avoids a package-level
// variable so tests can run several catalogs in the same process.
type Catalog struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	started     bool
	stopped     bool
}

// NewCatalog returns an empty, not-yet-started catalog.
func NewCatalog() *Catalog {
	return &Catalog{descriptors: make(map[string]*Descriptor)}
}

// Register adds a plugin descriptor. Registration must happen before Start;
// descriptors are immutable for the remainder of the process's life.
func (c *Catalog) Register(d *Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.Errorf("registry: cannot register plugin %q after catalog start", d.Name)
	}
	if _, exists := c.descriptors[d.Name]; exists {
		return errors.Errorf("registry: plugin %q already registered", d.Name)
	}
	c.descriptors[d.Name] = d
	return nil
}

// Start closes the registration window. Instances may only be created
// after Start.
func (c *Catalog) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
}

// Stop marks the catalog torn down; Lookup and New both refuse to run
// afterwards, matching "must not be accessed ... after teardown begins".
func (c *Catalog) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

// Lookup finds a registered, non-disabled descriptor by name.
func (c *Catalog) Lookup(name string) (*Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return nil, errors.New("registry: catalog has been torn down")
	}
	if !c.started {
		return nil, errors.New("registry: catalog has not been started")
	}
	d, ok := c.descriptors[name]
	if !ok {
		return nil, errors.Errorf("registry: unknown plugin %q", name)
	}
	return d, nil
}
