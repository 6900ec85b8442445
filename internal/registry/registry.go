// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/gardener/logdispatch/internal/fsbuffer"
)

// Registry owns the set of configured output instances for one process: it
// allocates their mask bits, runs Init/PreRun in instance order and Exit in
// reverse instance order, and
// enforces that the configuration surface (§4.3) is only mutable before
// Check freezes it.
type Registry struct {
	catalog *Catalog

	mu        sync.Mutex
	instances []*Instance
	byBit     map[uint64]*Instance
	nextBit   uint
	checked   bool
	destroyed bool
}

// NewRegistry builds a Registry bound to catalog. catalog.Start must have
// already been called; Registry never registers plugins itself.
func NewRegistry(catalog *Catalog) *Registry {
	return &Registry{
		catalog: catalog,
		byBit:   make(map[uint64]*Instance),
	}
}

// New allocates an instance of the named plugin. The mask bit is the next
// unused single bit in a 64-bit space; Registry refuses the 65th instance
// rather than silently wrapping (the invariant is "single-bit values,
// unique within the process" — there is no room past bit 63).
func (r *Registry) New(pluginName string, config map[string]string) (*Instance, error) {
	desc, err := r.catalog.Lookup(pluginName)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.checked {
		return nil, errors.New("registry: cannot create instances after Check")
	}
	if r.nextBit >= 64 {
		return nil, errors.New("registry: exhausted the 64-bit instance mask space")
	}

	id := len(r.instances)
	bit := uint64(1) << r.nextBit
	r.nextBit++

	name := fmt.Sprintf("%s.%d", pluginName, id)
	inst := newInstance(id, name, bit, desc)

	if err := applyProperties(inst, config); err != nil {
		return nil, err
	}

	r.instances = append(r.instances, inst)
	r.byBit[bit] = inst
	return inst, nil
}

// applyProperties maps the raw string-keyed configuration onto an
// instance's well-known fields: match/match_regex, alias, log_level,
// workers, storage.*, host/port/path and tls.* (§4.3). net.* keys are not
// read, so NetworkOptions.KeepAlive and Timeout stay zero. Keys outside this
// set are not kept on the instance: Init and PreRun only see what
// instanceConfig rebuilds, and FlushParams.Config is not populated.
func applyProperties(inst *Instance, config map[string]string) error {
	route, err := NewRoute(config["match"], config["match_regex"])
	if err != nil {
		return err
	}
	inst.Route = route

	if v, ok := config["alias"]; ok {
		inst.Alias = v
	}
	if v, ok := config["log_level"]; ok {
		inst.LogLevel = v
	}
	if v, ok := config["workers"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "registry: instance %s: invalid workers value %q", inst.Name, v)
		}
		inst.Workers = n
	}
	if v, ok := config["storage.total_limit_size"]; ok {
		n, err := parseSizeBytes(v)
		if err != nil {
			return errors.Wrapf(err, "registry: instance %s: invalid storage.total_limit_size %q", inst.Name, v)
		}
		inst.TotalLimitSize = n
	}
	if dir, ok := config["storage.path"]; ok && dir != "" {
		segSize, err := parseIntDefault(config["storage.segment_size"], 500)
		if err != nil {
			return errors.Wrapf(err, "registry: instance %s: invalid storage.segment_size", inst.Name)
		}
		sync := config["storage.sync"] == "true"
		buf, err := fsbuffer.Open(dir, inst.Name, segSize, sync)
		if err != nil {
			return errors.Wrapf(err, "registry: instance %s: failed to open filesystem buffer", inst.Name)
		}
		inst.FSBuffer = buf
	}

	net := NetworkOptions{
		Host: config["host"],
		Port: config["port"],
		Path: config["path"],
	}
	hasNet := net.Host != "" || net.Port != "" || net.Path != ""

	hasTLS := false
	for k, v := range config {
		if !strings.HasPrefix(k, "tls.") {
			continue
		}
		hasTLS = true
		switch k {
		case "tls.verify":
			net.Verify = v == "true" || v == "on" || v == "1"
		case "tls.vhost":
			net.SNIVHost = v
		case "tls.ca_path":
			net.CAPath = v
		case "tls.ca_file":
			net.CAFile = v
		case "tls.crt_file":
			net.ClientCert = v
		case "tls.key_file":
			net.ClientKey = v
		case "tls.key_passwd":
			net.ClientKeyPassphrase = v
		}
	}
	if hasTLS {
		net.TLS = true
		inst.Flags |= FlagTLS
	}
	if hasNet || hasTLS {
		inst.Net = net
	}

	return inst.validateNetAndTLS()
}

func parseSizeBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "G"):
		mult = 1 << 30
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		mult = 1 << 20
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "K"):
		mult = 1 << 10
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}

func parseIntDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// Check runs each instance's Init in creation order, freezes the
// registration window, and returns the first error encountered (matching
// the source material's fail-fast startup: one bad instance aborts the
// whole engine rather than running with a partial set).
func (r *Registry) Check(userData any) error {
	r.mu.Lock()
	if r.checked {
		r.mu.Unlock()
		return errors.New("registry: Check already called")
	}
	r.checked = true
	instances := append([]*Instance(nil), r.instances...)
	r.mu.Unlock()

	for _, inst := range instances {
		ctx, err := inst.Descriptor.Init(inst, instanceConfig(inst), userData)
		if err != nil {
			inst.unusable = true
			return errors.Wrapf(err, "registry: instance %s: init failed", inst.Name)
		}
		inst.PluginCtx = ctx
	}
	for _, inst := range instances {
		if inst.Descriptor.PreRun == nil {
			continue
		}
		if err := inst.Descriptor.PreRun(context.Background(), instanceConfig(inst)); err != nil {
			inst.unusable = true
			return errors.Wrapf(err, "registry: instance %s: pre_run failed", inst.Name)
		}
	}
	return nil
}

// instanceConfig reconstructs the handful of string properties a plugin's
// own Init/PreRun are entitled to see again (host/port/path plus whatever
// the instance was configured with is already folded into the Instance
// struct itself by this point).
func instanceConfig(inst *Instance) map[string]string {
	cfg := map[string]string{
		"alias":     inst.Alias,
		"log_level": inst.LogLevel,
	}
	if inst.Net.Host != "" {
		cfg["host"] = inst.Net.Host
	}
	if inst.Net.Port != "" {
		cfg["port"] = inst.Net.Port
	}
	if inst.Net.Path != "" {
		cfg["path"] = inst.Net.Path
	}
	return cfg
}

// Destroy runs Exit on every instance in reverse creation order, best
// effort — it does not stop at the first error so every instance gets a
// chance to release its resources — and returns the first error seen, if
// any.
func (r *Registry) Destroy() error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return errors.New("registry: Destroy already called")
	}
	r.destroyed = true
	instances := append([]*Instance(nil), r.instances...)
	r.mu.Unlock()

	var firstErr error
	for i := len(instances) - 1; i >= 0; i-- {
		inst := instances[i]
		if inst.FSBuffer != nil {
			if err := inst.FSBuffer.Close(); err != nil && firstErr == nil {
				firstErr = errors.Wrapf(err, "registry: instance %s: fs buffer close failed", inst.Name)
			}
		}
		if inst.Descriptor.Exit == nil || inst.unusable {
			continue
		}
		if err := inst.Descriptor.Exit(inst.PluginCtx, instanceConfig(inst)); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "registry: instance %s: exit failed", inst.Name)
			}
		}
	}
	return firstErr
}

// Instances returns a snapshot of the configured instances in creation
// order.
func (r *Registry) Instances() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Instance(nil), r.instances...)
}

// ByMaskBit looks up the instance owning bit, or nil if no instance holds
// it. The dispatcher does not use it: each completion it reads already
// carries its instance.
func (r *Registry) ByMaskBit(bit uint64) *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byBit[bit]
}

// Route resolves which instances a tag fans out to, in mask-bit order
// (i.e. creation order), matching the engine's single pass over the
// routing table per record batch.
func (r *Registry) Route(tag string) []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		if inst.unusable {
			continue
		}
		if inst.Route.Matches(tag) {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaskBit < out[j].MaskBit })
	return out
}
