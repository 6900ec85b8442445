// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

// Package config implements the instance configuration surface (§6): a
// plain string-keyed property bag — the same shape the teacher's
// pluginConfig.toStringMap/Get contract exposes, since the underlying
// plugin host here has no structured config API either, only key lookups —
// plus the short-form/URL-form destination syntax the dispatcher parses at
// instance creation. Deliberately not backed by mapstructure: there is no
// struct to decode into, only a flat property set plugins and the registry
// package read selectively by key.
package config

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Properties is a flat, lower-cased configuration bag for one instance.
type Properties map[string]string

// Get returns the raw string value for key, or "" if unset.
func (p Properties) Get(key string) string { return p[strings.ToLower(key)] }

// GetBool parses a boolean property, defaulting to def when unset or
// unparseable is never silently assumed: an unparseable non-empty value is
// a hard configuration error per §7's ErrConfig.
func (p Properties) GetBool(key string, def bool) (bool, error) {
	v, ok := p[strings.ToLower(key)]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "config: invalid boolean for %q", key)
	}
	return b, nil
}

// GetDuration parses a duration property such as net.keepalive.
func (p Properties) GetDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := p[strings.ToLower(key)]
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "config: invalid duration for %q", key)
	}
	return d, nil
}

// GetInt parses an integer property.
func (p Properties) GetInt(key string, def int) (int, error) {
	v, ok := p[strings.ToLower(key)]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "config: invalid integer for %q", key)
	}
	return n, nil
}

// FromStringMap lower-cases every key of m into a Properties bag; unknown
// keys are kept (§6: "unknown keys are a warning, not an error" — callers
// decide whether to warn, config itself never rejects them).
func FromStringMap(m map[string]string) Properties {
	p := make(Properties, len(m))
	for k, v := range m {
		p[strings.ToLower(k)] = v
	}
	return p
}

// Destination is a parsed output destination: plugin_name on its own, or
// plugin_name://host:port/path in URL form.
type Destination struct {
	Plugin string
	Host   string
	Port   string
	Path   string
}

// ParseDestination parses the short-form or URL-form destination syntax
// (§6). Short form is a bare plugin name with no scheme separator.
func ParseDestination(raw string) (Destination, error) {
	if !strings.Contains(raw, "://") {
		if raw == "" {
			return Destination{}, errors.New("config: empty destination")
		}
		return Destination{Plugin: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, errors.Wrapf(err, "config: invalid destination %q", raw)
	}
	if u.Scheme == "" {
		return Destination{}, errors.Errorf("config: destination %q has no plugin scheme", raw)
	}

	return Destination{
		Plugin: u.Scheme,
		Host:   u.Hostname(),
		Port:   u.Port(),
		Path:   u.Path,
	}, nil
}
