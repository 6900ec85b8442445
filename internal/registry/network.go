// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package registry

import "time"

// NetworkOptions holds the connection parameters common to every
// network-capable output: host/port/path, TLS toggle and material, and
// keepalive/timeout knobs. TLS session setup itself is out of scope (§1);
// this is only the configuration surface the dispatch core passes through
// to whatever transport the plugin owns.
type NetworkOptions struct {
	Host string
	Port string
	Path string

	TLS      bool
	Verify   bool
	SNIVHost string

	CAPath string
	CAFile string

	ClientCert          string
	ClientKey           string
	ClientKeyPassphrase string
	KeepAlive           time.Duration
	Timeout             time.Duration
}
