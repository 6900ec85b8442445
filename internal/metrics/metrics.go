// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

// Package metrics implements the accounting side of C6: per-instance
// counters for successful records/bytes and errors, plus the filesystem
// buffer gauge the engine's buffer subsystem charges/discharges against.
// It is grounded in the teacher's pkg/metrics package, translated from a
// package-level promauto singleton into a constructible Collector so tests
// can register against a private prometheus.Registry instead of fighting
// over the global one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gardener/logdispatch/internal/registry"
)

const namespace = "logdispatch"

// Collector owns the instance-labelled counters and gauges described in
// §4.6. It implements dispatch.MetricsSink.
type Collector struct {
	okRecords   *prometheus.CounterVec
	okBytes     *prometheus.CounterVec
	errors      *prometheus.CounterVec
	retries     *prometheus.CounterVec
	fsChunks    *prometheus.GaugeVec
}

// NewCollector registers the collector's metrics against reg and returns
// it. Passing a fresh prometheus.NewRegistry() keeps tests isolated from
// each other; cmd/dispatchd likewise passes its own private registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		okRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "out_ok_records",
			Help:      "Number of records successfully flushed, per output instance.",
		}, []string{"instance"}),
		okBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "out_ok_bytes",
			Help:      "Number of bytes successfully flushed, per output instance.",
		}, []string{"instance"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "out_errors",
			Help:      "Number of flush attempts that reported ERROR, per output instance.",
		}, []string{"instance"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "out_retries",
			Help:      "Number of flush attempts that reported RETRY, per output instance.",
		}, []string{"instance"}),
		fsChunks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fs_chunks_size_bytes",
			Help:      "Current filesystem buffer usage, per output instance.",
		}, []string{"instance"}),
	}
}

// ObserveOK credits a successful flush's records and bytes to inst.
func (c *Collector) ObserveOK(inst *registry.Instance, records, bytes int) {
	c.okRecords.WithLabelValues(inst.Name).Add(float64(records))
	c.okBytes.WithLabelValues(inst.Name).Add(float64(bytes))
}

// ObserveError credits an ERROR disposition to inst.
func (c *Collector) ObserveError(inst *registry.Instance) {
	c.errors.WithLabelValues(inst.Name).Inc()
}

// ObserveRetry credits a RETRY disposition to inst. The dispatcher does not
// call this itself (retry accounting is the scheduler's responsibility per
// §9); it exists for a scheduler implementation to call from its
// Reschedule hook.
func (c *Collector) ObserveRetry(inst *registry.Instance) {
	c.retries.WithLabelValues(inst.Name).Inc()
}

// SetFSChunksSize reports an instance's current filesystem buffer usage.
func (c *Collector) SetFSChunksSize(inst *registry.Instance, bytes int64) {
	c.fsChunks.WithLabelValues(inst.Name).Set(float64(bytes))
}
