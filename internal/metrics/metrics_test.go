// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/gardener/logdispatch/internal/registry"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, label string) float64 {
	t.Helper()
	m := &io_prometheus_client.Metric{}
	require.NoError(t, vec.WithLabelValues(label).(prometheus.Metric).Write(m))
	return m.GetCounter().GetValue()
}

func TestObserveOKCreditsRecordsAndBytes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	cat := registry.NewCatalog()
	require.NoError(t, cat.Register(&registry.Descriptor{
		Name: "stub",
		Init: func(inst *registry.Instance, config map[string]string, userData any) (any, error) { return nil, nil },
		Flush: func(ctx context.Context, p registry.FlushParams) registry.Disposition {
			return registry.OK
		},
	}))
	cat.Start()
	r := registry.NewRegistry(cat)
	inst, err := r.New("stub", nil)
	require.NoError(t, err)

	c.ObserveOK(inst, 3, 120)
	require.Equal(t, float64(3), counterValue(t, c.okRecords, inst.Name))
	require.Equal(t, float64(120), counterValue(t, c.okBytes, inst.Name))

	c.ObserveError(inst)
	require.Equal(t, float64(1), counterValue(t, c.errors, inst.Name))
}
