// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package plugins

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardener/logdispatch/internal/record"
	"github.com/gardener/logdispatch/internal/registry"
)

func buildSingleMapBuffer(t *testing.T) []byte {
	t.Helper()
	var b record.Builder
	c := b.OpenMap()
	b.PutString("msg")
	b.PutString("hello")
	c.Entry()
	require.NoError(t, c.Close())
	return b.Bytes()
}

func TestStdoutFlushWritesJSONLine(t *testing.T) {
	desc := NewStdout(logr.Discard())
	ctx, err := desc.Init(&registry.Instance{Name: "stdout.0"}, nil, nil)
	require.NoError(t, err)

	buf := buildSingleMapBuffer(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	origStdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = origStdout }()

	disposition := desc.Flush(context.Background(), registry.FlushParams{Buf: buf, PluginCtx: ctx})
	require.NoError(t, w.Close())
	assert.Equal(t, registry.OK, disposition)

	var out bytes.Buffer
	_, err = out.ReadFrom(r)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "hello")
}

func TestNoopFlushAlwaysOK(t *testing.T) {
	desc := NewNoop(logr.Discard())
	ctx, err := desc.Init(&registry.Instance{Name: "noop.0"}, nil, nil)
	require.NoError(t, err)

	disposition := desc.Flush(context.Background(), registry.FlushParams{PluginCtx: ctx})
	assert.Equal(t, registry.OK, disposition)
}
