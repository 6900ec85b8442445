// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubDescriptor(name string, flags Flags) *Descriptor {
	return &Descriptor{
		Name:  name,
		Flags: flags,
		Init: func(inst *Instance, config map[string]string, userData any) (any, error) {
			return "ctx:" + inst.Name, nil
		},
		Flush: func(ctx context.Context, params FlushParams) Disposition {
			return OK
		},
	}
}

func newTestRegistry(t *testing.T, flags Flags) (*Catalog, *Registry) {
	t.Helper()
	cat := NewCatalog()
	require.NoError(t, cat.Register(stubDescriptor("stub", flags)))
	cat.Start()
	return cat, NewRegistry(cat)
}

func TestMaskBitsAreUniqueSingleBits(t *testing.T) {
	_, reg := newTestRegistry(t, 0)
	seen := map[uint64]bool{}
	for i := 0; i < 10; i++ {
		inst, err := reg.New("stub", nil)
		require.NoError(t, err)
		require.False(t, seen[inst.MaskBit], "mask bit reused")
		seen[inst.MaskBit] = true
		// exactly one bit set
		assert.Equal(t, inst.MaskBit, inst.MaskBit&(-inst.MaskBit))
	}
}

func TestTLSRequiresNetworkCapablePlugin(t *testing.T) {
	_, reg := newTestRegistry(t, 0) // no FlagNetwork
	_, err := reg.New("stub", map[string]string{"tls.verify": "true"})
	require.Error(t, err)
}

func TestTLSAllowedOnNetworkPlugin(t *testing.T) {
	_, reg := newTestRegistry(t, FlagNetwork)
	inst, err := reg.New("stub", map[string]string{"tls.verify": "true"})
	require.NoError(t, err)
	assert.True(t, inst.Flags.Has(FlagTLS))
}

func TestMatchAndMatchRegexMutuallyExclusive(t *testing.T) {
	_, reg := newTestRegistry(t, 0)
	_, err := reg.New("stub", map[string]string{"match": "foo.*", "match_regex": "^foo"})
	require.Error(t, err)
}

func TestCheckRunsInitAndFreezesRegistration(t *testing.T) {
	_, reg := newTestRegistry(t, 0)
	inst, err := reg.New("stub", nil)
	require.NoError(t, err)

	require.NoError(t, reg.Check(nil))
	assert.Equal(t, "ctx:"+inst.Name, inst.PluginCtx)

	_, err = reg.New("stub", nil)
	require.Error(t, err, "New after Check must fail")
}

func TestNoMultiplexEnforced(t *testing.T) {
	_, reg := newTestRegistry(t, FlagNoMultiplex)
	inst, err := reg.New("stub", nil)
	require.NoError(t, err)

	require.True(t, inst.TryBeginFlush(1))
	require.False(t, inst.TryBeginFlush(2), "second flush must be refused while one is active")

	inst.EndFlush(1)
	require.True(t, inst.TryBeginFlush(2))
}

func TestMultiplexAllowsConcurrentFlushes(t *testing.T) {
	_, reg := newTestRegistry(t, 0)
	inst, err := reg.New("stub", nil)
	require.NoError(t, err)

	require.True(t, inst.TryBeginFlush(1))
	require.True(t, inst.TryBeginFlush(2))
	assert.Equal(t, 2, inst.ActiveCount())
}

func TestRouteMatchesInMaskBitOrder(t *testing.T) {
	_, reg := newTestRegistry(t, 0)
	_, err := reg.New("stub", map[string]string{"match": "app.*"})
	require.NoError(t, err)
	_, err = reg.New("stub", map[string]string{"match": "*"})
	require.NoError(t, err)

	matched := reg.Route("app.foo")
	require.Len(t, matched, 2)
	assert.Less(t, matched[0].MaskBit, matched[1].MaskBit)
}

func TestChargeChunkRejectsOverLimit(t *testing.T) {
	_, reg := newTestRegistry(t, 0)
	inst, err := reg.New("stub", map[string]string{"storage.total_limit_size": "10M"})
	require.NoError(t, err)

	require.NoError(t, inst.ChargeChunk(5<<20))
	require.Error(t, inst.ChargeChunk(6<<20))
	inst.DischargeChunk(5 << 20)
	require.NoError(t, inst.ChargeChunk(6<<20))
}

func TestStoragePathOpensFSBufferAndSpillRoundTrips(t *testing.T) {
	_, reg := newTestRegistry(t, 0)
	dir := t.TempDir()
	inst, err := reg.New("stub", map[string]string{
		"storage.path":         dir,
		"storage.segment_size": "10",
	})
	require.NoError(t, err)
	require.NotNil(t, inst.FSBuffer)

	require.NoError(t, inst.SpillChunk("app.foo", []byte("payload")))
	assert.Equal(t, int64(len("payload")), inst.FSChunksSize())

	tag, buf, err := inst.UnspillChunk()
	require.NoError(t, err)
	assert.Equal(t, "app.foo", tag)
	assert.Equal(t, []byte("payload"), buf)
	assert.Equal(t, int64(0), inst.FSChunksSize())

	require.NoError(t, reg.Check(nil))
	require.NoError(t, reg.Destroy())
}

func TestSpillChunkRejectsOverLimit(t *testing.T) {
	_, reg := newTestRegistry(t, 0)
	dir := t.TempDir()
	inst, err := reg.New("stub", map[string]string{
		"storage.path":             dir,
		"storage.total_limit_size": "1",
	})
	require.NoError(t, err)

	require.Error(t, inst.SpillChunk("app.foo", []byte("too big for one byte")))
	assert.Equal(t, int64(0), inst.FSChunksSize(), "rejected spill must not charge fs_chunks_size")

	require.NoError(t, reg.Check(nil))
	require.NoError(t, reg.Destroy())
}

func TestDestroyIsBestEffortAndRunsReverseOrder(t *testing.T) {
	cat := NewCatalog()
	var order []string
	desc := &Descriptor{
		Name: "stub",
		Init: func(inst *Instance, config map[string]string, userData any) (any, error) {
			return inst.Name, nil
		},
		Flush: func(ctx context.Context, params FlushParams) Disposition { return OK },
		Exit: func(pluginCtx any, config map[string]string) error {
			order = append(order, pluginCtx.(string))
			return nil
		},
	}
	require.NoError(t, cat.Register(desc))
	cat.Start()
	reg := NewRegistry(cat)

	a, err := reg.New("stub", nil)
	require.NoError(t, err)
	b, err := reg.New("stub", nil)
	require.NoError(t, err)

	require.NoError(t, reg.Check(nil))
	require.NoError(t, reg.Destroy())
	assert.Equal(t, []string{b.Name, a.Name}, order)
}
