// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package accessor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gardener/logdispatch/internal/record"
)

// buildRecord encodes {a:{b:{c:1,d:2},e:3},f:4} as used by the spec's
// worked removal example.
func buildRecord(t *testing.T) []byte {
	t.Helper()
	b := record.NewBuilder()
	outer := b.OpenMap()

	outer.Entry()
	b.PutString("a")
	inner := b.OpenMap()
	inner.Entry()
	b.PutString("b")
	bMap := b.OpenMap()
	bMap.Entry()
	b.PutString("c")
	b.PutInt(1)
	bMap.Entry()
	b.PutString("d")
	b.PutInt(2)
	require.NoError(t, bMap.Close())
	inner.Entry()
	b.PutString("e")
	b.PutInt(3)
	require.NoError(t, inner.Close())

	outer.Entry()
	b.PutString("f")
	b.PutInt(4)
	require.NoError(t, outer.Close())

	return b.Bytes()
}

func TestRemoveNestedPath(t *testing.T) {
	buf := buildRecord(t)
	root, err := record.DecodeMap(buf)
	require.NoError(t, err)

	m, err := NewMatcher("a.b.c")
	require.NoError(t, err)

	modified, out, err := m.Remove(root)
	require.NoError(t, err)
	require.True(t, modified)

	result, err := record.DecodeMap(out)
	require.NoError(t, err)

	require.Len(t, result.Pairs, 2)
	require.Equal(t, "a", result.Pairs[0].Key.Str)
	require.Equal(t, "f", result.Pairs[1].Key.Str)
	require.Equal(t, int64(4), result.Pairs[1].Val.Int)

	aVal := result.Pairs[0].Val
	require.Len(t, aVal.Pairs, 2)
	require.Equal(t, "b", aVal.Pairs[0].Key.Str)
	require.Equal(t, "e", aVal.Pairs[1].Key.Str)
	require.Equal(t, int64(3), aVal.Pairs[1].Val.Int)

	bVal := aVal.Pairs[0].Val
	require.Len(t, bVal.Pairs, 1)
	require.Equal(t, "d", bVal.Pairs[0].Key.Str)
	require.Equal(t, int64(2), bVal.Pairs[0].Val.Int)
}

func TestUnmodifiedPassthrough(t *testing.T) {
	buf := buildRecord(t)
	root, err := record.DecodeMap(buf)
	require.NoError(t, err)

	m, err := NewMatcher("nonexistent.path")
	require.NoError(t, err)

	modified, out, err := m.Remove(root)
	require.NoError(t, err)
	require.False(t, modified)
	require.Nil(t, out)
}

func TestRemoveTopLevelKey(t *testing.T) {
	buf := buildRecord(t)
	root, err := record.DecodeMap(buf)
	require.NoError(t, err)

	m, err := NewMatcher("f")
	require.NoError(t, err)

	modified, out, err := m.Remove(root)
	require.NoError(t, err)
	require.True(t, modified)

	result, err := record.DecodeMap(out)
	require.NoError(t, err)
	require.Len(t, result.Pairs, 1)
	require.Equal(t, "a", result.Pairs[0].Key.Str)
}

func TestRemovePreservesSiblingOrder(t *testing.T) {
	b := record.NewBuilder()
	top := b.OpenMap()
	for _, k := range []string{"z", "a", "m", "drop", "b"} {
		top.Entry()
		b.PutString(k)
		b.PutInt(1)
	}
	require.NoError(t, top.Close())

	root, err := record.DecodeMap(b.Bytes())
	require.NoError(t, err)

	m, err := NewMatcher("drop")
	require.NoError(t, err)
	modified, out, err := m.Remove(root)
	require.NoError(t, err)
	require.True(t, modified)

	result, err := record.DecodeMap(out)
	require.NoError(t, err)
	var keys []string
	for _, pair := range result.Pairs {
		keys = append(keys, pair.Key.Str)
	}
	require.Equal(t, []string{"z", "a", "m", "b"}, keys)
}

func TestRemoveArrayIndex(t *testing.T) {
	b := record.NewBuilder()
	top := b.OpenMap()
	top.Entry()
	b.PutString("items")
	arr := b.OpenArray()
	for i := 0; i < 3; i++ {
		arr.Entry()
		b.PutInt(int64(i))
	}
	require.NoError(t, arr.Close())
	require.NoError(t, top.Close())

	root, err := record.DecodeMap(b.Bytes())
	require.NoError(t, err)

	m, err := NewMatcher("items[1]")
	require.NoError(t, err)
	modified, out, err := m.Remove(root)
	require.NoError(t, err)
	require.True(t, modified)

	result, err := record.DecodeMap(out)
	require.NoError(t, err)
	items := result.Pairs[0].Val.Items
	require.Len(t, items, 2)
	require.Equal(t, int64(0), items[0].Int)
	require.Equal(t, int64(2), items[1].Int)
}

func TestBadRecordNotAMap(t *testing.T) {
	b := record.NewBuilder()
	b.PutInt(5)
	node, _, err := record.Decode(b.Bytes())
	require.NoError(t, err)

	m, err := NewMatcher("x")
	require.NoError(t, err)
	_, _, err = m.Remove(node)
	require.ErrorIs(t, err, record.ErrBadRecord)
}
