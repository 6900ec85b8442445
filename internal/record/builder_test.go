// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapHeaderRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 2, 16, 31, 32, 65535, 65536, 70000} {
		b := NewBuilder()
		c := b.OpenMap()
		for i := 0; i < n; i++ {
			c.Entry()
			b.PutString("k")
			b.PutInt(int64(i))
		}
		require.NoError(t, c.Close())

		node, consumed, err := Decode(b.Bytes())
		require.NoError(t, err)
		require.Equal(t, len(b.Bytes()), consumed)
		require.Equal(t, KMap, node.Kind)
		require.Len(t, node.Pairs, n)
	}
}

func TestArrayHeaderRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 31, 32, 1000} {
		b := NewBuilder()
		c := b.OpenArray()
		for i := 0; i < n; i++ {
			c.Entry()
			b.PutInt(int64(i))
		}
		require.NoError(t, c.Close())

		node, consumed, err := Decode(b.Bytes())
		require.NoError(t, err)
		require.Equal(t, len(b.Bytes()), consumed)
		require.Equal(t, KArray, node.Kind)
		require.Len(t, node.Items, n)
		for i, item := range node.Items {
			require.Equal(t, int64(i), item.Int)
		}
	}
}

func TestHeaderAlwaysWidestEncoding(t *testing.T) {
	b := NewBuilder()
	c := b.OpenMap()
	require.NoError(t, c.Close())
	require.Len(t, b.Bytes(), headerLen)
	require.Equal(t, byte(mapHeaderTag), b.Bytes()[0])
}

func TestCloseDoesNotMoveIntermediatePayload(t *testing.T) {
	b := NewBuilder()
	c := b.OpenMap()
	c.Entry()
	b.PutString("key")
	payloadBeforeClose := append([]byte(nil), b.Bytes()...)
	require.NoError(t, c.Close())

	// Only the 4 count bytes of the header may differ; everything after the
	// header, including the key we already wrote, must be untouched.
	require.Equal(t, payloadBeforeClose[headerLen:], b.Bytes()[headerLen:])
}

func TestDoubleCloseIsRejected(t *testing.T) {
	b := NewBuilder()
	c := b.OpenMap()
	require.NoError(t, c.Close())
	require.Error(t, c.Close())
}

func TestOddEntryCountMapClosesFine(t *testing.T) {
	// Entry() is called once per key+value pair, so a map holding an odd
	// number of pairs (1, 3, ...) is a routine, valid shape, not a
	// programmer error: the accessor's rebuild of {d:2} out of {c:1,d:2}
	// is exactly this case.
	b := NewBuilder()
	c := b.OpenMap()
	c.Entry()
	b.PutString("only-key")
	b.PutInt(1)
	require.NoError(t, c.Close())

	node, consumed, err := Decode(b.Bytes())
	require.NoError(t, err)
	require.Equal(t, len(b.Bytes()), consumed)
	require.Len(t, node.Pairs, 1)
}

func TestScalarRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.PutNil()
	b.PutBool(true)
	b.PutBool(false)
	b.PutInt(-1)
	b.PutInt(1000000)
	b.PutString("hello")

	buf := b.Bytes()
	off := 0
	for _, want := range []Kind{KNil, KBool, KBool, KInt, KInt, KString} {
		n, consumed, err := Decode(buf[off:])
		require.NoError(t, err)
		require.Equal(t, want, n.Kind)
		off += consumed
	}
	require.Equal(t, len(buf), off)
}
