// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

// Package plugins provides a small set of built-in output descriptors —
// stdout and noop — grounded in the teacher's pkg/client.StdoutClient and
// pkg/client.NoopClient. They exist primarily to give internal/dispatch and
// internal/registry something real to flush against in tests and as a
// minimal, always-available destination for operators.
package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-logr/logr"

	"github.com/gardener/logdispatch/internal/record"
	"github.com/gardener/logdispatch/internal/registry"
)

// NewStdout returns the descriptor for the "stdout" output: it decodes
// every top-level record map in the task buffer and writes it to stdout as
// a line of JSON, the same wire shape the teacher's StdoutClient.Handle
// produces for a single entry.
func NewStdout(log logr.Logger) *registry.Descriptor {
	return &registry.Descriptor{
		Name:        "stdout",
		Description: "writes records to stdout as newline-delimited JSON",
		Init: func(inst *registry.Instance, config map[string]string, userData any) (any, error) {
			return log.WithValues("instance", inst.Name), nil
		},
		Flush: func(ctx context.Context, p registry.FlushParams) registry.Disposition {
			l, _ := p.PluginCtx.(logr.Logger)

			buf := p.Buf
			for len(buf) > 0 {
				root, consumed, err := record.Decode(buf)
				if err != nil {
					l.Error(err, "stdout: malformed record batch")
					return registry.ERROR
				}
				buf = buf[consumed:]

				data, err := json.Marshal(nodeToJSON(root))
				if err != nil {
					l.Error(err, "stdout: failed to marshal record")
					return registry.ERROR
				}
				if _, err := fmt.Fprintln(os.Stdout, string(data)); err != nil {
					l.Error(err, "stdout: write failed")
					return registry.ERROR
				}
			}
			return registry.OK
		},
	}
}

// nodeToJSON converts a decoded record tree into plain Go values so it can
// be handed to encoding/json without a custom Marshaler — the builder/
// decoder pair in internal/record is optimized for byte-exact rewriting,
// not for producing idiomatic Go values, so this is a one-way, display-only
// conversion.
func nodeToJSON(n *record.Node) any {
	switch n.Kind {
	case record.KMap:
		m := make(map[string]any, len(n.Pairs))
		for _, pr := range n.Pairs {
			m[fmt.Sprint(nodeToJSON(pr.Key))] = nodeToJSON(pr.Val)
		}
		return m
	case record.KArray:
		arr := make([]any, len(n.Items))
		for i, item := range n.Items {
			arr[i] = nodeToJSON(item)
		}
		return arr
	case record.KString:
		return n.Str
	case record.KBin:
		return n.Bin
	case record.KInt:
		return n.Int
	case record.KUint:
		return n.Uint
	case record.KFloat:
		return n.Float
	case record.KBool:
		return n.Bool
	case record.KNil:
		return nil
	default:
		return nil
	}
}
