// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

// Package accessor implements the path-accessor match engine: compiling
// dotted-path patterns, matching them against a decoded record, and
// rewriting the record with every matched subtree excised. It is the Go
// port of fluent-bit's flb_record_accessor / flb_mp_accessor_keys_remove
// pairing (see src/flb_mp.c in the retrieval pack), expressed over the
// ordered record.Node tree instead of a msgpack_object parsed in place.
package accessor

import (
	"fmt"
	"strconv"
	"strings"
)

// segmentKind distinguishes a literal map key from an array index. Patterns
// never float: each segment only ever matches at its own depth.
type segmentKind int

const (
	segKey segmentKind = iota
	segIndex
)

type segment struct {
	kind  segmentKind
	key   string
	index int
}

// Pattern is one compiled dotted-path rule, e.g. "kubernetes.annotations[0]".
type Pattern struct {
	raw      string
	segments []segment
}

// String returns the original pattern text.
func (p *Pattern) String() string { return p.raw }

// Compile parses a dotted-path pattern into a Pattern. A path segment is
// either a literal key or a bracketed array index; both may appear on the
// same dot-separated chunk (e.g. "items[2]" compiles to a key segment
// followed by an index segment).
func Compile(path string) (*Pattern, error) {
	if path == "" {
		return nil, fmt.Errorf("accessor: empty pattern")
	}

	p := &Pattern{raw: path}
	for _, chunk := range strings.Split(path, ".") {
		segs, err := splitChunk(chunk)
		if err != nil {
			return nil, fmt.Errorf("accessor: pattern %q: %w", path, err)
		}
		p.segments = append(p.segments, segs...)
	}
	if len(p.segments) == 0 {
		return nil, fmt.Errorf("accessor: pattern %q has no segments", path)
	}
	if p.segments[0].kind != segKey {
		return nil, fmt.Errorf("accessor: pattern %q must begin with a key (records are rooted in a map)", path)
	}
	return p, nil
}

// splitChunk turns "foo", "[3]", or "foo[3][1]" into one or more segments.
func splitChunk(chunk string) ([]segment, error) {
	var segs []segment
	for len(chunk) > 0 {
		if chunk[0] == '[' {
			end := strings.IndexByte(chunk, ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated index in %q", chunk)
			}
			idx, err := strconv.Atoi(chunk[1:end])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid array index in %q", chunk)
			}
			segs = append(segs, segment{kind: segIndex, index: idx})
			chunk = chunk[end+1:]
			continue
		}
		end := strings.IndexByte(chunk, '[')
		if end < 0 {
			segs = append(segs, segment{kind: segKey, key: chunk})
			break
		}
		segs = append(segs, segment{kind: segKey, key: chunk[:end]})
		chunk = chunk[end:]
	}
	return segs, nil
}
