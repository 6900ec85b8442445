// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package accessor

import (
	"github.com/gardener/logdispatch/internal/record"
)

// Matcher holds a compiled list of path patterns, mirroring
// flb_mp_accessor's ra_list. It is safe for concurrent use: each Remove call
// builds its own match table rather than sharing mutable per-rule state,
// since a single instance's accessor list may back several concurrent
// flushes (see the dispatch package's NoMultiplex discussion). The original
// C implementation instead pre-sizes one shared arena indexed by rule id;
// that shortcut assumed single-threaded access and doesn't hold once
// flushes for the same output run concurrently, so this port allocates the
// (small, rule-count-sized) table per call instead.
type Matcher struct {
	patterns []*Pattern
}

// NewMatcher compiles patterns into a Matcher.
func NewMatcher(patterns ...string) (*Matcher, error) {
	m := &Matcher{patterns: make([]*Pattern, 0, len(patterns))}
	for _, p := range patterns {
		cp, err := Compile(p)
		if err != nil {
			return nil, err
		}
		m.patterns = append(m.patterns, cp)
	}
	return m, nil
}

// match is the resolved outcome of one pattern against one record: the
// chain of container nodes walked to reach the removal point (used to
// decide which ancestors must be rebuilt instead of copied verbatim), and
// the specific key or array item to elide.
type match struct {
	chain      []*record.Node // root-inclusive, ending at the parent container of the removed entry
	removeKey  *record.Node   // non-nil: elide this key (and its paired value) from its parent map
	removeItem *record.Node   // non-nil: elide this item from its parent array
}

// resolve walks root along p's segments, returning the match if the full
// path exists in this record, or ok=false if any segment fails to resolve
// (a non-match is not an error: most patterns simply won't apply to most
// records).
func resolve(root *record.Node, p *Pattern) (m match, ok bool) {
	cur := root
	m.chain = append(m.chain, root)

	for i, seg := range p.segments {
		last := i == len(p.segments)-1

		switch seg.kind {
		case segKey:
			if cur.Kind != record.KMap {
				return match{}, false
			}
			idx := findKey(cur, seg.key)
			if idx < 0 {
				return match{}, false
			}
			pair := cur.Pairs[idx]
			if last {
				m.removeKey = pair.Key
				return m, true
			}
			m.chain = append(m.chain, pair.Val)
			cur = pair.Val
		case segIndex:
			if cur.Kind != record.KArray {
				return match{}, false
			}
			if seg.index >= len(cur.Items) {
				return match{}, false
			}
			item := cur.Items[seg.index]
			if last {
				m.removeItem = item
				return m, true
			}
			m.chain = append(m.chain, item)
			cur = item
		}
	}
	return match{}, false
}

func findKey(m *record.Node, key string) int {
	for i, pair := range m.Pairs {
		if pair.Key.Kind == record.KString && pair.Key.Str == key {
			return i
		}
	}
	return -1
}

// Remove matches every compiled pattern against root and, if at least one
// matched, returns Modified=true and a freshly built buffer with every
// matched subtree excised. If nothing matched it returns Modified=false and
// does not touch the builder at all, satisfying the "unmodified passthrough
// does not allocate" property: the caller can keep using root.Raw as-is.
func (m *Matcher) Remove(root *record.Node) (modifiedOut bool, out []byte, err error) {
	if root.Kind != record.KMap {
		return false, nil, record.ErrBadRecord
	}
	if len(root.Pairs) == 0 || len(m.patterns) == 0 {
		return false, nil, nil
	}

	var matches []match
	for _, p := range m.patterns {
		if mt, ok := resolve(root, p); ok {
			matches = append(matches, mt)
		}
	}
	if len(matches) == 0 {
		return false, nil, nil
	}

	onPath := make(map[*record.Node]bool, len(matches)*2)
	removedKeys := make(map[*record.Node]bool)
	removedItems := make(map[*record.Node]bool)
	for _, mt := range matches {
		for _, n := range mt.chain {
			onPath[n] = true
		}
		if mt.removeKey != nil {
			removedKeys[mt.removeKey] = true
		}
		if mt.removeItem != nil {
			removedItems[mt.removeItem] = true
		}
	}

	b := record.NewBuilder()
	if err := rewrite(root, onPath, removedKeys, removedItems, b); err != nil {
		return false, nil, err
	}
	return true, b.Bytes(), nil
}

// rewrite recursively rebuilds any node on a match's path, copying every
// subtree not on that path back out verbatim via its Raw bytes. This is the
// accessor_sub_pack equivalent: it never re-encodes a leaf it isn't
// removing, and it reconstructs every intermediate container with a
// corrected element count via the C1 builder.
func rewrite(n *record.Node, onPath map[*record.Node]bool, removedKeys, removedItems map[*record.Node]bool, b *record.Builder) error {
	if !onPath[n] {
		b.PutRaw(n.Raw)
		return nil
	}

	switch n.Kind {
	case record.KMap:
		c := b.OpenMap()
		for _, pair := range n.Pairs {
			if removedKeys[pair.Key] {
				continue
			}
			c.Entry()
			b.PutRaw(pair.Key.Raw)
			if err := rewrite(pair.Val, onPath, removedKeys, removedItems, b); err != nil {
				return err
			}
		}
		return c.Close()
	case record.KArray:
		c := b.OpenArray()
		for _, item := range n.Items {
			if removedItems[item] {
				continue
			}
			c.Entry()
			if err := rewrite(item, onPath, removedKeys, removedItems, b); err != nil {
				return err
			}
		}
		return c.Close()
	default:
		// A leaf can never be "on path" on its own (only its containing
		// map/array is), but fall back to a verbatim copy defensively.
		b.PutRaw(n.Raw)
		return nil
	}
}

// Patterns returns the compiled pattern strings, for diagnostics/logging.
func (m *Matcher) Patterns() []string {
	out := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		out[i] = p.String()
	}
	return out
}
