// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"path"
	"regexp"

	"github.com/pkg/errors"
)

// Route is the routing filter applied to a task's tag: a literal glob or a
// compiled regex, never both (the design notes prefer a tagged variant over
// two nullable fields, so Route enforces the either/or instead of exposing
// both fields for the instance to potentially set simultaneously).
type Route struct {
	glob  string
	regex *regexp.Regexp
}

// NewGlobRoute builds a Route that matches the literal glob pattern.
func NewGlobRoute(glob string) Route {
	return Route{glob: glob}
}

// NewRegexRoute builds a Route that matches a compiled regex.
func NewRegexRoute(re *regexp.Regexp) Route {
	return Route{regex: re}
}

// Matches reports whether tag is routed to an instance carrying this Route.
// A Route with neither a glob nor a regex matches everything (the spec's "a
// missing match matches everything").
func (r Route) Matches(tag string) bool {
	if r.regex != nil {
		return r.regex.MatchString(tag)
	}
	if r.glob == "" {
		return true
	}
	ok, err := path.Match(r.glob, tag)
	return err == nil && ok
}

// NewRoute builds a Route from raw `match`/`match_regex` configuration
// properties, enforcing that at most one is set.
func NewRoute(matchGlob, matchRegex string) (Route, error) {
	if matchGlob != "" && matchRegex != "" {
		return Route{}, errors.New("registry: match and match_regex are mutually exclusive")
	}
	if matchRegex != "" {
		re, err := regexp.Compile(matchRegex)
		if err != nil {
			return Route{}, errors.Wrap(err, "registry: invalid match_regex")
		}
		return NewRegexRoute(re), nil
	}
	return NewGlobRoute(matchGlob), nil
}
