// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package subject

// Match reports whether the literal topic matches pattern. Returns
// false if either is malformed or if topic contains wildcards.
func Match(pattern, topic string) bool {
	parsed, err := Parse(pattern)
	if err != nil {
		return false
	}
	return parsed.Match(topic)
}

// Match reports whether the literal topic matches p.
func (p Pattern) Match(topic string) bool {
	if p.IsZero() {
		return false
	}
	parsed, err := Parse(topic)
	if err != nil || !parsed.IsLiteral() {
		return false
	}
	return matchSegments(p.segments, parsed.segments)
}

func matchSegments(pattern, topic []string) bool {
	for index, segment := range pattern {
		if segment == FullWildcard {
			return len(topic) > index
		}
		if index >= len(topic) {
			return false
		}
		if segment != SingleWildcard && segment != topic[index] {
			return false
		}
	}
	return len(topic) == len(pattern)
}

// Covers reports whether every topic matched by inner is also matched
// by outer. A pattern covers itself. Covers on literal patterns is
// equality; Covers(outer, literal) is outer.Match(literal).
func Covers(outer, inner Pattern) bool {
	if outer.IsZero() || inner.IsZero() {
		return false
	}
	for index, segment := range outer.segments {
		if segment == FullWildcard {
			return len(inner.segments) > index
		}
		if index >= len(inner.segments) {
			return false
		}
		candidate := inner.segments[index]
		switch {
		case candidate == FullWildcard:
			// inner reaches arbitrarily deep; outer stops here.
			return false
		case segment == SingleWildcard:
		case candidate == SingleWildcard:
			return false
		case segment != candidate:
			return false
		}
	}
	return len(inner.segments) == len(outer.segments)
}

// Overlaps reports whether at least one topic is matched by both a
// and b.
func Overlaps(a, b Pattern) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	for index := 0; ; index++ {
		aDone := index >= len(a.segments)
		bDone := index >= len(b.segments)
		if aDone || bDone {
			return aDone && bDone
		}
		left, right := a.segments[index], b.segments[index]
		if left == FullWildcard || right == FullWildcard {
			return true
		}
		if left == SingleWildcard || right == SingleWildcard {
			continue
		}
		if left != right {
			return false
		}
	}
}
