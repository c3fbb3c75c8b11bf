// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package subject

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	// Delimiter separates topic segments.
	Delimiter = "."

	// SingleWildcard matches exactly one segment.
	SingleWildcard = "*"

	// FullWildcard matches one or more trailing segments.
	FullWildcard = ">"
)

// ErrMalformedPattern is wrapped by every Parse failure.
var ErrMalformedPattern = errors.New("subject: malformed pattern")

// Pattern is a parsed topic pattern. The zero Pattern matches nothing.
// Patterns are immutable; share them freely across goroutines.
type Pattern struct {
	raw      string
	segments []string
}

// Parse validates pattern and splits it into segments.
func Parse(pattern string) (Pattern, error) {
	if pattern == "" {
		return Pattern{}, fmt.Errorf("%w: empty pattern", ErrMalformedPattern)
	}

	segments := strings.Split(pattern, Delimiter)
	last := len(segments) - 1
	for index, segment := range segments {
		if segment == "" {
			return Pattern{}, fmt.Errorf("%w: %q has an empty segment at position %d", ErrMalformedPattern, pattern, index)
		}
		if strings.ContainsFunc(segment, unicode.IsSpace) {
			return Pattern{}, fmt.Errorf("%w: %q contains whitespace", ErrMalformedPattern, pattern)
		}
		if segment == FullWildcard && index != last {
			return Pattern{}, fmt.Errorf("%w: %q uses %q before the last segment", ErrMalformedPattern, pattern, FullWildcard)
		}
	}

	return Pattern{raw: pattern, segments: segments}, nil
}

// MustParse is like Parse but panics on error. For constants and tests.
func MustParse(pattern string) Pattern {
	parsed, err := Parse(pattern)
	if err != nil {
		panic(err)
	}
	return parsed
}

// IsWellFormed reports whether pattern parses.
func IsWellFormed(pattern string) bool {
	_, err := Parse(pattern)
	return err == nil
}

// ValidTopic reports whether topic is a well-formed pattern with no
// wildcard segments, i.e. something that can be published to.
func ValidTopic(topic string) bool {
	parsed, err := Parse(topic)
	return err == nil && parsed.IsLiteral()
}

// String returns the pattern as written.
func (p Pattern) String() string { return p.raw }

// IsZero reports whether p is the zero Pattern.
func (p Pattern) IsZero() bool { return len(p.segments) == 0 }

// IsLiteral reports whether p contains no wildcard segments.
func (p Pattern) IsLiteral() bool {
	if p.IsZero() {
		return false
	}
	for _, segment := range p.segments {
		if segment == SingleWildcard || segment == FullWildcard {
			return false
		}
	}
	return true
}
