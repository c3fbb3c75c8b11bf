// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/scopeguard/lib/subject"
)

// Operation is the kind of request being authorized.
type Operation int

const (
	// Publish sends a message to a literal topic.
	Publish Operation = iota + 1

	// Subscribe receives messages matching a topic or pattern.
	Subscribe
)

// String returns "publish" or "subscribe".
func (o Operation) String() string {
	switch o {
	case Publish:
		return "publish"
	case Subscribe:
		return "subscribe"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// ParseOperation accepts "publish"/"pub" and "subscribe"/"sub".
func ParseOperation(name string) (Operation, error) {
	switch strings.ToLower(name) {
	case "publish", "pub":
		return Publish, nil
	case "subscribe", "sub":
		return Subscribe, nil
	default:
		return 0, fmt.Errorf("unknown operation %q (want publish or subscribe)", name)
	}
}

// Rules is one operation's allow and deny pattern lists.
type Rules struct {
	Allow []string `json:"allow,omitempty" yaml:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty" yaml:"deny,omitempty"`
}

// Set is the permission set bound to one identity by a credential.
type Set struct {
	Publish   Rules `json:"pub" yaml:"pub"`
	Subscribe Rules `json:"sub" yaml:"sub"`
}

// Rules returns the rules for operation, or empty Rules for an
// unknown operation.
func (s Set) Rules(operation Operation) Rules {
	switch operation {
	case Publish:
		return s.Publish
	case Subscribe:
		return s.Subscribe
	default:
		return Rules{}
	}
}

// Clone returns a deep copy with empty lists normalized to nil.
func (s Set) Clone() Set {
	return Set{Publish: s.Publish.clone(), Subscribe: s.Subscribe.clone()}
}

func (r Rules) clone() Rules {
	return Rules{Allow: cloneList(r.Allow), Deny: cloneList(r.Deny)}
}

func cloneList(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	return append([]string(nil), list...)
}

// IsEmpty reports whether the set grants nothing and denies nothing.
func (s Set) IsEmpty() bool {
	return len(s.Publish.Allow) == 0 && len(s.Publish.Deny) == 0 &&
		len(s.Subscribe.Allow) == 0 && len(s.Subscribe.Deny) == 0
}

// Validate reports every malformed pattern in the set. Each error
// names the list and index, and wraps subject.ErrMalformedPattern.
func (s Set) Validate() error {
	var errs []error
	check := func(operation Operation, list string, patterns []string) {
		for index, pattern := range patterns {
			if _, err := subject.Parse(pattern); err != nil {
				errs = append(errs, fmt.Errorf("%s.%s[%d]: %w", operation, list, index, err))
			}
		}
	}
	check(Publish, "allow", s.Publish.Allow)
	check(Publish, "deny", s.Publish.Deny)
	check(Subscribe, "allow", s.Subscribe.Allow)
	check(Subscribe, "deny", s.Subscribe.Deny)
	return errors.Join(errs...)
}
