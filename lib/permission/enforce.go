// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"fmt"

	"github.com/bureau-foundation/scopeguard/lib/subject"
)

// Reason explains a Decision.
type Reason int

const (
	// ReasonNoMatchingAllow means no allow rule matched (implicit deny).
	ReasonNoMatchingAllow Reason = iota

	// ReasonExplicitAllow means an allow rule matched and no deny did.
	ReasonExplicitAllow

	// ReasonExplicitDeny means a deny rule matched.
	ReasonExplicitDeny

	// ReasonInvalidTopic means the requested topic was malformed, or
	// was a wildcard pattern on a publish.
	ReasonInvalidTopic

	// ReasonMalformedRule means a deny rule could not be parsed, which
	// denies every request for that operation.
	ReasonMalformedRule

	// ReasonUnknownOperation means the operation was neither publish
	// nor subscribe.
	ReasonUnknownOperation
)

// String returns a human-readable reason.
func (r Reason) String() string {
	switch r {
	case ReasonNoMatchingAllow:
		return "no matching allow rule"
	case ReasonExplicitAllow:
		return "allow rule matched"
	case ReasonExplicitDeny:
		return "explicit deny"
	case ReasonInvalidTopic:
		return "invalid topic"
	case ReasonMalformedRule:
		return "malformed deny rule"
	case ReasonUnknownOperation:
		return "unknown operation"
	default:
		return "unknown"
	}
}

// Decision is the outcome of authorizing one request.
type Decision struct {
	Operation Operation
	Topic     string
	Allowed   bool

	// MatchedRule is the pattern that decided the outcome. Empty for
	// implicit denials and invalid requests.
	MatchedRule string

	Reason Reason
}

// String formats the decision for logs and CLI output.
func (d Decision) String() string {
	verdict := "denied"
	if d.Allowed {
		verdict = "allowed"
	}
	if d.MatchedRule != "" {
		return fmt.Sprintf("%s %q %s (%s: %q)", d.Operation, d.Topic, verdict, d.Reason, d.MatchedRule)
	}
	return fmt.Sprintf("%s %q %s (%s)", d.Operation, d.Topic, verdict, d.Reason)
}

// Policy is a Set with its patterns parsed. Policies are immutable and
// safe for concurrent use.
type Policy struct {
	publish   compiledRules
	subscribe compiledRules
}

type compiledRules struct {
	allow []subject.Pattern
	deny  []subject.Pattern

	// malformedDeny is the first deny rule that failed to parse.
	malformedDeny string
}

// Compile parses every pattern in set, failing if any is malformed.
func Compile(set Set) (*Policy, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return compile(set), nil
}

func compile(set Set) *Policy {
	return &Policy{
		publish:   compileRules(set.Publish),
		subscribe: compileRules(set.Subscribe),
	}
}

func compileRules(rules Rules) compiledRules {
	var compiled compiledRules
	for _, pattern := range rules.Deny {
		parsed, err := subject.Parse(pattern)
		if err != nil {
			if compiled.malformedDeny == "" {
				compiled.malformedDeny = pattern
			}
			continue
		}
		compiled.deny = append(compiled.deny, parsed)
	}
	for _, pattern := range rules.Allow {
		if parsed, err := subject.Parse(pattern); err == nil {
			compiled.allow = append(compiled.allow, parsed)
		}
	}
	return compiled
}

// Authorize evaluates one request against set. It never fails; see
// the package documentation for how malformed input is treated.
func Authorize(set Set, operation Operation, topic string) Decision {
	return compile(set).Authorize(operation, topic)
}

// Authorize evaluates one request against the policy.
func (p *Policy) Authorize(operation Operation, topic string) Decision {
	decision := Decision{Operation: operation, Topic: topic}

	var rules *compiledRules
	switch operation {
	case Publish:
		rules = &p.publish
	case Subscribe:
		rules = &p.subscribe
	default:
		decision.Reason = ReasonUnknownOperation
		return decision
	}

	requested, err := subject.Parse(topic)
	if err != nil || (operation == Publish && !requested.IsLiteral()) {
		decision.Reason = ReasonInvalidTopic
		return decision
	}

	if rules.malformedDeny != "" {
		decision.Reason = ReasonMalformedRule
		decision.MatchedRule = rules.malformedDeny
		return decision
	}

	for _, deny := range rules.deny {
		if subject.Overlaps(deny, requested) {
			decision.Reason = ReasonExplicitDeny
			decision.MatchedRule = deny.String()
			return decision
		}
	}

	for _, allow := range rules.allow {
		if subject.Covers(allow, requested) {
			decision.Allowed = true
			decision.Reason = ReasonExplicitAllow
			decision.MatchedRule = allow.String()
			return decision
		}
	}

	decision.Reason = ReasonNoMatchingAllow
	return decision
}
