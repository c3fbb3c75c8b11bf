// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/scopeguard/lib/credential"
	"github.com/bureau-foundation/scopeguard/lib/permission"
	"github.com/bureau-foundation/scopeguard/transport"
)

// Expect is the anticipated result of an attempt.
type Expect int

const (
	ExpectAllowed Expect = iota
	ExpectDenied
	ExpectTimeout
)

func (e Expect) String() string {
	switch e {
	case ExpectAllowed:
		return "allowed"
	case ExpectDenied:
		return "denied"
	case ExpectTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("expect(%d)", int(e))
	}
}

// ParseExpect parses "allowed", "denied", or "timeout".
func ParseExpect(name string) (Expect, error) {
	switch name {
	case "allowed", "allow":
		return ExpectAllowed, nil
	case "denied", "deny":
		return ExpectDenied, nil
	case "timeout":
		return ExpectTimeout, nil
	default:
		return 0, fmt.Errorf("probe: unknown expectation %q (want allowed, denied, or timeout)", name)
	}
}

// Expectation is an attempt with its anticipated result.
type Expectation struct {
	Attempt
	Expect Expect
}

// Result records one expectation's run.
type Result struct {
	Expectation Expectation
	Outcome     *Outcome

	// Observed is what actually happened.
	Observed Expect

	// Met is true when Observed matches the expectation.
	Met bool
}

// Report is the output of Run.
type Report struct {
	Credential *credential.Credential
	Results    []Result
}

// AllMet reports whether every expectation was met.
func (r *Report) AllMet() bool {
	for _, result := range r.Results {
		if !result.Met {
			return false
		}
	}
	return true
}

// Run issues a credential, connects, and runs each expectation in
// order. A permission violation on an ExpectDenied attempt and a
// timeout on an ExpectTimeout attempt are the anticipated results and
// are not returned. Any other error stops the run and is returned
// unchanged alongside the partial report. An attempt that succeeds
// where a denial or timeout was expected is recorded as unmet and the
// run continues.
func Run(ctx context.Context, config Config, expectations []Expectation) (*Report, error) {
	harness, err := New(config)
	if err != nil {
		return nil, err
	}
	defer harness.Close()

	report := &Report{}
	if report.Credential, err = harness.Issue(); err != nil {
		return report, err
	}
	if err := harness.Connect(ctx); err != nil {
		return report, err
	}

	logger := harness.logger
	for _, expectation := range expectations {
		logger.Info("attempting operation",
			"operation", expectation.Operation, "topic", expectation.Topic, "expect", expectation.Expect)

		outcome, err := harness.Attempt(ctx, expectation.Attempt)
		result := Result{Expectation: expectation, Outcome: outcome}
		switch {
		case err == nil:
			result.Observed = ExpectAllowed
		case errors.Is(err, transport.ErrOperationTimeout) && !errors.Is(err, ErrEnforcementMismatch):
			result.Observed = ExpectTimeout
		case transport.IsPermissionViolation(err) && !errors.Is(err, ErrEnforcementMismatch):
			result.Observed = ExpectDenied
		default:
			return report, err
		}
		result.Met = result.Observed == expectation.Expect
		report.Results = append(report.Results, result)

		if result.Met {
			switch result.Observed {
			case ExpectDenied:
				logger.Info("expected permission violation", "topic", expectation.Topic)
			case ExpectTimeout:
				logger.Info("expected timeout", "topic", expectation.Topic)
			default:
				logger.Info("operation allowed as expected", "topic", expectation.Topic)
			}
			continue
		}
		if err != nil {
			return report, err
		}
		logger.Warn("expectation not met",
			"topic", expectation.Topic, "expect", expectation.Expect, "observed", result.Observed)
	}
	return report, nil
}

// DefaultPermissions scopes identity to its own subtree for both
// publish and subscribe.
func DefaultPermissions(identity string) permission.Set {
	own := []string{"users." + identity + ".>"}
	return permission.Set{
		Publish:   permission.Rules{Allow: own},
		Subscribe: permission.Rules{Allow: append([]string(nil), own...)},
	}
}

// DefaultScenario is the canonical probe for identity: a wildcard
// subscription across every user must be denied, and a subscription
// to the identity's own notifications must be accepted and time out
// after one second with no traffic.
func DefaultScenario(identity string) []Expectation {
	return []Expectation{
		{
			Attempt: Attempt{Operation: permission.Subscribe, Topic: "users.>"},
			Expect:  ExpectDenied,
		},
		{
			Attempt: Attempt{Operation: permission.Subscribe, Topic: "users." + identity + ".notifications", Timeout: time.Second},
			Expect:  ExpectTimeout,
		},
	}
}
