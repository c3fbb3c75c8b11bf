// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/scopeguard/lib/permission"
)

var (
	// ErrAuthorizationViolation means the broker rejected the
	// connect. The error wraps the verification failure, so
	// errors.Is(err, credential.ErrExpired) works through it.
	ErrAuthorizationViolation = errors.New("transport: authorization violation")

	// ErrOperationTimeout means a subscription saw no message within
	// its timeout.
	ErrOperationTimeout = errors.New("transport: operation timed out")

	// ErrSubscriptionClosed is returned by Next after the subscription
	// has ended.
	ErrSubscriptionClosed = errors.New("transport: subscription closed")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("transport: session closed")

	// ErrTransportFailure wraps I/O and protocol failures on the link.
	ErrTransportFailure = errors.New("transport: transport failure")

	// ErrInvalidRequest means the peer sent a request the protocol
	// does not allow.
	ErrInvalidRequest = errors.New("transport: invalid request")
)

// PermissionViolationError is a denied publish or subscribe.
type PermissionViolationError struct {
	Operation permission.Operation
	Topic     string

	// Rule is the deny rule that matched, empty for an implicit deny.
	Rule   string
	Reason permission.Reason

	// Local is true when the session harness denied the operation
	// without forwarding it to the broker.
	Local bool
}

func (e *PermissionViolationError) Error() string {
	source := "broker"
	if e.Local {
		source = "local policy"
	}
	message := fmt.Sprintf("transport: %s denied %s on %q: %s", source, e.Operation, e.Topic, e.Reason)
	if e.Rule != "" {
		message += fmt.Sprintf(" (rule %q)", e.Rule)
	}
	return message
}

// Violation builds the error for a denied decision.
func Violation(decision permission.Decision, local bool) *PermissionViolationError {
	return &PermissionViolationError{
		Operation: decision.Operation,
		Topic:     decision.Topic,
		Rule:      decision.MatchedRule,
		Reason:    decision.Reason,
		Local:     local,
	}
}

// IsPermissionViolation reports whether err is or wraps a
// *PermissionViolationError.
func IsPermissionViolation(err error) bool {
	var violation *PermissionViolationError
	return errors.As(err, &violation)
}

func transportFailure(action string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransportFailure, action, err)
}
