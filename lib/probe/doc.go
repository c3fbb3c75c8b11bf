// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package probe drives one scoped identity through the full flow:
// issue a credential, connect to a broker with it, and attempt
// operations, recording what the local policy and the broker each
// decided.
//
// A [Harness] is a small state machine:
//
//	Idle ──Issue──▶ CredentialIssued ──Connect──▶ SessionEstablished
//	                                                   │
//	                               Attempt ◀──────────┘
//	                                  │
//	              OperationAllowed ◀──┴──▶ OperationDenied
//
// Connect may be repeated from any non-closed state once a credential
// exists; it fails with credential.ErrExpired once the credential's
// validity window has passed. Close, or a transport failure during an
// attempt, moves the harness to Closed.
//
// In [ModeProbeRemote] (the default) every operation is forwarded to
// the broker even when the local policy would deny it, and a
// disagreement is reported as [ErrEnforcementMismatch]. In
// [ModeEnforceLocal] a locally denied operation never leaves the
// process.
//
// [Run] executes a list of [Expectation] values against a fresh
// harness and treats expected denials and timeouts as success.
// [DefaultScenario] is the canonical john-doe probe.
package probe
