// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"errors"
	"fmt"
)

// Issuance errors.
var (
	ErrInvalidTTL               = errors.New("credential: ttl must be at least one second")
	ErrInvalidPermissionPattern = errors.New("credential: invalid permission pattern")
)

// Verification errors. ErrMalformedCredential is also returned by
// Issue for a missing subject or a bad subject key.
var (
	ErrMalformedCredential = errors.New("credential: malformed credential")
	ErrSignatureInvalid    = errors.New("credential: signature invalid")
	ErrNotYetValid         = errors.New("credential: not yet valid")
	ErrExpired             = errors.New("credential: expired")
	ErrRevoked             = errors.New("credential: revoked")
)

// VerificationError is returned by every verification failure. Use
// errors.Is with the sentinel errors to check the reason:
//
//	var verificationErr *credential.VerificationError
//	if errors.As(err, &verificationErr) && errors.Is(err, credential.ErrExpired) { ... }
type VerificationError struct {
	// Reason is one of the verification sentinel errors.
	Reason error

	// Detail says what specifically failed. May be empty.
	Detail string
}

func (e *VerificationError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return e.Reason.Error() + ": " + e.Detail
}

func (e *VerificationError) Unwrap() error { return e.Reason }

func verificationFailure(reason error, format string, args ...any) error {
	return &VerificationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
