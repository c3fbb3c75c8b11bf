// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/scopeguard/lib/credential"
	"github.com/bureau-foundation/scopeguard/lib/permission"
)

// frameType identifies a stream frame.
type frameType uint8

const (
	frameHello frameType = iota + 1
	frameConnect
	frameResult
	framePublish
	frameSubscribe
	frameUnsubscribe
	frameDeliver
)

func (t frameType) String() string {
	switch t {
	case frameHello:
		return "hello"
	case frameConnect:
		return "connect"
	case frameResult:
		return "result"
	case framePublish:
		return "publish"
	case frameSubscribe:
		return "subscribe"
	case frameUnsubscribe:
		return "unsubscribe"
	case frameDeliver:
		return "deliver"
	default:
		return fmt.Sprintf("frame(%d)", uint8(t))
	}
}

// frame is every message on a stream connection, one CBOR item each.
// Which fields are set depends on Type.
type frame struct {
	Type frameType `cbor:"1,keyasint"`

	// Request correlates a result with the client frame it answers.
	Request uint64 `cbor:"2,keyasint,omitempty"`

	// Subscription is the client-chosen subscription ID on subscribe,
	// unsubscribe, and deliver.
	Subscription uint64 `cbor:"3,keyasint,omitempty"`

	Nonce      []byte `cbor:"4,keyasint,omitempty"`
	Credential string `cbor:"5,keyasint,omitempty"`
	Signature  []byte `cbor:"6,keyasint,omitempty"`

	// Topic is the publish topic, the subscribe pattern, or the
	// delivered message's topic.
	Topic string `cbor:"7,keyasint,omitempty"`
	Data  []byte `cbor:"8,keyasint,omitempty"`

	Error *wireError `cbor:"9,keyasint,omitempty"`
}

// Wire error codes.
const (
	codePermissionViolation    = "permission_violation"
	codeAuthorizationViolation = "authorization_violation"
	codeSessionClosed          = "session_closed"
	codeInvalidRequest         = "invalid_request"
)

type wireError struct {
	Code    string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint,omitempty"`

	// Permission violation detail.
	Operation permission.Operation `cbor:"3,keyasint,omitempty"`
	Topic     string               `cbor:"4,keyasint,omitempty"`
	Rule      string               `cbor:"5,keyasint,omitempty"`
	Reason    permission.Reason    `cbor:"6,keyasint,omitempty"`

	// Verification names the credential failure behind an
	// authorization violation.
	Verification string `cbor:"7,keyasint,omitempty"`
}

var verificationCodes = []struct {
	code   string
	reason error
}{
	{"malformed", credential.ErrMalformedCredential},
	{"signature_invalid", credential.ErrSignatureInvalid},
	{"not_yet_valid", credential.ErrNotYetValid},
	{"expired", credential.ErrExpired},
	{"revoked", credential.ErrRevoked},
}

// encodeError converts a session error into its wire form. Nil maps
// to nil.
func encodeError(err error) *wireError {
	if err == nil {
		return nil
	}
	var violation *PermissionViolationError
	switch {
	case errors.As(err, &violation):
		return &wireError{
			Code:      codePermissionViolation,
			Message:   err.Error(),
			Operation: violation.Operation,
			Topic:     violation.Topic,
			Rule:      violation.Rule,
			Reason:    violation.Reason,
		}
	case errors.Is(err, ErrAuthorizationViolation):
		encoded := &wireError{Code: codeAuthorizationViolation, Message: err.Error()}
		for _, candidate := range verificationCodes {
			if errors.Is(err, candidate.reason) {
				encoded.Verification = candidate.code
				break
			}
		}
		return encoded
	case errors.Is(err, ErrSessionClosed):
		return &wireError{Code: codeSessionClosed, Message: err.Error()}
	default:
		return &wireError{Code: codeInvalidRequest, Message: err.Error()}
	}
}

// decodeError converts a wire error back into the typed error the
// in-process broker would have returned.
func decodeError(encoded *wireError) error {
	if encoded == nil {
		return nil
	}
	switch encoded.Code {
	case codePermissionViolation:
		return &PermissionViolationError{
			Operation: encoded.Operation,
			Topic:     encoded.Topic,
			Rule:      encoded.Rule,
			Reason:    encoded.Reason,
		}
	case codeAuthorizationViolation:
		for _, candidate := range verificationCodes {
			if candidate.code == encoded.Verification {
				return fmt.Errorf("%w: %w", ErrAuthorizationViolation,
					&credential.VerificationError{Reason: candidate.reason, Detail: encoded.Message})
			}
		}
		return fmt.Errorf("%w: %s", ErrAuthorizationViolation, encoded.Message)
	case codeSessionClosed:
		return ErrSessionClosed
	default:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, encoded.Message)
	}
}
