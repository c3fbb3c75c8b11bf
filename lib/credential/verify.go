// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"time"

	"github.com/bureau-foundation/scopeguard/lib/permission"
)

// SignatureChecker verifies a signature against a public ID.
// *nkey.Provider satisfies it.
type SignatureChecker interface {
	Verify(publicID string, payload, signature []byte) bool
}

// Verifier checks credentials against a trusted issuer public ID.
// A Verifier is safe for concurrent use.
type Verifier struct {
	keys        SignatureChecker
	revocations *RevocationList
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithRevocations rejects credentials whose ID is on list with
// ErrRevoked.
func WithRevocations(list *RevocationList) VerifierOption {
	return func(v *Verifier) { v.revocations = list }
}

// NewVerifier returns a Verifier that checks signatures with keys.
func NewVerifier(keys SignatureChecker, options ...VerifierOption) *Verifier {
	verifier := &Verifier{keys: keys}
	for _, option := range options {
		option(verifier)
	}
	return verifier
}

// Verified is the result of a successful verification.
type Verified struct {
	Subject    string
	SubjectKey string

	// Permissions is the issued set as normalized by Issue: empty rule
	// lists are nil. It authorizes exactly what the issued set does.
	Permissions permission.Set
	ExpiresAt   time.Time

	// Claims is the full verified claim set.
	Claims Claims
}

// Verify checks credential against issuerPublicID at time now. Checks
// run in a fixed order: structure, issuer and signature, pattern
// validity and ID, validity window, revocation. The first failure is
// returned as a *VerificationError. The returned permissions are a
// copy the caller may modify.
func (v *Verifier) Verify(credential *Credential, issuerPublicID string, now time.Time) (*Verified, error) {
	if credential == nil {
		return nil, verificationFailure(ErrMalformedCredential, "nil credential")
	}
	claims := credential.Claims
	if claims.Subject == "" || claims.SubjectKey == "" || claims.Issuer == "" || claims.ID == "" {
		return nil, verificationFailure(ErrMalformedCredential, "missing required claim")
	}
	if claims.ExpiresAt <= claims.IssuedAt {
		return nil, verificationFailure(ErrMalformedCredential, "expires at %d is not after issued at %d", claims.ExpiresAt, claims.IssuedAt)
	}
	if len(credential.Signature) == 0 {
		return nil, verificationFailure(ErrMalformedCredential, "missing signature")
	}

	if claims.Issuer != issuerPublicID {
		return nil, verificationFailure(ErrSignatureInvalid, "issued by %s, trusted issuer is %s", claims.Issuer, issuerPublicID)
	}
	payload, err := canonicalPayload(&claims)
	if err != nil {
		return nil, verificationFailure(ErrMalformedCredential, "%v", err)
	}
	if !v.keys.Verify(issuerPublicID, payload, credential.Signature) {
		return nil, verificationFailure(ErrSignatureInvalid, "signature does not match claims")
	}

	if err := claims.Permissions.Validate(); err != nil {
		return nil, verificationFailure(ErrMalformedCredential, "%v", err)
	}
	id, err := computeID(claims)
	if err != nil {
		return nil, verificationFailure(ErrMalformedCredential, "%v", err)
	}
	if id != claims.ID {
		return nil, verificationFailure(ErrMalformedCredential, "id %s does not match claims", claims.ID)
	}

	unix := now.Unix()
	if unix < claims.IssuedAt {
		return nil, verificationFailure(ErrNotYetValid, "issued at %d, now %d", claims.IssuedAt, unix)
	}
	if unix >= claims.ExpiresAt {
		return nil, verificationFailure(ErrExpired, "expired at %d, now %d", claims.ExpiresAt, unix)
	}

	if v.revocations != nil && v.revocations.IsRevoked(claims.ID) {
		return nil, verificationFailure(ErrRevoked, "credential %s", claims.ID)
	}

	return &Verified{
		Subject:     claims.Subject,
		SubjectKey:  claims.SubjectKey,
		Permissions: claims.Permissions.Clone(),
		ExpiresAt:   claims.Expiry(),
		Claims:      claims,
	}, nil
}
