// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/scopeguard/lib/clock"
	"github.com/bureau-foundation/scopeguard/lib/nkey"
	"github.com/bureau-foundation/scopeguard/lib/permission"
)

// Signer is the issuer capability: a public ID and the ability to sign
// with the matching private key. *nkey.KeyPair satisfies it.
type Signer interface {
	PublicID() string
	Sign(payload []byte) ([]byte, error)
}

// IssueRequest describes one credential.
type IssueRequest struct {
	// Subject is the identity being authorized. Required.
	Subject string

	// Name is an informational display name. Optional.
	Name string

	// SubjectKey is the subject keypair's public ID. Required.
	SubjectKey string

	Permissions permission.Set

	// TTL is the validity period, truncated to whole seconds. Must be
	// at least one second.
	TTL time.Duration
}

// Issuer issues credentials signed by one issuer key.
type Issuer struct {
	signer Signer
	clock  clock.Clock
}

// NewIssuer returns an Issuer for signer. A nil clock uses clock.Real.
func NewIssuer(signer Signer, source clock.Clock) *Issuer {
	if source == nil {
		source = clock.Real()
	}
	return &Issuer{signer: signer, clock: source}
}

// PublicID returns the issuer key's public ID, the value verifiers
// must be configured to trust.
func (i *Issuer) PublicID() string { return i.signer.PublicID() }

// Issue validates request and returns a signed credential issued now.
func (i *Issuer) Issue(request IssueRequest) (*Credential, error) {
	credential, err := Issue(request.Subject, i.signer, request.SubjectKey, request.Permissions,
		int64(request.TTL/time.Second), i.clock.Now())
	if err != nil {
		return nil, err
	}
	if request.Name == "" {
		return credential, nil
	}

	// Name participates in the ID and the signature, so re-sign.
	claims := credential.Claims
	claims.Name = request.Name
	return sign(i.signer, claims)
}

// Issue builds and signs a credential for subjectIdentity with
// issuedAt = now and expiresAt = now + ttlSeconds.
func Issue(subjectIdentity string, issuer Signer, subjectKey string, permissions permission.Set, ttlSeconds int64, now time.Time) (*Credential, error) {
	if ttlSeconds <= 0 {
		return nil, fmt.Errorf("%w: got %ds", ErrInvalidTTL, ttlSeconds)
	}
	if subjectIdentity == "" {
		return nil, fmt.Errorf("%w: subject identity is empty", ErrMalformedCredential)
	}
	if !nkey.ValidPublicID(subjectKey, nkey.KindSubject) {
		return nil, fmt.Errorf("%w: %q is not a subject public ID", ErrMalformedCredential, subjectKey)
	}
	if !nkey.ValidPublicID(issuer.PublicID(), nkey.KindIssuer) {
		return nil, fmt.Errorf("%w: signer %q is not an issuer key", ErrMalformedCredential, issuer.PublicID())
	}
	if err := permissions.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPermissionPattern, err)
	}

	issuedAt := now.Unix()
	return sign(issuer, Claims{
		Subject:     subjectIdentity,
		SubjectKey:  subjectKey,
		Issuer:      issuer.PublicID(),
		Permissions: permissions.Clone(),
		IssuedAt:    issuedAt,
		ExpiresAt:   issuedAt + ttlSeconds,
	})
}

// sign fills in the ID and signs claims.
func sign(issuer Signer, claims Claims) (*Credential, error) {
	id, err := computeID(claims)
	if err != nil {
		return nil, err
	}
	claims.ID = id

	payload, err := canonicalPayload(&claims)
	if err != nil {
		return nil, err
	}
	signature, err := issuer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("credential: signing claims: %w", err)
	}
	return &Credential{Claims: claims, Signature: signature}, nil
}
