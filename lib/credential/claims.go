// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/scopeguard/lib/codec"
	"github.com/bureau-foundation/scopeguard/lib/permission"
)

// Claims is the signed body of a credential.
type Claims struct {
	// ID is derived from the other fields; see the package docs.
	ID string `cbor:"1,keyasint,omitempty"`

	// Name is informational only (e.g., "user-john-doe").
	Name string `cbor:"2,keyasint,omitempty"`

	// Subject is the identity the credential authorizes.
	Subject string `cbor:"3,keyasint"`

	// SubjectKey is the subject keypair's public ID. A connecting
	// client proves possession of the matching seed.
	SubjectKey string `cbor:"4,keyasint"`

	// Issuer is the issuer keypair's public ID.
	Issuer string `cbor:"5,keyasint"`

	Permissions permission.Set `cbor:"6,keyasint"`

	// IssuedAt and ExpiresAt are Unix seconds. The credential is
	// valid for IssuedAt <= now < ExpiresAt.
	IssuedAt  int64 `cbor:"7,keyasint"`
	ExpiresAt int64 `cbor:"8,keyasint"`
}

// Credential is a signed Claims. Credentials are immutable after
// issuance; nothing in this package modifies one.
type Credential struct {
	Claims    Claims
	Signature []byte
}

// Expiry returns ExpiresAt as a time.
func (c *Claims) Expiry() time.Time { return time.Unix(c.ExpiresAt, 0) }

// canonicalPayload is the byte sequence the issuer signs.
func canonicalPayload(claims *Claims) ([]byte, error) {
	payload, err := codec.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("credential: encoding claims: %w", err)
	}
	return payload, nil
}

// idDomainKey separates credential ID hashes from any other BLAKE3
// keyed hash of the same bytes.
var idDomainKey = [32]byte{
	's', 'c', 'o', 'p', 'e', 'g', 'u', 'a', 'r', 'd', '.', 'c', 'r', 'e', 'd', 'e',
	'n', 't', 'i', 'a', 'l', '.', 'i', 'd', 0, 0, 0, 0, 0, 0, 0, 0,
}

// idLength is the number of hash bytes kept in an ID.
const idLength = 16

// computeID hashes the canonical encoding of claims with ID cleared.
func computeID(claims Claims) (string, error) {
	claims.ID = ""
	payload, err := canonicalPayload(&claims)
	if err != nil {
		return "", err
	}
	hasher, err := blake3.NewKeyed(idDomainKey[:])
	if err != nil {
		return "", fmt.Errorf("credential: initializing BLAKE3: %w", err)
	}
	hasher.Write(payload)
	return hex.EncodeToString(hasher.Sum(nil)[:idLength]), nil
}
