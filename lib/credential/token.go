// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bureau-foundation/scopeguard/lib/codec"
)

// wireToken is the CBOR body of an encoded credential. Claims holds
// the claim bytes as produced by the issuer; the verifier does not
// trust them as the signed message and re-encodes after decoding.
type wireToken struct {
	Claims    codec.RawMessage `cbor:"1,keyasint"`
	Signature []byte           `cbor:"2,keyasint"`
}

// Encode renders credential as a base64url token without padding.
func Encode(credential *Credential) (string, error) {
	claims, err := canonicalPayload(&credential.Claims)
	if err != nil {
		return "", err
	}
	body, err := codec.Marshal(wireToken{Claims: claims, Signature: credential.Signature})
	if err != nil {
		return "", fmt.Errorf("credential: encoding token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(body), nil
}

// Decode parses a token produced by Encode. It checks structure only;
// call Verifier.Verify before trusting the result. Failures are
// *VerificationError values wrapping ErrMalformedCredential.
func Decode(token string) (*Credential, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, verificationFailure(ErrMalformedCredential, "empty token")
	}
	body, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, verificationFailure(ErrMalformedCredential, "token is not base64url: %v", err)
	}

	var wire wireToken
	if err := codec.Unmarshal(body, &wire); err != nil {
		return nil, verificationFailure(ErrMalformedCredential, "decoding token: %v", err)
	}
	if len(wire.Claims) == 0 || len(wire.Signature) == 0 {
		return nil, verificationFailure(ErrMalformedCredential, "token is missing claims or signature")
	}

	var claims Claims
	if err := codec.Unmarshal(wire.Claims, &claims); err != nil {
		return nil, verificationFailure(ErrMalformedCredential, "decoding claims: %v", err)
	}
	return &Credential{Claims: claims, Signature: wire.Signature}, nil
}
