// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/scopeguard/lib/credential"
	"github.com/bureau-foundation/scopeguard/lib/nkey"
)

// KeyAuthenticator presents a credential token and signs nonces with
// a subject keypair.
type KeyAuthenticator struct {
	token string
	pair  *nkey.KeyPair
	owned bool
}

// Compile-time interface check.
var _ Authenticator = (*KeyAuthenticator)(nil)

// NewAuthenticator returns an authenticator for token signing with
// pair. The caller keeps ownership of pair.
func NewAuthenticator(token string, pair *nkey.KeyPair) *KeyAuthenticator {
	return &KeyAuthenticator{token: token, pair: pair}
}

// NewEnvelopeAuthenticator parses a credential envelope (see
// credential.FormatEnvelope) and loads its seed with keys. Close
// releases the loaded keypair.
func NewEnvelopeAuthenticator(envelope []byte, keys *nkey.Provider) (*KeyAuthenticator, error) {
	parsed, err := credential.ParseEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	defer parsed.Close()
	if parsed.Seed == nil {
		return nil, fmt.Errorf("%w: envelope carries no seed", credential.ErrMalformedEnvelope)
	}
	if keys == nil {
		keys = nkey.Default()
	}
	pair, err := keys.FromSeed(parsed.Seed.Bytes())
	if err != nil {
		return nil, fmt.Errorf("transport: loading envelope seed: %w", err)
	}
	if pair.Kind() != nkey.KindSubject {
		pair.Close()
		return nil, fmt.Errorf("transport: envelope seed is a %s key, want %s", pair.Kind(), nkey.KindSubject)
	}
	authenticator := NewAuthenticator(parsed.Token, pair)
	authenticator.owned = true
	return authenticator, nil
}

func (a *KeyAuthenticator) Credential() string { return a.token }

func (a *KeyAuthenticator) SignNonce(nonce []byte) ([]byte, error) {
	if len(nonce) == 0 {
		return nil, errors.New("transport: empty nonce")
	}
	return a.pair.Sign(nonce)
}

// PublicID returns the subject public ID the authenticator signs as.
func (a *KeyAuthenticator) PublicID() string { return a.pair.PublicID() }

// Close releases the keypair if the authenticator loaded it.
func (a *KeyAuthenticator) Close() error {
	if !a.owned {
		return nil
	}
	return a.pair.Close()
}
