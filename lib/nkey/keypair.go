// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nkey

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bureau-foundation/scopeguard/lib/secret"
)

// ErrKeyPairClosed is returned by operations on a closed KeyPair.
var ErrKeyPairClosed = errors.New("nkey: keypair is closed")

// Provider creates keypairs and verifies signatures for one Backend.
// A Provider holds no mutable state and is safe for concurrent use.
type Provider struct {
	backend Backend
	random  io.Reader
}

// NewProvider returns a Provider for backend drawing randomness from
// random. A nil random uses crypto/rand.
func NewProvider(backend Backend, random io.Reader) *Provider {
	if random == nil {
		random = rand.Reader
	}
	return &Provider{backend: backend, random: random}
}

// Default returns an Ed25519 Provider backed by crypto/rand.
func Default() *Provider {
	return NewProvider(Ed25519(), rand.Reader)
}

// Generate creates a fresh keypair of the given kind.
func (p *Provider) Generate(kind Kind) (*KeyPair, error) {
	if _, err := kind.prefix(); err != nil {
		return nil, err
	}
	seed, err := p.backend.GenerateSeed(p.random)
	if err != nil {
		return nil, err
	}
	return p.newKeyPair(kind, seed)
}

// FromSeed reconstructs a keypair from an encoded seed as produced by
// KeyPair.EncodedSeed. encoded is not modified.
func (p *Provider) FromSeed(encoded []byte) (*KeyPair, error) {
	kind, seed, err := decodeSeed(encoded)
	if err != nil {
		return nil, err
	}
	return p.newKeyPair(kind, seed)
}

// newKeyPair takes ownership of seed and zeroes it.
func (p *Provider) newKeyPair(kind Kind, seed []byte) (*KeyPair, error) {
	defer secret.Zero(seed)

	publicKey, err := p.backend.PublicKey(seed)
	if err != nil {
		return nil, err
	}
	publicID, err := encodePublicID(kind, publicKey)
	if err != nil {
		return nil, err
	}
	buffer, err := secret.NewFromBytes(seed)
	if err != nil {
		return nil, fmt.Errorf("nkey: protecting seed: %w", err)
	}

	return &KeyPair{
		provider:  p,
		kind:      kind,
		publicKey: publicKey,
		publicID:  publicID,
		seed:      buffer,
	}, nil
}

// Sign signs payload with pair's private seed.
func (p *Provider) Sign(pair *KeyPair, payload []byte) ([]byte, error) {
	return pair.Sign(payload)
}

// Verify reports whether signature is valid over payload for the key
// named by publicID. Returns false for any malformed input.
func (p *Provider) Verify(publicID string, payload, signature []byte) bool {
	_, publicKey, err := ParsePublicID(publicID)
	if err != nil {
		return false
	}
	return p.backend.Verify(publicKey, payload, signature)
}

// KeyPair is a public ID plus the private seed behind it. The seed is
// owned exclusively by the KeyPair; call Close to release it.
type KeyPair struct {
	provider  *Provider
	kind      Kind
	publicKey []byte
	publicID  string

	mu     sync.Mutex
	seed   *secret.Buffer
	closed bool
}

// Kind returns the keypair's kind.
func (k *KeyPair) Kind() Kind { return k.kind }

// PublicID returns the printable public identifier.
func (k *KeyPair) PublicID() string { return k.publicID }

// PublicKey returns a copy of the raw public key.
func (k *KeyPair) PublicKey() []byte {
	return append([]byte(nil), k.publicKey...)
}

// Sign signs payload with the private seed.
func (k *KeyPair) Sign(payload []byte) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, ErrKeyPairClosed
	}
	return k.provider.backend.Sign(k.seed.Bytes(), payload)
}

// EncodedSeed returns the printable seed in a new secret Buffer owned
// by the caller.
func (k *KeyPair) EncodedSeed() (*secret.Buffer, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, ErrKeyPairClosed
	}
	encoded, err := encodeSeed(k.kind, k.seed.Bytes())
	if err != nil {
		return nil, err
	}
	return secret.NewFromBytes(encoded)
}

// Close releases the seed. Close is idempotent.
func (k *KeyPair) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.seed.Close()
}
