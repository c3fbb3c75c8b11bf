// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nkey

import (
	"crypto/ed25519"
	"fmt"
	"io"

	"github.com/bureau-foundation/scopeguard/lib/secret"
)

// Backend is the signature primitive behind a Provider. Verify must
// return false, never panic, on malformed input.
type Backend interface {
	// GenerateSeed reads a fresh private seed from random.
	GenerateSeed(random io.Reader) ([]byte, error)

	// PublicKey derives the public key for seed.
	PublicKey(seed []byte) ([]byte, error)

	// Sign signs payload with the key derived from seed.
	Sign(seed, payload []byte) ([]byte, error)

	// Verify checks signature over payload under publicKey.
	Verify(publicKey, payload, signature []byte) bool
}

// Ed25519 returns the Ed25519 Backend.
func Ed25519() Backend { return ed25519Backend{} }

type ed25519Backend struct{}

func (ed25519Backend) GenerateSeed(random io.Reader) ([]byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(random, seed); err != nil {
		return nil, fmt.Errorf("nkey: reading random seed: %w", err)
	}
	return seed, nil
}

func (ed25519Backend) PublicKey(seed []byte) ([]byte, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("nkey: seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	private := ed25519.NewKeyFromSeed(seed)
	defer secret.Zero(private)
	public := make([]byte, ed25519.PublicKeySize)
	copy(public, private[ed25519.SeedSize:])
	return public, nil
}

func (ed25519Backend) Sign(seed, payload []byte) ([]byte, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("nkey: seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	private := ed25519.NewKeyFromSeed(seed)
	defer secret.Zero(private)
	return ed25519.Sign(private, payload), nil
}

func (ed25519Backend) Verify(publicKey, payload, signature []byte) bool {
	// ed25519.Verify panics on a short public key.
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, payload, signature)
}
