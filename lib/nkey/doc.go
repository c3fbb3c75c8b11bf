// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package nkey generates and holds the keypairs that sign and
// authenticate scoped credentials.
//
// There are two kinds of keypair. An issuer keypair signs credentials;
// a subject keypair proves possession of a credential when a session
// is opened (the broker sends a nonce, the subject signs it). Both are
// produced by a [Provider], which wraps a pluggable signature
// [Backend]. [Ed25519] is the only backend shipped.
//
// # Encodings
//
// Public IDs and seeds use the NATS nkeys text format
// (github.com/nats-io/nkeys): base32 text carrying a kind prefix and a
// CRC-16 checksum. Issuer keys are nkeys account keys and subject keys
// are user keys, so issuer IDs start with "A", subject IDs with "U",
// and seeds start with "SA" or "SU". Encoded seeds carry a 32-byte
// seed, which limits a [Backend] used with this package to that seed
// size.
//
// # Secret handling
//
// Seeds live in [secret.Buffer] memory from generation or parsing
// until [KeyPair.Close]. Verification needs only a public ID; nothing
// on the verification path ever touches a seed.
package nkey
