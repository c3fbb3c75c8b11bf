// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts seed files at rest with age (filippo.io/age).
//
// Sealed files are ASCII-armored age ciphertext so they survive copy
// and paste. Decrypt accepts armored or binary input. Private keys and
// decrypted plaintext are returned as *secret.Buffer values, which
// live outside the Go heap and are zeroed on close.
//
// [ReadSeed] is the loader the CLI uses for issuer seeds: it decrypts
// when the file is sealed and otherwise reads it as a plain seed.
package sealed
