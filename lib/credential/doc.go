// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential issues and verifies signed, time-bounded claims
// that scope a pub/sub identity to a set of topic patterns.
//
// # Claims and signatures
//
// A [Credential] is [Claims] plus a signature by the issuer key over
// the canonical encoding of the claims: CBOR with integer map keys in
// Core Deterministic Encoding (lib/codec). The verifier never trusts
// transmitted bytes as the signed message. It re-encodes the decoded
// claims and checks the signature over the result, so any change to
// any claim field fails with [ErrSignatureInvalid].
//
// Claims.ID is derived from the claims themselves (BLAKE3 keyed hash
// of the canonical encoding with an empty ID), which makes it stable
// for revocation and log correlation without a server-side registry.
//
// # Wire format
//
// [Encode] renders a credential as a single base64url token (no
// padding) of a two-field CBOR map: the claims bytes and the
// signature. [FormatEnvelope] wraps the token and the subject's seed
// in the two-block text file handed to a connecting client:
//
//	-----BEGIN USER CREDENTIAL-----
//	<token>
//	------END USER CREDENTIAL------
//
//	-----BEGIN USER SEED-----
//	<seed>
//	------END USER SEED------
//
// # Errors
//
// Issuance fails with [ErrInvalidTTL], [ErrInvalidPermissionPattern],
// or [ErrMalformedCredential] and never returns a partial credential.
// Verification failures are [*VerificationError] values wrapping one
// of [ErrMalformedCredential], [ErrSignatureInvalid], [ErrNotYetValid],
// [ErrExpired], or [ErrRevoked].
//
// This package performs no I/O. Time is always an explicit argument
// or an injected clock.
package credential
