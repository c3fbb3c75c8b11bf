// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// scopeguard's signed payloads and stream protocol.
//
// Signing depends on the encoder being deterministic: the issuer signs
// the encoded claims and the verifier re-encodes the decoded claims
// and checks the signature over the result. The encoder therefore uses
// Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items.
//
// The decoder is strict about the things that would let two different
// byte strings decode to the same value: duplicate map keys and
// indefinite-length items are rejected, and trailing bytes after the
// top-level item are an error.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented use (the stream transport):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// A `cbor` tag marks a type that is only ever CBOR (signed claims,
// stream frames). A `json` tag marks a type that may be serialized as
// both JSON and CBOR; fxamacker/cbor falls back to `json` tags when no
// `cbor` tag is present. Never use both tags on the same field.
package codec
