// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/scopeguard/lib/secret"
)

func TestEncodeDecode(t *testing.T) {
	f := newFixture(t)
	credential := f.issue(t, 60)

	token, err := Encode(credential)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.ContainsAny(token, "=+/\n") {
		t.Errorf("token %q is not unpadded base64url", token)
	}

	decoded, err := Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Claims.ID != credential.Claims.ID || !bytes.Equal(decoded.Signature, credential.Signature) {
		t.Error("decoded credential differs from original")
	}
	if _, err := NewVerifier(f.keys).Verify(decoded, f.issuer.PublicID(), testEpoch); err != nil {
		t.Errorf("Verify(decoded): %v", err)
	}

	again, err := Encode(decoded)
	if err != nil {
		t.Fatal(err)
	}
	if again != token {
		t.Error("re-encoding a decoded credential changed the token")
	}
}

func TestDecodeMalformed(t *testing.T) {
	f := newFixture(t)
	token, err := Encode(f.issue(t, 60))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := base64.RawURLEncoding.DecodeString(token)

	inputs := map[string]string{
		"empty":          "",
		"not base64":     "!!!not-base64!!!",
		"not cbor":       base64.RawURLEncoding.EncodeToString([]byte("hello world")),
		"truncated":      base64.RawURLEncoding.EncodeToString(body[:len(body)/2]),
		"trailing bytes": base64.RawURLEncoding.EncodeToString(append(append([]byte(nil), body...), 0x00)),
		"empty map":      base64.RawURLEncoding.EncodeToString([]byte{0xa0}),
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(input)
			requireReason(t, err, ErrMalformedCredential)
		})
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	f := newFixture(t)
	token, err := Encode(f.issue(t, 60))
	if err != nil {
		t.Fatal(err)
	}
	seed, err := f.subject.EncodedSeed()
	if err != nil {
		t.Fatal(err)
	}
	defer seed.Close()

	data := FormatEnvelope(token, seed.Bytes())
	defer secret.Zero(data)
	text := string(data)
	for _, marker := range []string{
		"-----BEGIN USER CREDENTIAL-----",
		"------END USER CREDENTIAL------",
		"-----BEGIN USER SEED-----",
		"------END USER SEED------",
	} {
		if !strings.Contains(text, marker) {
			t.Errorf("envelope missing %q", marker)
		}
	}

	envelope, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	defer envelope.Close()
	if envelope.Token != token {
		t.Error("token changed through envelope")
	}
	if envelope.Seed == nil || envelope.Seed.String() != seed.String() {
		t.Fatal("seed changed through envelope")
	}
	if !strings.Contains(string(data), seed.String()) {
		t.Error("ParseEnvelope modified its input")
	}

	pair, err := f.keys.FromSeed(envelope.Seed.Bytes())
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	defer pair.Close()
	if pair.PublicID() != f.subject.PublicID() {
		t.Error("seed from envelope does not match subject key")
	}
}

func TestParseEnvelopeTolerance(t *testing.T) {
	input := "# issued by scopeguard\r\n" +
		"-----BEGIN USER CREDENTIAL-----\r\n" +
		"  abc\r\n" +
		"def  \r\n" +
		"------END USER CREDENTIAL------\r\n" +
		"-----BEGIN SOMETHING ELSE-----\n" +
		"ignored\n" +
		"-----END SOMETHING ELSE-----\n"
	envelope, err := ParseEnvelope([]byte(input))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if envelope.Token != "abcdef" {
		t.Errorf("Token = %q, want abcdef", envelope.Token)
	}
	if envelope.Seed != nil {
		t.Error("Seed should be nil without a seed block")
	}
}

func TestParseEnvelopeMalformed(t *testing.T) {
	inputs := map[string]string{
		"empty":         "",
		"no credential": "-----BEGIN USER SEED-----\nSUxyz\n------END USER SEED------\n",
		"unterminated":  "-----BEGIN USER CREDENTIAL-----\nabc\n",
		"mismatched":    "-----BEGIN USER CREDENTIAL-----\nabc\n------END USER SEED------\n",
		"duplicate": "-----BEGIN USER CREDENTIAL-----\na\n------END USER CREDENTIAL------\n" +
			"-----BEGIN USER CREDENTIAL-----\nb\n------END USER CREDENTIAL------\n",
		"empty credential": "-----BEGIN USER CREDENTIAL-----\n------END USER CREDENTIAL------\n",
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseEnvelope([]byte(input)); err == nil {
				t.Error("ParseEnvelope succeeded")
			}
		})
	}
}

func TestRevocationListCleanup(t *testing.T) {
	list := NewRevocationList()
	list.Revoke("a", testEpoch.Add(time.Minute))
	list.Revoke("b", testEpoch.Add(time.Hour))
	if list.Len() != 2 || !list.IsRevoked("a") || list.IsRevoked("c") {
		t.Fatalf("unexpected list state, Len = %d", list.Len())
	}
	if removed := list.Cleanup(testEpoch.Add(time.Minute)); removed != 1 {
		t.Errorf("Cleanup removed %d, want 1", removed)
	}
	if list.IsRevoked("a") || !list.IsRevoked("b") {
		t.Error("Cleanup removed the wrong entry")
	}
}
