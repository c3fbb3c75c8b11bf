// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/scopeguard/lib/secret"
)

func generate(t *testing.T) *Keypair {
	t.Helper()
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	return keypair
}

func TestGenerateKeypair(t *testing.T) {
	keypair := generate(t)
	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Error("PrivateKey does not start with AGE-SECRET-KEY-1")
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want prefix age1", keypair.PublicKey)
	}
	if err := ParsePublicKey(keypair.PublicKey); err != nil {
		t.Errorf("ParsePublicKey: %v", err)
	}
	if generate(t).PublicKey == keypair.PublicKey {
		t.Error("two generated keypairs have identical public keys")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	first := generate(t)
	second := generate(t)
	plaintext := "SUAIBDPBAUTWCWBKIOSVK2QWPLNOGMFL3UKLMSGONRNHM3U4QD2EKKNID"

	ciphertext, err := Encrypt([]byte(plaintext), []string{first.PublicKey, second.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !IsSealed(ciphertext) || !strings.HasPrefix(string(ciphertext), "-----BEGIN AGE ENCRYPTED FILE-----") {
		t.Errorf("ciphertext is not armored: %q", ciphertext[:40])
	}
	if strings.Contains(string(ciphertext), plaintext) {
		t.Fatal("ciphertext contains the plaintext")
	}

	for _, keypair := range []*Keypair{first, second} {
		decrypted, err := Decrypt(ciphertext, keypair.PrivateKey)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if decrypted.String() != plaintext {
			t.Errorf("decrypted = %q", decrypted.String())
		}
		decrypted.Close()
	}

	outsider := generate(t)
	if _, err := Decrypt(ciphertext, outsider.PrivateKey); err == nil {
		t.Error("Decrypt succeeded with a non-recipient key")
	}
}

func TestEncryptRequiresRecipient(t *testing.T) {
	if _, err := Encrypt([]byte("x"), nil); err == nil {
		t.Error("Encrypt with no recipients succeeded")
	}
	if _, err := Encrypt([]byte("x"), []string{"age1invalid"}); err == nil {
		t.Error("Encrypt with an invalid recipient succeeded")
	}
}

func TestReadSeed(t *testing.T) {
	directory := t.TempDir()
	keypair := generate(t)
	seed := "SAAFAKESEEDFORTESTINGONLY"

	plainPath := filepath.Join(directory, "plain.seed")
	if err := os.WriteFile(plainPath, []byte("\n"+seed+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	plain, err := ReadSeed(plainPath, "")
	if err != nil {
		t.Fatalf("ReadSeed(plain): %v", err)
	}
	if plain.String() != seed {
		t.Errorf("plain seed = %q", plain.String())
	}
	plain.Close()

	ciphertext, err := Encrypt([]byte(seed), []string{keypair.PublicKey})
	if err != nil {
		t.Fatal(err)
	}
	sealedPath := filepath.Join(directory, "issuer.seed.age")
	identityPath := filepath.Join(directory, "identity.txt")
	if err := os.WriteFile(sealedPath, ciphertext, 0o600); err != nil {
		t.Fatal(err)
	}
	identity := "# created by a test\n" + keypair.PrivateKey.String() + "\n"
	if err := os.WriteFile(identityPath, []byte(identity), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadSeed(sealedPath, ""); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("ReadSeed without identity = %v, want ErrNoIdentity", err)
	}
	unsealed, err := ReadSeed(sealedPath, identityPath)
	if err != nil {
		t.Fatalf("ReadSeed(sealed): %v", err)
	}
	defer unsealed.Close()
	if unsealed.String() != seed {
		t.Errorf("unsealed seed = %q", unsealed.String())
	}
}

func TestDecryptRejectsBadIdentity(t *testing.T) {
	identity, err := secret.NewFromBytes([]byte("not an identity"))
	if err != nil {
		t.Fatal(err)
	}
	defer identity.Close()
	if _, err := Decrypt([]byte("age-encryption.org/v1\n"), identity); err == nil {
		t.Error("Decrypt accepted a malformed identity")
	}
}
