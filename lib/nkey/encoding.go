// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nkey

import (
	"errors"
	"fmt"

	"github.com/nats-io/nkeys"

	"github.com/bureau-foundation/scopeguard/lib/secret"
)

// Kind distinguishes issuer keypairs from subject keypairs.
type Kind int

const (
	// KindIssuer keypairs sign credentials.
	KindIssuer Kind = iota + 1

	// KindSubject keypairs authenticate sessions.
	KindSubject
)

// Errors returned when parsing encoded keys.
var (
	ErrInvalidEncoding = errors.New("nkey: invalid encoding")
	ErrChecksum        = errors.New("nkey: checksum mismatch")
	ErrInvalidKind     = errors.New("nkey: unknown key kind")
)

// String returns "issuer" or "subject".
func (k Kind) String() string {
	switch k {
	case KindIssuer:
		return "issuer"
	case KindSubject:
		return "subject"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses the output of Kind.String.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "issuer":
		return KindIssuer, nil
	case "subject":
		return KindSubject, nil
	default:
		return 0, fmt.Errorf("%w: %q (want issuer or subject)", ErrInvalidKind, name)
	}
}

// Issuers are NATS account keys and subjects are NATS user keys.
func (k Kind) prefix() (nkeys.PrefixByte, error) {
	switch k {
	case KindIssuer:
		return nkeys.PrefixByteAccount, nil
	case KindSubject:
		return nkeys.PrefixByteUser, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidKind, int(k))
	}
}

func kindFromPrefix(prefix nkeys.PrefixByte) (Kind, error) {
	switch prefix {
	case nkeys.PrefixByteAccount:
		return KindIssuer, nil
	case nkeys.PrefixByteUser:
		return KindSubject, nil
	default:
		return 0, fmt.Errorf("%w: prefix %s", ErrInvalidKind, prefix)
	}
}

// translate maps nkeys errors onto this package's sentinels.
func translate(err error) error {
	switch {
	case errors.Is(err, nkeys.ErrInvalidChecksum):
		return ErrChecksum
	case errors.Is(err, nkeys.ErrInvalidPrefixByte):
		return fmt.Errorf("%w: %v", ErrInvalidKind, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
}

// encodePublicID renders a public key of the given kind.
func encodePublicID(kind Kind, publicKey []byte) (string, error) {
	prefix, err := kind.prefix()
	if err != nil {
		return "", err
	}
	encoded, err := nkeys.Encode(prefix, publicKey)
	if err != nil {
		return "", translate(err)
	}
	return string(encoded), nil
}

// ParsePublicID decodes a public ID into its kind and raw public key.
func ParsePublicID(publicID string) (Kind, []byte, error) {
	for _, kind := range []Kind{KindIssuer, KindSubject} {
		prefix, _ := kind.prefix()
		publicKey, err := nkeys.Decode(prefix, []byte(publicID))
		if errors.Is(err, nkeys.ErrInvalidPrefixByte) {
			continue
		}
		if err != nil {
			return 0, nil, translate(err)
		}
		return kind, publicKey, nil
	}
	return 0, nil, fmt.Errorf("%w: %q is neither an issuer nor a subject ID", ErrInvalidKind, publicID)
}

// ValidPublicID reports whether publicID parses as a key of kind.
func ValidPublicID(publicID string, kind Kind) bool {
	switch kind {
	case KindIssuer:
		return nkeys.IsValidPublicAccountKey(publicID)
	case KindSubject:
		return nkeys.IsValidPublicUserKey(publicID)
	default:
		return false
	}
}

// encodeSeed renders a raw seed. The result holds secret material.
func encodeSeed(kind Kind, seed []byte) ([]byte, error) {
	prefix, err := kind.prefix()
	if err != nil {
		return nil, err
	}
	encoded, err := nkeys.EncodeSeed(prefix, seed)
	if err != nil {
		return nil, translate(err)
	}
	return encoded, nil
}

// decodeSeed parses an encoded seed. The returned seed is heap memory
// the caller must zero.
func decodeSeed(encoded []byte) (Kind, []byte, error) {
	prefix, raw, err := nkeys.DecodeSeed(encoded)
	if err != nil {
		if errors.Is(err, nkeys.ErrInvalidSeed) {
			return 0, nil, fmt.Errorf("%w: not a seed", ErrInvalidEncoding)
		}
		return 0, nil, translate(err)
	}
	defer secret.Zero(raw)

	kind, err := kindFromPrefix(prefix)
	if err != nil {
		return 0, nil, err
	}
	return kind, append([]byte(nil), raw...), nil
}
