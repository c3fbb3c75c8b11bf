// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"

	"github.com/bureau-foundation/scopeguard/lib/secret"
)

// ErrMalformedEnvelope is returned by ParseEnvelope.
var ErrMalformedEnvelope = errors.New("credential: malformed envelope")

const (
	credentialBlock = "USER CREDENTIAL"
	seedBlock       = "USER SEED"
)

var (
	blockBegin = regexp.MustCompile(`^-{3,}\s*BEGIN ([A-Z ]+?)\s*-{3,}$`)
	blockEnd   = regexp.MustCompile(`^-{3,}\s*END ([A-Z ]+?)\s*-{3,}$`)
)

// Envelope is a parsed credential file.
type Envelope struct {
	// Token is the encoded credential (see Encode).
	Token string

	// Seed is the subject's encoded seed, or nil if the file carried
	// no seed block. Close releases it.
	Seed *secret.Buffer
}

// Close releases the seed.
func (e *Envelope) Close() error {
	if e.Seed == nil {
		return nil
	}
	return e.Seed.Close()
}

// FormatEnvelope renders token and seed as a credential file. The
// result contains the seed in ordinary memory; zero it with
// secret.Zero once written.
func FormatEnvelope(token string, seed []byte) []byte {
	var buffer bytes.Buffer
	writeBlock(&buffer, credentialBlock, []byte(token))
	buffer.WriteByte('\n')
	writeBlock(&buffer, seedBlock, seed)
	return buffer.Bytes()
}

func writeBlock(buffer *bytes.Buffer, name string, content []byte) {
	fmt.Fprintf(buffer, "-----BEGIN %s-----\n", name)
	buffer.Write(content)
	fmt.Fprintf(buffer, "\n------END %s------\n", name)
}

// ParseEnvelope extracts the credential and seed blocks from data.
// The credential block is required. Blocks with other names are
// ignored. data is not modified.
func ParseEnvelope(data []byte) (*Envelope, error) {
	blocks := make(map[string][]byte)
	var (
		current string
		content []byte
		open    bool
	)
	for number, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if !open {
			if match := blockBegin.FindSubmatch(line); match != nil {
				current, content, open = string(match[1]), nil, true
			}
			continue
		}
		if match := blockEnd.FindSubmatch(line); match != nil {
			if string(match[1]) != current {
				secret.Zero(content)
				return nil, fmt.Errorf("%w: line %d: END %s closes BEGIN %s", ErrMalformedEnvelope, number+1, match[1], current)
			}
			if _, duplicate := blocks[current]; duplicate {
				secret.Zero(content)
				return nil, fmt.Errorf("%w: duplicate %s block", ErrMalformedEnvelope, current)
			}
			blocks[current] = content
			open = false
			continue
		}
		content = append(content, line...)
	}
	defer func() {
		for _, block := range blocks {
			secret.Zero(block)
		}
	}()
	if open {
		secret.Zero(content)
		return nil, fmt.Errorf("%w: unterminated %s block", ErrMalformedEnvelope, current)
	}

	token, ok := blocks[credentialBlock]
	if !ok || len(token) == 0 {
		return nil, fmt.Errorf("%w: no %s block", ErrMalformedEnvelope, credentialBlock)
	}
	envelope := &Envelope{Token: string(token)}

	if seed, ok := blocks[seedBlock]; ok && len(seed) > 0 {
		buffer, err := secret.NewFromBytes(seed)
		if err != nil {
			return nil, fmt.Errorf("credential: protecting seed: %w", err)
		}
		envelope.Seed = buffer
	}
	return envelope, nil
}
