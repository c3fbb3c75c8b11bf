// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"

	"github.com/bureau-foundation/scopeguard/lib/nkey"
)

// KeyPair generates a keypair of kind that is closed when the test
// completes.
func KeyPair(t testing.TB, kind nkey.Kind) *nkey.KeyPair {
	t.Helper()
	pair, err := nkey.Default().Generate(kind)
	if err != nil {
		t.Fatalf("generating %s keypair: %v", kind, err)
	}
	t.Cleanup(func() { pair.Close() })
	return pair
}

