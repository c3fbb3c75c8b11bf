// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"sync"
	"time"
)

// RevocationList is a thread-safe in-memory set of revoked credential
// IDs. Each entry remembers the credential's natural expiry so Cleanup
// can drop entries that Verify would reject as expired anyway.
type RevocationList struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewRevocationList returns an empty list.
func NewRevocationList() *RevocationList {
	return &RevocationList{entries: make(map[string]time.Time)}
}

// Revoke adds a credential ID. expiresAt is the credential's own
// expiry, after which Cleanup removes the entry.
func (r *RevocationList) Revoke(id string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = expiresAt
}

// RevokeCredential revokes credential by ID until its expiry.
func (r *RevocationList) RevokeCredential(credential *Credential) {
	r.Revoke(credential.Claims.ID, credential.Claims.Expiry())
}

// IsRevoked reports whether id has been revoked.
func (r *RevocationList) IsRevoked(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.entries[id]
	return exists
}

// Cleanup removes entries whose credential has expired at now and
// returns how many were removed.
func (r *RevocationList) Cleanup(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, expiresAt := range r.entries {
		if !now.Before(expiresAt) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries.
func (r *RevocationList) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
