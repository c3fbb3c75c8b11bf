// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for scopeguard
// packages: bounded channel waits and throwaway key material.
package testutil
