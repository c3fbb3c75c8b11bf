// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the time operations scopeguard's transport
// and probe depend on: reading the current time (credential issuance
// and verification) and waiting with a deadline (subscription
// timeouts). Production code injects [Real]; tests inject [Fake] and
// move time with [FakeClock.Advance].
//
// Tests that need to advance past a timer registered by another
// goroutine use [FakeClock.WaitForTimers] to close the race between
// registration and advancing:
//
//	go func() { result <- subscription.Next(ctx) }()
//	fakeClock.WaitForTimers(1)
//	fakeClock.Advance(time.Second)
package clock
