// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries credential-scoped pub/sub sessions
// between a client and the broker that enforces them.
//
// [Transport], [Session], and [Subscription] are the interfaces the
// session harness (lib/probe) programs against. Two implementations
// are provided:
//
//   - [Broker] is an in-process broker. Connect verifies the
//     credential against the trusted issuer, checks the nonce
//     signature against the credential's subject key, and authorizes
//     every publish and subscribe with the verified permission set.
//   - [StreamTransport] and [StreamServer] carry the same session over
//     any net.Conn (TCP, Unix socket, net.Pipe) as a sequence of CBOR
//     frames. The server side is a thin adapter over a Broker.
//
// Errors are typed so callers can tell a broker denial
// ([*PermissionViolationError]) from a rejected connect
// ([ErrAuthorizationViolation]), a timeout ([ErrOperationTimeout]),
// or a broken link ([ErrTransportFailure]).
//
// Timeouts go through lib/clock so tests drive them with a fake
// clock.
package transport
