// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"time"
)

// Transport opens authenticated pub/sub sessions. The broker is the
// authoritative enforcement point; a Transport relays its answers.
type Transport interface {
	// Connect presents the authenticator's credential and proves
	// possession of the subject seed. Fails with an error wrapping
	// ErrAuthorizationViolation when the broker rejects the
	// credential, or ErrTransportFailure when the link fails.
	Connect(ctx context.Context, authenticator Authenticator) (Session, error)
}

// Authenticator supplies the credential presented at connect and
// signs the broker's challenge with the subject seed.
type Authenticator interface {
	// Credential returns the encoded credential token.
	Credential() string

	// SignNonce signs the broker-chosen nonce.
	SignNonce(nonce []byte) ([]byte, error)
}

// Session is one authenticated connection. Publish and Subscribe are
// authorized by the broker against the session's verified
// permissions and fail with a *PermissionViolationError when denied.
type Session interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(ctx context.Context, pattern string, options SubscribeOptions) (Subscription, error)

	// Close ends the session and every subscription on it. Close is
	// idempotent.
	Close() error
}

// SubscribeOptions configures a subscription.
type SubscribeOptions struct {
	// Timeout bounds each wait in Next. When no message arrives within
	// Timeout, Next returns an error wrapping ErrOperationTimeout and
	// the subscription ends. Zero waits indefinitely.
	Timeout time.Duration
}

// Subscription is a stream of messages matching one pattern. It is
// not restartable: once it ends, by timeout, Unsubscribe, or session
// close, Next returns ErrSubscriptionClosed.
type Subscription interface {
	// Next blocks for the next message.
	Next(ctx context.Context) (Message, error)

	// Unsubscribe ends the subscription. Unsubscribe is idempotent.
	Unsubscribe() error
}

// Message is one delivered publication.
type Message struct {
	Topic string
	Data  []byte
}
