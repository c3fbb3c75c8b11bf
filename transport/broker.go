// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/scopeguard/lib/clock"
	"github.com/bureau-foundation/scopeguard/lib/credential"
	"github.com/bureau-foundation/scopeguard/lib/nkey"
	"github.com/bureau-foundation/scopeguard/lib/permission"
	"github.com/bureau-foundation/scopeguard/lib/subject"
)

// NonceSize is the length of the connect challenge.
const NonceSize = 32

// Compile-time interface check.
var _ Transport = (*Broker)(nil)

// BrokerConfig configures a Broker.
type BrokerConfig struct {
	// IssuerPublicID is the only issuer whose credentials are
	// accepted. Required.
	IssuerPublicID string

	// Keys verifies credential and nonce signatures. Nil uses
	// nkey.Default().
	Keys *nkey.Provider

	// Revocations, if set, rejects revoked credentials at connect.
	Revocations *credential.RevocationList

	// Clock is the verification time source. Nil uses clock.Real().
	Clock clock.Clock

	// Logger receives session and enforcement events. Nil discards.
	Logger *slog.Logger

	// QueueDepth is the per-subscription buffer. Zero uses
	// DefaultQueueDepth.
	QueueDepth int

	// Random supplies nonces. Nil uses crypto/rand.
	Random io.Reader
}

// Broker is an in-process pub/sub broker that admits sessions by
// credential and enforces each session's permissions.
type Broker struct {
	issuer     string
	keys       *nkey.Provider
	verifier   *credential.Verifier
	clock      clock.Clock
	logger     *slog.Logger
	queueDepth int
	random     io.Reader

	mu            sync.RWMutex
	sessions      map[*brokerSession]struct{}
	subscriptions map[*brokerSubscription]struct{}
}

// NewBroker validates config and returns a Broker.
func NewBroker(config BrokerConfig) (*Broker, error) {
	if !nkey.ValidPublicID(config.IssuerPublicID, nkey.KindIssuer) {
		return nil, fmt.Errorf("transport: broker issuer %q is not an issuer public ID", config.IssuerPublicID)
	}
	if config.Keys == nil {
		config.Keys = nkey.Default()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Random == nil {
		config.Random = rand.Reader
	}

	var options []credential.VerifierOption
	if config.Revocations != nil {
		options = append(options, credential.WithRevocations(config.Revocations))
	}
	return &Broker{
		issuer:        config.IssuerPublicID,
		keys:          config.Keys,
		verifier:      credential.NewVerifier(config.Keys, options...),
		clock:         config.Clock,
		logger:        config.Logger,
		queueDepth:    config.QueueDepth,
		random:        config.Random,
		sessions:      make(map[*brokerSession]struct{}),
		subscriptions: make(map[*brokerSubscription]struct{}),
	}, nil
}

// Connect runs the connect challenge in-process.
func (b *Broker) Connect(ctx context.Context, authenticator Authenticator) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nonce, err := b.challenge()
	if err != nil {
		return nil, err
	}
	signature, err := authenticator.SignNonce(nonce)
	if err != nil {
		return nil, fmt.Errorf("transport: signing connect nonce: %w", err)
	}
	return b.admit(authenticator.Credential(), nonce, signature)
}

// SessionCount returns the number of open sessions.
func (b *Broker) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

func (b *Broker) challenge() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(b.random, nonce); err != nil {
		return nil, fmt.Errorf("transport: generating connect nonce: %w", err)
	}
	return nonce, nil
}

// admit verifies the credential and the nonce signature and opens a
// session.
func (b *Broker) admit(token string, nonce, signature []byte) (*brokerSession, error) {
	decoded, err := credential.Decode(token)
	if err != nil {
		b.logger.Warn("connect rejected", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrAuthorizationViolation, err)
	}
	verified, err := b.verifier.Verify(decoded, b.issuer, b.clock.Now())
	if err != nil {
		b.logger.Warn("connect rejected",
			"subject", decoded.Claims.Subject, "credential_id", decoded.Claims.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrAuthorizationViolation, err)
	}
	if !b.keys.Verify(verified.SubjectKey, nonce, signature) {
		b.logger.Warn("connect rejected: nonce signature does not match subject key",
			"subject", verified.Subject, "credential_id", verified.Claims.ID)
		return nil, fmt.Errorf("%w: nonce signature does not match subject key %s", ErrAuthorizationViolation, verified.SubjectKey)
	}
	policy, err := permission.Compile(verified.Permissions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthorizationViolation, err)
	}

	session := &brokerSession{
		broker:        b,
		verified:      verified,
		policy:        policy,
		logger:        b.logger.With("subject", verified.Subject, "credential_id", verified.Claims.ID),
		subscriptions: make(map[*brokerSubscription]struct{}),
	}
	b.mu.Lock()
	b.sessions[session] = struct{}{}
	b.mu.Unlock()

	session.logger.Info("session established", "expires_at", verified.ExpiresAt)
	return session, nil
}

// route delivers a publication to every matching subscription, in
// subscription-independent order.
func (b *Broker) route(message Message) int {
	b.mu.RLock()
	var targets []*brokerSubscription
	for subscription := range b.subscriptions {
		if subscription.pattern.Match(message.Topic) {
			targets = append(targets, subscription)
		}
	}
	b.mu.RUnlock()

	delivered := 0
	for _, target := range targets {
		if target.deliver(message) {
			delivered++
		}
	}
	return delivered
}

// brokerSession is a Session admitted by a Broker.
type brokerSession struct {
	broker   *Broker
	verified *credential.Verified
	policy   *permission.Policy
	logger   *slog.Logger

	mu            sync.Mutex
	closed        bool
	subscriptions map[*brokerSubscription]struct{}
}

// authorize checks the session policy, logging denials.
func (s *brokerSession) authorize(operation permission.Operation, topic string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	decision := s.policy.Authorize(operation, topic)
	if !decision.Allowed {
		s.logger.Info("operation denied", "operation", operation, "topic", topic,
			"reason", decision.Reason, "rule", decision.MatchedRule)
		return Violation(decision, false)
	}
	s.logger.Debug("operation allowed", "operation", operation, "topic", topic, "rule", decision.MatchedRule)
	return nil
}

func (s *brokerSession) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.authorize(permission.Publish, topic); err != nil {
		return err
	}
	s.broker.route(Message{Topic: topic, Data: append([]byte(nil), data...)})
	return nil
}

func (s *brokerSession) Subscribe(ctx context.Context, pattern string, options SubscribeOptions) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.authorize(permission.Subscribe, pattern); err != nil {
		return nil, err
	}
	// authorize parsed the pattern successfully.
	parsed := subject.MustParse(pattern)

	subscription := &brokerSubscription{pattern: parsed}
	subscription.queue = newQueue(pattern, options, s.broker.queueDepth, s.broker.clock, s.logger, func() {
		s.removeSubscription(subscription)
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.subscriptions[subscription] = struct{}{}
	s.broker.mu.Lock()
	s.broker.subscriptions[subscription] = struct{}{}
	s.broker.mu.Unlock()
	s.mu.Unlock()
	return subscription, nil
}

func (s *brokerSession) removeSubscription(subscription *brokerSubscription) {
	s.mu.Lock()
	delete(s.subscriptions, subscription)
	s.mu.Unlock()

	s.broker.mu.Lock()
	delete(s.broker.subscriptions, subscription)
	s.broker.mu.Unlock()
}

func (s *brokerSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subscriptions := make([]*brokerSubscription, 0, len(s.subscriptions))
	for subscription := range s.subscriptions {
		subscriptions = append(subscriptions, subscription)
	}
	s.mu.Unlock()

	for _, subscription := range subscriptions {
		subscription.end(nil)
	}

	s.broker.mu.Lock()
	delete(s.broker.sessions, s)
	s.broker.mu.Unlock()

	s.logger.Info("session closed")
	return nil
}

// brokerSubscription is a queue registered in the broker's routing
// table.
type brokerSubscription struct {
	*queue
	pattern subject.Pattern
}
