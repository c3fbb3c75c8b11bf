// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/scopeguard/lib/clock"
	"github.com/bureau-foundation/scopeguard/lib/credential"
	"github.com/bureau-foundation/scopeguard/lib/nkey"
	"github.com/bureau-foundation/scopeguard/lib/permission"
	"github.com/bureau-foundation/scopeguard/lib/secret"
	"github.com/bureau-foundation/scopeguard/transport"
)

// DefaultTTL is the credential lifetime when Config.TTL is zero.
const DefaultTTL = 30 * time.Minute

var (
	// ErrClosed is returned by operations on a closed harness.
	ErrClosed = errors.New("probe: harness closed")

	// ErrInvalidState is returned when an operation is called out of
	// order (e.g., Attempt before Connect).
	ErrInvalidState = errors.New("probe: invalid state")

	// ErrEnforcementMismatch means the broker and the local policy
	// disagreed about an operation.
	ErrEnforcementMismatch = errors.New("probe: broker and local policy disagree")
)

// Mode selects how locally denied operations are handled.
type Mode int

const (
	// ModeProbeRemote forwards every operation and reconciles the
	// broker's answer with the local decision.
	ModeProbeRemote Mode = iota

	// ModeEnforceLocal refuses locally denied operations without
	// forwarding them.
	ModeEnforceLocal
)

func (m Mode) String() string {
	switch m {
	case ModeProbeRemote:
		return "probe-remote"
	case ModeEnforceLocal:
		return "enforce-local"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "probe-remote" or "enforce-local". The empty
// string is ModeProbeRemote.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "", "probe-remote":
		return ModeProbeRemote, nil
	case "enforce-local":
		return ModeEnforceLocal, nil
	default:
		return 0, fmt.Errorf("probe: unknown mode %q (want probe-remote or enforce-local)", name)
	}
}

// State is a harness lifecycle state.
type State int

const (
	StateIdle State = iota
	StateCredentialIssued
	StateSessionEstablished
	StateOperationAllowed
	StateOperationDenied
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCredentialIssued:
		return "credential-issued"
	case StateSessionEstablished:
		return "session-established"
	case StateOperationAllowed:
		return "operation-allowed"
	case StateOperationDenied:
		return "operation-denied"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config configures a Harness.
type Config struct {
	// Identity is the subject the credential is issued to. Required.
	Identity string

	// Name is the credential's display name. Empty uses
	// "user-<identity>".
	Name string

	// Issuer signs the credential. Required.
	Issuer credential.Signer

	// Keys generates the subject keypair. Nil uses nkey.Default().
	Keys *nkey.Provider

	Permissions permission.Set

	// TTL is the credential lifetime. Zero uses DefaultTTL.
	TTL time.Duration

	// Transport reaches the broker. Required.
	Transport transport.Transport

	Mode   Mode
	Clock  clock.Clock
	Logger *slog.Logger
}

// Attempt is one operation to try.
type Attempt struct {
	Operation permission.Operation
	Topic     string

	// Payload is published for a publish attempt.
	Payload []byte

	// Timeout bounds each wait for a message on a subscribe attempt.
	Timeout time.Duration

	// MaxMessages ends a subscribe attempt once that many messages
	// arrived. With neither Timeout nor MaxMessages set, a subscribe
	// attempt returns as soon as the broker accepts it.
	MaxMessages int
}

// Outcome records one attempt.
type Outcome struct {
	Attempt Attempt

	// Local is the local policy's decision.
	Local permission.Decision

	// Forwarded is false when the operation never reached the broker.
	Forwarded bool

	// Allowed is the effective verdict: the broker's when forwarded,
	// otherwise the local one.
	Allowed bool

	// Messages received by a subscribe attempt.
	Messages []transport.Message
}

// Harness runs the issue, connect, attempt flow for one identity.
// Methods are safe for concurrent use. Connect and Attempt are
// serialized with each other; Close, State and Credential never wait
// for an attempt in progress.
type Harness struct {
	config Config
	logger *slog.Logger

	// operation serializes Connect and Attempt. Acquired before mu.
	operation sync.Mutex

	mu         sync.Mutex
	state      State
	subject    *nkey.KeyPair
	credential *credential.Credential
	policy     *permission.Policy
	envelope   *secret.Buffer
	session    transport.Session
}

// New validates config and returns an idle harness.
func New(config Config) (*Harness, error) {
	if config.Identity == "" {
		return nil, errors.New("probe: identity is required")
	}
	if config.Issuer == nil {
		return nil, errors.New("probe: issuer is required")
	}
	if config.Transport == nil {
		return nil, errors.New("probe: transport is required")
	}
	if config.Name == "" {
		config.Name = "user-" + config.Identity
	}
	if config.Keys == nil {
		config.Keys = nkey.Default()
	}
	if config.TTL == 0 {
		config.TTL = DefaultTTL
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Harness{
		config: config,
		logger: config.Logger.With("identity", config.Identity),
		state:  StateIdle,
	}, nil
}

// State returns the current state.
func (h *Harness) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Credential returns the issued credential, or nil before Issue.
func (h *Harness) Credential() *credential.Credential {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.credential
}

// Issue generates the subject keypair and issues its credential.
func (h *Harness) Issue() (*credential.Credential, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case StateClosed:
		return nil, ErrClosed
	case StateIdle:
	default:
		return nil, fmt.Errorf("%w: Issue in state %s", ErrInvalidState, h.state)
	}

	subject, err := h.config.Keys.Generate(nkey.KindSubject)
	if err != nil {
		return nil, fmt.Errorf("probe: generating subject key: %w", err)
	}
	issued, err := credential.NewIssuer(h.config.Issuer, h.config.Clock).Issue(credential.IssueRequest{
		Subject:     h.config.Identity,
		Name:        h.config.Name,
		SubjectKey:  subject.PublicID(),
		Permissions: h.config.Permissions,
		TTL:         h.config.TTL,
	})
	if err != nil {
		subject.Close()
		return nil, err
	}
	// Issue validated every pattern.
	policy, err := permission.Compile(issued.Claims.Permissions)
	if err != nil {
		subject.Close()
		return nil, err
	}
	envelope, err := sealEnvelope(issued, subject)
	if err != nil {
		subject.Close()
		return nil, err
	}

	h.subject, h.credential, h.policy, h.envelope = subject, issued, policy, envelope
	h.state = StateCredentialIssued
	h.logger.Info("credential issued",
		"credential_id", issued.Claims.ID,
		"subject_key", subject.PublicID(),
		"expires_at", issued.Claims.Expiry())
	return issued, nil
}

// sealEnvelope formats the credential file into a secret buffer.
func sealEnvelope(issued *credential.Credential, subject *nkey.KeyPair) (*secret.Buffer, error) {
	token, err := credential.Encode(issued)
	if err != nil {
		return nil, err
	}
	seed, err := subject.EncodedSeed()
	if err != nil {
		return nil, fmt.Errorf("probe: encoding subject seed: %w", err)
	}
	defer seed.Close()
	return secret.NewFromBytes(credential.FormatEnvelope(token, seed.Bytes()))
}

// Connect opens a session with the issued credential, replacing any
// existing session.
func (h *Harness) Connect(ctx context.Context) error {
	h.operation.Lock()
	defer h.operation.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case StateClosed:
		return ErrClosed
	case StateIdle:
		return fmt.Errorf("%w: Connect before Issue", ErrInvalidState)
	}

	now := h.config.Clock.Now().Unix()
	if now >= h.credential.Claims.ExpiresAt {
		return &credential.VerificationError{
			Reason: credential.ErrExpired,
			Detail: fmt.Sprintf("expired at %d, now %d", h.credential.Claims.ExpiresAt, now),
		}
	}

	if h.session != nil {
		h.session.Close()
		h.session = nil
		h.state = StateCredentialIssued
	}

	authenticator, err := transport.NewEnvelopeAuthenticator(h.envelope.Bytes(), h.config.Keys)
	if err != nil {
		return err
	}
	defer authenticator.Close()

	session, err := h.config.Transport.Connect(ctx, authenticator)
	if err != nil {
		h.logger.Warn("connect failed", "error", err)
		return err
	}
	h.session = session
	h.state = StateSessionEstablished
	h.logger.Info("session established", "credential_id", h.credential.Claims.ID)
	return nil
}

// Attempt runs one operation. The returned Outcome is non-nil
// whenever the operation was evaluated, including when err is a
// permission violation or a timeout. An error that is neither (a
// cancelled ctx, a closed session) is returned as is: Outcome.Allowed
// keeps the local decision and the state does not change. Closing the
// harness while an attempt waits ends the attempt with ErrClosed.
func (h *Harness) Attempt(ctx context.Context, attempt Attempt) (*Outcome, error) {
	h.operation.Lock()
	defer h.operation.Unlock()

	h.mu.Lock()
	switch h.state {
	case StateClosed:
		h.mu.Unlock()
		return nil, ErrClosed
	case StateIdle, StateCredentialIssued:
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: Attempt before Connect", ErrInvalidState)
	}
	session, policy := h.session, h.policy
	h.mu.Unlock()

	local := policy.Authorize(attempt.Operation, attempt.Topic)
	outcome := &Outcome{Attempt: attempt, Local: local, Allowed: local.Allowed}
	logger := h.logger.With("operation", attempt.Operation, "topic", attempt.Topic)

	if !local.Allowed && (h.config.Mode == ModeEnforceLocal || local.Reason == permission.ReasonUnknownOperation) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.state == StateClosed {
			return outcome, ErrClosed
		}
		h.state = StateOperationDenied
		logger.Info("operation denied locally", "reason", local.Reason, "rule", local.MatchedRule)
		return outcome, transport.Violation(local, true)
	}

	// mu is not held while the broker answers. Close may end the session
	// meanwhile.
	outcome.Forwarded = true
	var err error
	switch attempt.Operation {
	case permission.Publish:
		err = session.Publish(ctx, attempt.Topic, attempt.Payload)
	case permission.Subscribe:
		outcome.Messages, err = subscribe(ctx, session, attempt)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateClosed {
		logger.Info("harness closed during operation", "error", err)
		return outcome, fmt.Errorf("%w: during %s on %q", ErrClosed, attempt.Operation, attempt.Topic)
	}

	if errors.Is(err, transport.ErrTransportFailure) {
		h.closeLocked()
		logger.Error("transport failure, harness closed", "error", err)
		return outcome, err
	}

	switch {
	case err == nil, errors.Is(err, transport.ErrOperationTimeout):
		outcome.Allowed = true
		h.state = StateOperationAllowed
	case transport.IsPermissionViolation(err):
		outcome.Allowed = false
		h.state = StateOperationDenied
	default:
		logger.Warn("operation failed", "error", err)
		return outcome, err
	}
	logger.Info("operation attempted",
		"local_allowed", local.Allowed, "broker_allowed", outcome.Allowed,
		"messages", len(outcome.Messages), "error", err)

	if outcome.Allowed != local.Allowed {
		if err == nil {
			return outcome, fmt.Errorf("%w: %s on %q allowed by broker, denied locally (%s)",
				ErrEnforcementMismatch, attempt.Operation, attempt.Topic, local.Reason)
		}
		return outcome, fmt.Errorf("%w: %s on %q: %w", ErrEnforcementMismatch, attempt.Operation, attempt.Topic, err)
	}
	return outcome, err
}

// subscribe collects messages until the attempt's bound is reached.
func subscribe(ctx context.Context, session transport.Session, attempt Attempt) ([]transport.Message, error) {
	subscription, err := session.Subscribe(ctx, attempt.Topic, transport.SubscribeOptions{Timeout: attempt.Timeout})
	if err != nil {
		return nil, err
	}
	defer subscription.Unsubscribe()

	if attempt.Timeout == 0 && attempt.MaxMessages == 0 {
		return nil, nil
	}
	var messages []transport.Message
	for attempt.MaxMessages == 0 || len(messages) < attempt.MaxMessages {
		message, err := subscription.Next(ctx)
		if err != nil {
			return messages, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// Close ends the session and releases key material. Close is
// idempotent.
func (h *Harness) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateClosed {
		return nil
	}
	h.closeLocked()
	h.logger.Info("harness closed")
	return nil
}

func (h *Harness) closeLocked() {
	if h.session != nil {
		h.session.Close()
		h.session = nil
	}
	if h.subject != nil {
		h.subject.Close()
		h.subject = nil
	}
	if h.envelope != nil {
		h.envelope.Close()
		h.envelope = nil
	}
	h.state = StateClosed
}
