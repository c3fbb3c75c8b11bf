// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bureau-foundation/scopeguard/lib/credential"
	"github.com/bureau-foundation/scopeguard/lib/nkey"
	"github.com/bureau-foundation/scopeguard/lib/permission"
	"github.com/bureau-foundation/scopeguard/lib/testutil"
)

// pipeTransport returns a StreamTransport whose every Connect is
// served by a fresh ServeConn on the other end of a net.Pipe.
func pipeTransport(t *testing.T, f *fixture) *StreamTransport {
	t.Helper()
	server := NewStreamServer(f.broker, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &StreamTransport{
		Clock: f.clock,
		Dial: func(context.Context) (net.Conn, error) {
			client, remote := net.Pipe()
			go server.ServeConn(ctx, remote)
			return client, nil
		},
	}
}

func TestStreamPublishSubscribe(t *testing.T) {
	f := newFixture(t)
	stream := pipeTransport(t, f)
	session := f.connect(t, stream)

	subscription, err := session.Subscribe(context.Background(), "users.john-doe.>", SubscribeOptions{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := session.Publish(context.Background(), "users.john-doe.notifications", []byte("over the wire")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	result := testutil.RequireReceive(t, nextAsync(subscription), 5*time.Second, "waiting for delivery")
	if result.err != nil {
		t.Fatalf("Next: %v", result.err)
	}
	if result.message.Topic != "users.john-doe.notifications" || string(result.message.Data) != "over the wire" {
		t.Errorf("message = %+v", result.message)
	}
}

func TestStreamCrossTransportDelivery(t *testing.T) {
	f := newFixture(t)
	local := f.connect(t, f.broker)
	remote := f.connect(t, pipeTransport(t, f))

	subscription, err := remote.Subscribe(context.Background(), "users.john-doe.inbox", SubscribeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := local.Publish(context.Background(), "users.john-doe.inbox", []byte("local to remote")); err != nil {
		t.Fatal(err)
	}
	result := testutil.RequireReceive(t, nextAsync(subscription), 5*time.Second)
	if result.err != nil || string(result.message.Data) != "local to remote" {
		t.Errorf("Next = %+v, %v", result.message, result.err)
	}
}

func TestStreamPermissionViolation(t *testing.T) {
	f := newFixture(t)
	session := f.connect(t, pipeTransport(t, f))

	_, err := session.Subscribe(context.Background(), "users.>", SubscribeOptions{})
	requireViolation(t, err, permission.Subscribe, "users.>", "users.*.secrets")
	var violation *PermissionViolationError
	errors.As(err, &violation)
	if violation.Reason != permission.ReasonExplicitDeny || violation.Local {
		t.Errorf("violation = %+v", violation)
	}

	err = session.Publish(context.Background(), "users.jane-doe.notifications", nil)
	requireViolation(t, err, permission.Publish, "users.jane-doe.notifications", "")

	// The session is still usable after denials.
	if err := session.Publish(context.Background(), "users.john-doe.x", nil); err != nil {
		t.Errorf("Publish after denial: %v", err)
	}
}

func TestStreamSubscribeTimeout(t *testing.T) {
	f := newFixture(t)
	session := f.connect(t, pipeTransport(t, f))

	subscription, err := session.Subscribe(context.Background(), "users.john-doe.notifications",
		SubscribeOptions{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	results := nextAsync(subscription)
	f.clock.WaitForTimers(1)
	f.clock.Advance(time.Second)
	result := testutil.RequireReceive(t, results, 5*time.Second)
	testutil.RequireErrorIs(t, result.err, ErrOperationTimeout)

	_, err = subscription.Next(context.Background())
	testutil.RequireErrorIs(t, err, ErrSubscriptionClosed)
	if err := session.Publish(context.Background(), "users.john-doe.notifications", nil); err != nil {
		t.Errorf("Publish after timeout: %v", err)
	}
}

func TestStreamConnectExpired(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(2 * time.Hour)
	_, err := pipeTransport(t, f).Connect(context.Background(), NewAuthenticator(f.token, f.subject))
	testutil.RequireErrorIs(t, err, ErrAuthorizationViolation)
	testutil.RequireErrorIs(t, err, credential.ErrExpired, "verification reason survives the wire")
}

func TestStreamConnectWrongKey(t *testing.T) {
	f := newFixture(t)
	impostor := testutil.KeyPair(t, nkey.KindSubject)
	_, err := pipeTransport(t, f).Connect(context.Background(), NewAuthenticator(f.token, impostor))
	testutil.RequireErrorIs(t, err, ErrAuthorizationViolation)
}

func TestStreamServerGoneIsTransportFailure(t *testing.T) {
	f := newFixture(t)
	server := NewStreamServer(f.broker, nil)
	serverCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()
	stream := &StreamTransport{
		Clock: f.clock,
		Dial: func(context.Context) (net.Conn, error) {
			client, remote := net.Pipe()
			go server.ServeConn(serverCtx, remote)
			return client, nil
		},
	}
	session := f.connect(t, stream)
	subscription, err := session.Subscribe(context.Background(), "users.john-doe.>", SubscribeOptions{})
	if err != nil {
		t.Fatal(err)
	}

	results := nextAsync(subscription)
	stopServer()
	result := testutil.RequireReceive(t, results, 5*time.Second, "waiting for link failure")
	testutil.RequireErrorIs(t, result.err, ErrTransportFailure)
	testutil.RequireErrorIs(t, session.Publish(context.Background(), "users.john-doe.x", nil), ErrTransportFailure)
}

func TestStreamServeListener(t *testing.T) {
	f := newFixture(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- NewStreamServer(f.broker, nil).Serve(ctx, listener) }()

	stream := &StreamTransport{Network: "tcp", Address: listener.Addr().String(), Clock: f.clock}
	session, err := stream.Connect(context.Background(), NewAuthenticator(f.token, f.subject))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := session.Publish(context.Background(), "users.john-doe.x", []byte("tcp")); err != nil {
		t.Errorf("Publish: %v", err)
	}
	session.Close()

	cancel()
	if err := testutil.RequireReceive(t, served, 5*time.Second, "waiting for Serve to return"); err != nil {
		t.Errorf("Serve = %v, want nil", err)
	}
}

func TestWireErrorRoundTrip(t *testing.T) {
	violation := &PermissionViolationError{
		Operation: permission.Subscribe,
		Topic:     "users.>",
		Rule:      "users.*.secrets",
		Reason:    permission.ReasonExplicitDeny,
	}
	decoded := decodeError(encodeError(violation))
	var got *PermissionViolationError
	if !errors.As(decoded, &got) || *got != *violation {
		t.Errorf("violation round trip = %#v", decoded)
	}

	for _, candidate := range verificationCodes {
		wrapped := errors.Join(ErrAuthorizationViolation, candidate.reason)
		decoded := decodeError(encodeError(wrapped))
		if !errors.Is(decoded, ErrAuthorizationViolation) || !errors.Is(decoded, candidate.reason) {
			t.Errorf("%s: decoded = %v", candidate.code, decoded)
		}
	}

	if !errors.Is(decodeError(encodeError(ErrSessionClosed)), ErrSessionClosed) {
		t.Error("session closed did not round trip")
	}
	if !errors.Is(decodeError(encodeError(errors.New("boom"))), ErrInvalidRequest) {
		t.Error("unknown error did not map to ErrInvalidRequest")
	}
	if decodeError(encodeError(nil)) != nil {
		t.Error("nil did not round trip")
	}
}
