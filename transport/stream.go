// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/scopeguard/lib/clock"
	"github.com/bureau-foundation/scopeguard/lib/codec"
)

// Compile-time interface check.
var _ Transport = (*StreamTransport)(nil)

// StreamTransport connects to a StreamServer.
type StreamTransport struct {
	// Network and Address are passed to net.Dialer (e.g., "tcp" and
	// "127.0.0.1:4222", or "unix" and a socket path).
	Network string
	Address string

	// Dial, if set, replaces Network and Address. Tests use it with
	// net.Pipe.
	Dial func(ctx context.Context) (net.Conn, error)

	// Clock drives subscription timeouts. Nil uses clock.Real().
	Clock clock.Clock

	// Logger receives link events. Nil discards.
	Logger *slog.Logger

	// QueueDepth is the per-subscription buffer. Zero uses
	// DefaultQueueDepth.
	QueueDepth int
}

func (t *StreamTransport) dial(ctx context.Context) (net.Conn, error) {
	if t.Dial != nil {
		return t.Dial(ctx)
	}
	var dialer net.Dialer
	return dialer.DialContext(ctx, t.Network, t.Address)
}

// Connect dials the server and runs the connect challenge. ctx bounds
// the dial and the handshake only.
func (t *StreamTransport) Connect(ctx context.Context, authenticator Authenticator) (Session, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, transportFailure("dialing broker", err)
	}

	session := &streamSession{
		conn:          conn,
		peer:          &streamPeer{conn: conn, encoder: codec.NewEncoder(conn), decoder: codec.NewDecoder(conn)},
		clock:         t.Clock,
		logger:        t.Logger,
		queueDepth:    t.QueueDepth,
		pending:       make(map[uint64]chan frame),
		subscriptions: make(map[uint64]*queue),
		done:          make(chan struct{}),
	}
	if session.clock == nil {
		session.clock = clock.Real()
	}
	if session.logger == nil {
		session.logger = slog.New(slog.DiscardHandler)
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	err = session.handshake(authenticator)
	if !stop() {
		conn.Close()
		return nil, ctx.Err()
	}
	if err != nil {
		conn.Close()
		return nil, err
	}

	go session.readLoop()
	return session, nil
}

// streamSession is the client side of a stream connection.
type streamSession struct {
	conn       net.Conn
	peer       *streamPeer
	clock      clock.Clock
	logger     *slog.Logger
	queueDepth int

	mu               sync.Mutex
	closed           bool
	failure          error
	nextRequest      uint64
	nextSubscription uint64
	pending          map[uint64]chan frame
	subscriptions    map[uint64]*queue
	done             chan struct{}
}

func (s *streamSession) handshake(authenticator Authenticator) error {
	var hello frame
	if err := s.peer.decoder.Decode(&hello); err != nil {
		return transportFailure("reading hello", err)
	}
	if hello.Type != frameHello || len(hello.Nonce) == 0 {
		return fmt.Errorf("%w: expected hello with nonce, got %s", ErrTransportFailure, hello.Type)
	}
	signature, err := authenticator.SignNonce(hello.Nonce)
	if err != nil {
		return fmt.Errorf("transport: signing connect nonce: %w", err)
	}
	connect := frame{Type: frameConnect, Credential: authenticator.Credential(), Signature: signature}
	if err := s.peer.send(connect); err != nil {
		return transportFailure("writing connect", err)
	}

	var result frame
	if err := s.peer.decoder.Decode(&result); err != nil {
		return transportFailure("reading connect result", err)
	}
	if result.Type != frameResult {
		return fmt.Errorf("%w: expected connect result, got %s", ErrTransportFailure, result.Type)
	}
	return decodeError(result.Error)
}

func (s *streamSession) readLoop() {
	for {
		var incoming frame
		if err := s.peer.decoder.Decode(&incoming); err != nil {
			s.shutdown(transportFailure("reading frame", err))
			return
		}
		switch incoming.Type {
		case frameResult:
			s.mu.Lock()
			reply := s.pending[incoming.Request]
			delete(s.pending, incoming.Request)
			s.mu.Unlock()
			if reply != nil {
				reply <- incoming
			}
		case frameDeliver:
			s.mu.Lock()
			target := s.subscriptions[incoming.Subscription]
			s.mu.Unlock()
			if target != nil {
				target.deliver(Message{Topic: incoming.Topic, Data: incoming.Data})
			}
		default:
			s.logger.Warn("ignoring unexpected frame from broker", "type", incoming.Type)
		}
	}
}

// shutdown ends the session. A nil failure is a local Close.
func (s *streamSession) shutdown(failure error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.failure = failure
	targets := make([]*queue, 0, len(s.subscriptions))
	for _, target := range s.subscriptions {
		targets = append(targets, target)
	}
	clear(s.subscriptions)
	clear(s.pending)
	close(s.done)
	s.mu.Unlock()

	s.conn.Close()
	for _, target := range targets {
		target.end(failure)
	}
	if failure != nil {
		s.logger.Warn("stream session failed", "error", failure)
	}
}

func (s *streamSession) closeReason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	return ErrSessionClosed
}

// request sends a frame and waits for its result.
func (s *streamSession) request(ctx context.Context, outgoing frame) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.closeReason()
	}
	s.nextRequest++
	outgoing.Request = s.nextRequest
	reply := make(chan frame, 1)
	s.pending[outgoing.Request] = reply
	s.mu.Unlock()

	if err := s.peer.send(outgoing); err != nil {
		failure := transportFailure("writing "+outgoing.Type.String(), err)
		s.shutdown(failure)
		return s.closeReason()
	}

	select {
	case result := <-reply:
		return decodeError(result.Error)
	case <-s.done:
		return s.closeReason()
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, outgoing.Request)
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *streamSession) Publish(ctx context.Context, topic string, data []byte) error {
	return s.request(ctx, frame{Type: framePublish, Topic: topic, Data: data})
}

func (s *streamSession) Subscribe(ctx context.Context, pattern string, options SubscribeOptions) (Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, s.closeReason()
	}
	s.nextSubscription++
	id := s.nextSubscription
	target := newQueue(pattern, options, s.queueDepth, s.clock, s.logger, func() { s.unsubscribe(id) })
	// Registered before the request so deliveries that follow the
	// result are not lost.
	s.subscriptions[id] = target
	s.mu.Unlock()

	if err := s.request(ctx, frame{Type: frameSubscribe, Subscription: id, Topic: pattern}); err != nil {
		s.mu.Lock()
		delete(s.subscriptions, id)
		s.mu.Unlock()
		target.end(nil)
		return nil, err
	}
	return target, nil
}

// unsubscribe tells the server to stop a subscription the client has
// ended. The result frame is not awaited.
func (s *streamSession) unsubscribe(id uint64) {
	s.mu.Lock()
	_, registered := s.subscriptions[id]
	delete(s.subscriptions, id)
	closed := s.closed
	s.mu.Unlock()
	if !registered || closed {
		return
	}
	if err := s.peer.send(frame{Type: frameUnsubscribe, Subscription: id}); err != nil {
		s.shutdown(transportFailure("writing unsubscribe", err))
	}
}

func (s *streamSession) Close() error {
	s.shutdown(nil)
	return nil
}
