// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/bureau-foundation/scopeguard/lib/codec"
)

// StreamServer exposes a Broker over stream connections.
type StreamServer struct {
	broker *Broker
	logger *slog.Logger
}

// NewStreamServer returns a server admitting sessions through broker.
// A nil logger discards.
func NewStreamServer(broker *Broker, logger *slog.Logger) *StreamServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StreamServer{broker: broker, logger: logger}
}

// Serve accepts connections on listener until ctx is cancelled, then
// closes the listener, waits for open connections to finish, and
// returns nil.
func (s *StreamServer) Serve(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var connections sync.WaitGroup
	defer connections.Wait()

	s.logger.Info("stream server listening", "address", listener.Addr().String())
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("transport: accepting connection: %w", err)
		}
		connections.Go(func() {
			if err := s.ServeConn(ctx, conn); err != nil {
				s.logger.Warn("stream connection ended", "remote", conn.RemoteAddr().String(), "error", err)
			}
		})
	}
}

// ServeConn runs one connection to completion and closes it. A clean
// disconnect by the client returns nil.
func (s *StreamServer) ServeConn(ctx context.Context, conn net.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	peer := &streamPeer{conn: conn, encoder: codec.NewEncoder(conn), decoder: codec.NewDecoder(conn)}

	nonce, err := s.broker.challenge()
	if err != nil {
		return err
	}
	if err := peer.send(frame{Type: frameHello, Nonce: nonce}); err != nil {
		return transportFailure("writing hello", err)
	}

	var connect frame
	if err := peer.decoder.Decode(&connect); err != nil {
		return transportFailure("reading connect", err)
	}
	if connect.Type != frameConnect {
		err := fmt.Errorf("%w: expected connect, got %s", ErrInvalidRequest, connect.Type)
		peer.result(connect.Request, err)
		return err
	}
	session, err := s.broker.admit(connect.Credential, nonce, connect.Signature)
	if err != nil {
		peer.result(connect.Request, err)
		return err
	}
	defer session.Close()
	if err := peer.result(connect.Request, nil); err != nil {
		return transportFailure("writing connect result", err)
	}

	subscriptions := make(map[uint64]Subscription)
	for {
		var request frame
		if err := peer.decoder.Decode(&request); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return transportFailure("reading frame", err)
		}

		var result error
		switch request.Type {
		case framePublish:
			result = session.Publish(ctx, request.Topic, request.Data)

		case frameSubscribe:
			if _, exists := subscriptions[request.Subscription]; exists || request.Subscription == 0 {
				result = fmt.Errorf("%w: subscription id %d is in use", ErrInvalidRequest, request.Subscription)
				break
			}
			subscription, err := session.Subscribe(ctx, request.Topic, SubscribeOptions{})
			if err != nil {
				result = err
				break
			}
			subscriptions[request.Subscription] = subscription
			if err := peer.result(request.Request, nil); err != nil {
				return transportFailure("writing result", err)
			}
			go s.pump(ctx, peer, request.Subscription, subscription)
			continue

		case frameUnsubscribe:
			if subscription, exists := subscriptions[request.Subscription]; exists {
				subscription.Unsubscribe()
				delete(subscriptions, request.Subscription)
			}

		default:
			result = fmt.Errorf("%w: unexpected %s frame", ErrInvalidRequest, request.Type)
		}

		if err := peer.result(request.Request, result); err != nil {
			return transportFailure("writing result", err)
		}
	}
}

// pump forwards one subscription's messages until it ends.
func (s *StreamServer) pump(ctx context.Context, peer *streamPeer, id uint64, subscription Subscription) {
	for {
		message, err := subscription.Next(ctx)
		if err != nil {
			return
		}
		err = peer.send(frame{Type: frameDeliver, Subscription: id, Topic: message.Topic, Data: message.Data})
		if err != nil {
			subscription.Unsubscribe()
			return
		}
	}
}

// streamPeer serializes frame writes on one connection.
type streamPeer struct {
	conn    net.Conn
	encoder *codec.Encoder
	decoder *codec.Decoder
	writeMu sync.Mutex
}

func (p *streamPeer) send(message frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.encoder.Encode(message)
}

func (p *streamPeer) result(request uint64, err error) error {
	return p.send(frame{Type: frameResult, Request: request, Error: encodeError(err)})
}
