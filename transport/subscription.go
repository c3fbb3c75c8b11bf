// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/scopeguard/lib/clock"
)

// DefaultQueueDepth is the per-subscription buffer when none is
// configured.
const DefaultQueueDepth = 256

// queue is the buffered half of a subscription shared by the broker
// and the stream client. Producers call deliver; the consumer calls
// Next. When the buffer is full the newest message is dropped.
type queue struct {
	pattern string
	timeout time.Duration
	clock   clock.Clock
	logger  *slog.Logger

	messages chan Message
	done     chan struct{}

	mu     sync.Mutex
	ended  bool
	reason error

	// onEnd runs once, outside mu, when the subscription ends for
	// any reason.
	onEnd func()
}

func newQueue(pattern string, options SubscribeOptions, depth int, source clock.Clock, logger *slog.Logger, onEnd func()) *queue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &queue{
		pattern:  pattern,
		timeout:  options.Timeout,
		clock:    source,
		logger:   logger,
		messages: make(chan Message, depth),
		done:     make(chan struct{}),
		onEnd:    onEnd,
	}
}

// deliver enqueues message without blocking. Returns false when the
// message was dropped.
func (q *queue) deliver(message Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ended {
		return false
	}
	select {
	case q.messages <- message:
		return true
	default:
		q.logger.Warn("subscription queue full, dropping message",
			"pattern", q.pattern, "topic", message.Topic, "depth", cap(q.messages))
		return false
	}
}

// end stops the subscription. reason, if non-nil, is what Next
// returns from now on instead of ErrSubscriptionClosed. Returns false
// if the subscription had already ended.
func (q *queue) end(reason error) bool {
	q.mu.Lock()
	if q.ended {
		q.mu.Unlock()
		return false
	}
	q.ended = true
	q.reason = reason
	close(q.done)
	q.mu.Unlock()

	if q.onEnd != nil {
		q.onEnd()
	}
	return true
}

func (q *queue) endedReason() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reason != nil {
		return q.reason
	}
	return ErrSubscriptionClosed
}

// Next returns buffered messages before reporting an end.
func (q *queue) Next(ctx context.Context) (Message, error) {
	select {
	case message := <-q.messages:
		return message, nil
	default:
	}
	select {
	case <-q.done:
		return Message{}, q.endedReason()
	default:
	}

	var expired <-chan time.Time
	if q.timeout > 0 {
		timer := q.clock.NewTimer(q.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case message := <-q.messages:
		return message, nil
	case <-q.done:
		return Message{}, q.endedReason()
	case <-expired:
		q.end(nil)
		return Message{}, fmt.Errorf("%w: no message on %q within %v", ErrOperationTimeout, q.pattern, q.timeout)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (q *queue) Unsubscribe() error {
	q.end(nil)
	return nil
}
