// Deck Bridge
// Copyright (c) 2026 The Quick Command Deck Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Deck Bridge.
//
// Deck Bridge is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Deck Bridge is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Deck Bridge.  If not, see <http://www.gnu.org/licenses/>.

// Package queue provides the unbounded FIFO channels that connect the device
// loop, the dispatcher and the external injectors. Push never blocks, so a
// slow consumer can never stall a producer.
package queue

import (
	"context"
	"errors"

	"github.com/quickcommanddeck/deckbridge/pkg/helpers/syncutil"
)

// ErrClosed is returned by Pop once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is an unbounded FIFO safe for any number of producers and a single
// consumer.
type Queue[T any] struct {
	signal chan struct{}
	done   chan struct{}
	name   string
	items  []T
	mu     syncutil.Mutex
	closed bool
}

// New creates an empty queue. The name only appears in logs.
func New[T any](name string) *Queue[T] {
	return &Queue[T]{
		name:   name,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Name returns the queue's log name.
func (q *Queue[T]) Name() string {
	return q.name
}

// Push appends v to the back of the queue. It reports false if the queue
// has been closed and v was dropped.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
		// consumer already has a pending wakeup
	}
	return true
}

// TryPop removes the front item without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// release the backing array after a burst
		q.items = nil
	}
	return v, true
}

// Pop waits for the front item. Items pushed before Close are still
// delivered; after that Pop returns ErrClosed. A cancelled ctx returns
// ctx.Err().
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		v, ok := q.popLocked()
		closed := q.closed
		q.mu.Unlock()

		if ok {
			return v, nil
		}
		if closed {
			return zero, ErrClosed
		}

		select {
		case <-q.signal:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue accepting new items and wakes any waiting Pop.
// It's safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
