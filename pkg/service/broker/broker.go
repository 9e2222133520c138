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

// Package broker fans bridge events out to any number of subscribers
// without letting a slow subscriber hold up the device loop or dispatcher.
package broker

import (
	"context"
	"slices"
	"time"

	"github.com/quickcommanddeck/deckbridge/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

type Kind string

const (
	ButtonPressed   Kind = "button.pressed"
	ActionCompleted Kind = "action.completed"
	DisplaySent     Kind = "display.sent"
)

// Event is something the bridge did, as published to subscribers.
type Event struct {
	Time     time.Time `json:"time"`
	Button   *uint32   `json:"button,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
	Kind     Kind      `json:"kind"`
	Command  string    `json:"command,omitempty"`
	Lines    []string  `json:"lines,omitempty"`
	Matched  int       `json:"matched,omitempty"`
}

func NewButtonPressed(button uint32, matched int) Event {
	return Event{Time: time.Now(), Kind: ButtonPressed, Button: &button, Matched: matched}
}

// NewActionCompleted records a finished shell command. exitCode is -1 when
// the command could not run.
func NewActionCompleted(button uint32, command string, exitCode int) Event {
	return Event{
		Time:     time.Now(),
		Kind:     ActionCompleted,
		Button:   &button,
		Command:  command,
		ExitCode: &exitCode,
	}
}

func NewDisplaySent(lines []string) Event {
	return Event{Time: time.Now(), Kind: DisplaySent, Lines: slices.Clone(lines)}
}

// Send queues ev on ch without blocking. A nil channel is a no-op and a
// full one drops the event.
func Send(ch chan<- Event, ev Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
		log.Warn().Str("kind", string(ev.Kind)).Msg("event queue full, dropping event")
	}
}

// Broker copies every event from its source to all subscribers.
type Broker struct {
	ctx         context.Context
	source      <-chan Event
	subscribers map[int]chan Event
	done        chan struct{}
	mu          syncutil.RWMutex
	nextID      int
}

func NewBroker(ctx context.Context, source <-chan Event) *Broker {
	return &Broker{
		ctx:         ctx,
		source:      source,
		subscribers: make(map[int]chan Event),
		done:        make(chan struct{}),
	}
}

// Start runs the broadcast loop until the source closes or the context is
// cancelled, then closes every subscriber channel.
func (b *Broker) Start() {
	go func() {
		defer close(b.done)
		defer b.closeAllSubscribers()
		for {
			select {
			case ev, ok := <-b.source:
				if !ok {
					log.Debug().Msg("broker: source closed")
					return
				}
				b.broadcast(ev)
			case <-b.ctx.Done():
				log.Debug().Msg("broker: context cancelled")
				return
			}
		}
	}()
}

// Done is closed once the loop started by Start has exited.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

func (b *Broker) broadcast(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			log.Warn().
				Int("subscriber_id", id).
				Str("kind", string(ev.Kind)).
				Msg("subscriber full, dropping event")
		}
	}
}

// Subscribe registers a subscriber with room for bufferSize events.
func (b *Broker) Subscribe(bufferSize int) (events <-chan Event, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id = b.nextID
	b.nextID++
	ch := make(chan Event, bufferSize)
	b.subscribers[id] = ch

	log.Debug().Int("subscriber_id", id).Int("buffer_size", bufferSize).Msg("subscriber registered")
	return ch, id
}

// Unsubscribe closes and forgets a subscriber. Unknown ids are ignored.
func (b *Broker) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

func (b *Broker) closeAllSubscribers() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
