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

// Package deviceio owns the serial transport. Each cycle it decodes inbound
// button frames, writes at most one pending display message and sleeps for
// the poll interval.
package deviceio

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/quickcommanddeck/deckbridge/pkg/protocol"
	"github.com/quickcommanddeck/deckbridge/pkg/service/broker"
	"github.com/quickcommanddeck/deckbridge/pkg/service/queue"
	"github.com/quickcommanddeck/deckbridge/pkg/transport"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultStaleCycles  = 10
	readChunk           = 1024
)

type Options struct {
	Transport    transport.Transport
	Inbound      *queue.Queue[protocol.ButtonEvent]
	Outbound     *queue.Queue[protocol.DisplayMessage]
	Clock        clockwork.Clock
	// Events, if set, receives a DisplaySent event per written message.
	Events       chan<- broker.Event
	PollInterval time.Duration
	StaleCycles  int
}

// Stats are running totals since the loop was created.
type Stats struct {
	FramesIn  uint64
	FramesOut uint64
	Discards  uint64
	Dropped   uint64
}

type Loop struct {
	tr        transport.Transport
	inbound   *queue.Queue[protocol.ButtonEvent]
	outbound  *queue.Queue[protocol.DisplayMessage]
	clock     clockwork.Clock
	events    chan<- broker.Event
	frame     []byte
	readBuf   []byte
	poll      time.Duration
	stale     int
	staleFor  int
	framesIn  atomic.Uint64
	framesOut atomic.Uint64
	discards  atomic.Uint64
	dropped   atomic.Uint64
}

func New(opts Options) *Loop {
	l := &Loop{
		tr:       opts.Transport,
		inbound:  opts.Inbound,
		outbound: opts.Outbound,
		clock:    opts.Clock,
		events:   opts.Events,
		poll:     opts.PollInterval,
		stale:    opts.StaleCycles,
		readBuf:  make([]byte, readChunk),
	}
	if l.clock == nil {
		l.clock = clockwork.NewRealClock()
	}
	if l.poll <= 0 {
		l.poll = DefaultPollInterval
	}
	if l.stale <= 0 {
		l.stale = DefaultStaleCycles
	}
	return l
}

func (l *Loop) Stats() Stats {
	return Stats{
		FramesIn:  l.framesIn.Load(),
		FramesOut: l.framesOut.Load(),
		Discards:  l.discards.Load(),
		Dropped:   l.dropped.Load(),
	}
}

// Run steps the loop until ctx is cancelled, returning nil, or the device
// disconnects, returning an error wrapping transport.ErrDisconnected.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().Msgf("device loop started, polling every %s", l.poll)
	defer log.Info().Msg("device loop stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := l.Step(); err != nil {
			log.Error().Err(err).Msg("device connection lost")
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.clock.After(l.poll):
		}
	}
}

// Step runs one read and write cycle without sleeping. Only a disconnection
// is returned as an error; every other fault is logged.
func (l *Loop) Step() error {
	if err := l.readFrames(); err != nil {
		return err
	}
	return l.writeOne()
}

func (l *Loop) readFrames() error {
	n, err := l.tr.Available()
	if err != nil {
		return l.fault("poll", err)
	}

	if n > 0 {
		got, err := l.tr.ReadInto(l.readBuf[:min(n, len(l.readBuf))])
		switch {
		case errors.Is(err, transport.ErrTimeout):
		case err != nil:
			return l.fault("read", err)
		default:
			l.frame = append(l.frame, l.readBuf[:got]...)
			if err := l.decodeFrames(); err != nil {
				return err
			}
		}
	}

	return l.checkStale()
}

func (l *Loop) decodeFrames() error {
	buf := l.frame
	for len(buf) > 0 {
		ev, used, err := protocol.DecodeButtonEvent(buf)
		if errors.Is(err, protocol.ErrIncomplete) {
			break
		}
		if err != nil {
			log.Warn().Err(err).Hex("bytes", l.frame).Msg("discarding malformed input")
			return l.resetInput()
		}

		buf = buf[used:]
		l.staleFor = 0
		l.framesIn.Add(1)
		log.Debug().Msgf("button frame received: %d", ev.Number)
		if !l.inbound.Push(ev) {
			log.Warn().Msgf("%s queue closed, dropping button %d", l.inbound.Name(), ev.Number)
		}
	}

	// keep only the undecoded tail
	n := copy(l.frame, buf)
	l.frame = l.frame[:n]
	return nil
}

// checkStale drops a partial frame once it has waited too many cycles for
// the rest of its bytes.
func (l *Loop) checkStale() error {
	if len(l.frame) == 0 {
		l.staleFor = 0
		return nil
	}

	l.staleFor++
	if l.staleFor < l.stale {
		return nil
	}

	log.Warn().Hex("bytes", l.frame).Msgf("partial frame stale after %d cycles, discarding", l.staleFor)
	return l.resetInput()
}

func (l *Loop) resetInput() error {
	l.frame = l.frame[:0]
	l.staleFor = 0
	l.discards.Add(1)
	if err := l.tr.DiscardInput(); err != nil {
		return l.fault("discard", err)
	}
	return nil
}

func (l *Loop) writeOne() error {
	msg, ok := l.outbound.TryPop()
	if !ok {
		return nil
	}

	data, err := protocol.EncodeDisplayMessage(msg)
	if err != nil {
		l.dropped.Add(1)
		log.Error().Err(err).Msg("dropping display message")
		return nil
	}

	if err := l.tr.Write(data); err != nil {
		l.dropped.Add(1)
		return l.fault("write", err)
	}

	l.framesOut.Add(1)
	broker.Send(l.events, broker.NewDisplaySent(msg.Lines))
	log.Debug().Msgf("display message sent: %d line(s), %d bytes", len(msg.Lines), len(data))
	return nil
}

// fault logs a transport error and swallows it unless the device is gone.
func (*Loop) fault(op string, err error) error {
	if transport.IsDisconnected(err) {
		if !errors.Is(err, transport.ErrDisconnected) {
			err = fmt.Errorf("%w: %w", transport.ErrDisconnected, err)
		}
		return fmt.Errorf("device %s: %w", op, err)
	}

	log.Error().Err(err).Msgf("device %s failed", op)
	return nil
}
