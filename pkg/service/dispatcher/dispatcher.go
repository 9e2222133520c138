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

// Package dispatcher turns button events into configured actions: a log
// line, an optional shell command and an optional display notification.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/quickcommanddeck/deckbridge/pkg/config"
	"github.com/quickcommanddeck/deckbridge/pkg/helpers/command"
	"github.com/quickcommanddeck/deckbridge/pkg/protocol"
	"github.com/quickcommanddeck/deckbridge/pkg/service/broker"
	"github.com/quickcommanddeck/deckbridge/pkg/service/queue"
	"github.com/rs/zerolog/log"
)

type Dispatcher struct {
	exec       command.Executor
	inbound    *queue.Queue[protocol.ButtonEvent]
	outbound   *queue.Queue[protocol.DisplayMessage]
	events     chan<- broker.Event
	actions    []config.ActionRecord
	timeout    time.Duration
	brightness uint32
	durationMS uint32
	notify     bool
}

func New(
	cfg *config.Instance,
	exec command.Executor,
	inbound *queue.Queue[protocol.ButtonEvent],
	outbound *queue.Queue[protocol.DisplayMessage],
) *Dispatcher {
	return &Dispatcher{
		exec:       exec,
		inbound:    inbound,
		outbound:   outbound,
		actions:    cfg.Actions(),
		timeout:    cfg.CommandTimeout(),
		notify:     cfg.SendCompletedNotifs(),
		brightness: cfg.Brightness(),
		durationMS: cfg.NotifDurationMS(),
	}
}

// WithEvents makes the dispatcher report presses and finished commands on
// ch. Call before Run.
func (d *Dispatcher) WithEvents(ch chan<- broker.Event) *Dispatcher {
	d.events = ch
	return d
}

// Run handles inbound events in arrival order until ctx is cancelled or the
// inbound queue is closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Info().Msgf("dispatcher started with %d action(s)", len(d.actions))
	defer log.Info().Msg("dispatcher stopped")

	for {
		ev, err := d.inbound.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("inbound queue: %w", err)
		}

		d.Dispatch(ctx, ev)
	}
}

// Dispatch runs every action whose id matches the button, in configuration
// order, and returns how many matched.
func (d *Dispatcher) Dispatch(ctx context.Context, ev protocol.ButtonEvent) int {
	matched := 0
	for i := range d.actions {
		a := &d.actions[i]
		if uint32(a.ID) != ev.Number {
			continue
		}
		matched++
		d.runAction(ctx, a)
	}

	if matched == 0 {
		log.Error().Msgf("no command configured for button %d", ev.Number)
	}
	broker.Send(d.events, broker.NewButtonPressed(ev.Number, matched))
	return matched
}

func (d *Dispatcher) runAction(ctx context.Context, a *config.ActionRecord) {
	if a.LogMessage != nil {
		log.Info().Uint8("button", a.ID).Msg(*a.LogMessage)
	} else {
		log.Info().Msgf("button %d pressed", a.ID)
	}

	if a.Command != nil {
		d.runCommand(ctx, a.ID, *a.Command)
	}

	if !d.notify {
		return
	}

	msg := protocol.DisplayMessage{
		Lines:      slices.Clone(a.ReportLines),
		Brightness: d.brightness,
		DurationMS: d.durationMS,
	}
	if !d.outbound.Push(msg) {
		log.Warn().Msgf("%s queue closed, dropping notification for button %d", d.outbound.Name(), a.ID)
	}
}

func (d *Dispatcher) runCommand(ctx context.Context, id uint8, cmd string) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := d.exec.Run(ctx, cmd)
	if err != nil {
		log.Error().Err(err).Uint8("button", id).Msg("failed to run command")
		broker.Send(d.events, broker.NewActionCompleted(uint32(id), cmd, -1))
		return
	}
	broker.Send(d.events, broker.NewActionCompleted(uint32(id), cmd, res.ExitCode))

	if !res.Success() {
		log.Warn().
			Uint8("button", id).
			Str("stderr", strings.TrimSpace(res.Stderr)).
			Msgf("command exited with status %d: %s", res.ExitCode, cmd)
		return
	}

	log.Debug().
		Uint8("button", id).
		Str("stdout", strings.TrimSpace(res.Stdout)).
		Dur("took", time.Since(start)).
		Msg("command finished")
}
