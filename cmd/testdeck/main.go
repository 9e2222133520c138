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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/quickcommanddeck/deckbridge/pkg/helpers"
	"github.com/quickcommanddeck/deckbridge/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// testdeck stands in for the deck hardware. Point it at one end of a pty
// pair and the bridge at the other:
//
//	socat -d -d pty,raw,echo=0 pty,raw,echo=0

const pollInterval = 20 * time.Millisecond

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	port := flag.String("port", "", "serial port to emulate the deck on (default: first detected)")
	baud := flag.Int("baud", transport.DefaultBaudRate, "baud rate")
	flag.Parse()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "deck> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: rl.Stderr()})

	path, err := helpers.ResolveSerialPort(*port)
	if err != nil {
		return fmt.Errorf("failed to resolve serial port: %w", err)
	}
	tr, err := transport.Open(transport.Options{Path: path, BaudRate: *baud, ReadTimeout: pollInterval})
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := &deck{tr: tr, out: rl.Stdout()}
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := d.poll(); err != nil {
				log.Error().Err(err).Msg("display link lost")
				stop()
				return
			}
		}
	}()

	_, _ = fmt.Fprintf(rl.Stdout(), "emulating deck on %s, type button numbers to press them, 'quit' to exit\n", path)
	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if line == "" {
				break
			}
			continue
		} else if err != nil {
			break
		}

		input := strings.TrimSpace(line)
		switch input {
		case "":
			continue
		case "quit", "exit", "q":
			stop()
			continue
		}

		buttons, err := parseButtons(input)
		if err != nil {
			_, _ = fmt.Fprintln(rl.Stdout(), err)
			continue
		}
		if err := d.press(buttons); err != nil {
			log.Error().Err(err).Msg("failed to press button")
		}
	}

	stop()
	<-pollDone
	return nil
}
