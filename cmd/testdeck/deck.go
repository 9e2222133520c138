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
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/quickcommanddeck/deckbridge/pkg/protocol"
	"github.com/quickcommanddeck/deckbridge/pkg/transport"
)

// deck plays the firmware side of the link.
type deck struct {
	tr  transport.Transport
	out io.Writer
	buf []byte
}

// poll collects display bytes. Display frames carry no length, so the
// first poll that finds the line idle ends the frame.
func (d *deck) poll() error {
	n, err := d.tr.Available()
	if err != nil {
		return fmt.Errorf("failed to poll port: %w", err)
	}
	if n == 0 {
		d.flush()
		return nil
	}

	chunk := make([]byte, n)
	m, err := d.tr.ReadInto(chunk)
	if err != nil && !errors.Is(err, transport.ErrTimeout) {
		return fmt.Errorf("failed to read port: %w", err)
	}
	d.buf = append(d.buf, chunk[:m]...)
	return nil
}

func (d *deck) flush() {
	if len(d.buf) == 0 {
		return
	}
	msg, err := protocol.DecodeDisplayMessage(d.buf)
	d.buf = d.buf[:0]
	if err != nil {
		_, _ = fmt.Fprintf(d.out, "bad display frame: %v\n", err)
		return
	}
	printDisplay(d.out, msg)
}

func printDisplay(w io.Writer, msg protocol.DisplayMessage) {
	flash := ""
	if msg.FlashLED {
		flash = ", flash"
	}
	_, _ = fmt.Fprintf(w, "display (brightness %d, %d ms%s):\n", msg.Brightness, msg.DurationMS, flash)
	for _, line := range msg.Lines {
		_, _ = fmt.Fprintf(w, "  |%s|\n", line)
	}
}

func (d *deck) press(buttons []uint32) error {
	for _, b := range buttons {
		if err := d.tr.Write(protocol.EncodeButtonEvent(protocol.ButtonEvent{Number: b})); err != nil {
			return fmt.Errorf("failed to send button %d: %w", b, err)
		}
	}
	return nil
}

// parseButtons reads space separated button numbers.
func parseButtons(line string) ([]uint32, error) {
	fields := strings.Fields(line)
	buttons := make([]uint32, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseUint(f, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("invalid button %q", f)
		}
		buttons = append(buttons, uint32(n))
	}
	return buttons, nil
}
