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

// Package injector lets other programs on the host put text on the deck's
// display. Every entry point ends in Submitter.Submit, which only ever
// pushes onto the outbound queue.
package injector

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/quickcommanddeck/deckbridge/pkg/config"
	"github.com/quickcommanddeck/deckbridge/pkg/protocol"
	"github.com/quickcommanddeck/deckbridge/pkg/service/queue"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
)

// TextSubmitter is the capability shared by the D-Bus and HTTP endpoints.
type TextSubmitter interface {
	Submit(text string) string
}

type Submitter struct {
	outbound   *queue.Queue[protocol.DisplayMessage]
	columns    int
	brightness uint32
	durationMS uint32
}

func NewSubmitter(cfg *config.Instance, outbound *queue.Queue[protocol.DisplayMessage]) *Submitter {
	return &Submitter{
		outbound:   outbound,
		columns:    cfg.DisplayColumns(),
		brightness: cfg.Brightness(),
		durationMS: cfg.NotifDurationMS(),
	}
}

// Submit queues text for the display and returns the acknowledgement sent
// back to the caller. Empty text clears the display.
func (s *Submitter) Submit(text string) string {
	lines := ChunkText(text, s.columns)
	if len(lines) > protocol.MaxLines {
		log.Warn().Msgf(
			"injected text needs %d lines, display message holds %d; truncating",
			len(lines), protocol.MaxLines,
		)
		lines = lines[:protocol.MaxLines]
	}

	msg := protocol.DisplayMessage{
		Lines:      lines,
		Brightness: s.brightness,
		DurationMS: s.durationMS,
	}
	if !s.outbound.Push(msg) {
		log.Warn().Msgf("%s queue closed, dropping injected text", s.outbound.Name())
	} else {
		log.Debug().Msgf("injected text queued as %d line(s)", len(lines))
	}

	return fmt.Sprintf("Got: %q", text)
}

// ChunkText NFC-normalizes text and splits it into lines of at most width
// runes. A line is also cut early rather than exceed protocol.MaxLineBytes.
// Empty text yields no lines.
func ChunkText(text string, width int) []string {
	if width <= 0 {
		width = config.DefaultDisplayColumns
	}

	text = norm.NFC.String(strings.ToValidUTF8(text, "\uFFFD"))

	var lines []string
	start, runes := 0, 0
	for i, r := range text {
		size := utf8.RuneLen(r)
		if runes == width || i+size-start > protocol.MaxLineBytes {
			lines = append(lines, text[start:i])
			start, runes = i, 0
		}
		runes++
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
