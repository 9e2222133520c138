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

package injector

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/quickcommanddeck/deckbridge/pkg/protocol"
	"golang.org/x/text/unicode/norm"
	"pgregory.net/rapid"
)

// TestPropertyChunkTextBounds verifies every chunk fits the requested width
// and the wire limit, and that no text is lost.
func TestPropertyChunkTextBounds(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		width := rapid.IntRange(1, 64).Draw(t, "width")

		lines := ChunkText(text, width)

		for i, line := range lines {
			if line == "" {
				t.Fatalf("line %d is empty", i)
			}
			if n := utf8.RuneCountInString(line); n > width {
				t.Fatalf("line %d has %d runes, width %d", i, n, width)
			}
			if len(line) > protocol.MaxLineBytes {
				t.Fatalf("line %d has %d bytes", i, len(line))
			}
		}

		want := norm.NFC.String(strings.ToValidUTF8(text, "\uFFFD"))
		if got := strings.Join(lines, ""); got != want {
			t.Fatalf("joined chunks %q, want %q", got, want)
		}
	})
}

// TestPropertyChunkTextFillsLines verifies only the last chunk may be short
// when all runes are single byte.
func TestPropertyChunkTextFillsLines(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[ -~]{0,200}`).Draw(t, "text")
		width := rapid.IntRange(1, 64).Draw(t, "width")

		lines := ChunkText(text, width)

		for i := 0; i+1 < len(lines); i++ {
			if len(lines[i]) != width {
				t.Fatalf("line %d has %d runes before the last line, width %d", i, len(lines[i]), width)
			}
		}
	})
}
