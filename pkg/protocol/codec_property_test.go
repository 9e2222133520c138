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

package protocol

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func displayMessageGen() *rapid.Generator[DisplayMessage] {
	return rapid.Custom(func(t *rapid.T) DisplayMessage {
		lines := rapid.SliceOfN(
			rapid.StringOfN(rapid.Rune(), 0, 16, MaxLineBytes),
			0, MaxLines,
		).Draw(t, "lines")
		// multi-byte runes can push a 16 rune line past the byte limit
		kept := lines[:0]
		for _, l := range lines {
			if len(l) <= MaxLineBytes {
				kept = append(kept, l)
			}
		}
		return DisplayMessage{
			Lines:      kept,
			Brightness: rapid.Uint32Range(0, MaxBrightness).Draw(t, "brightness"),
			DurationMS: rapid.Uint32Range(0, 1<<31-1).Draw(t, "duration"),
			FlashLED:   rapid.Bool().Draw(t, "flash"),
		}
	})
}

// TestPropertyDisplayMessageRoundTrip verifies the firmware side decoder
// reproduces every encoded field.
func TestPropertyDisplayMessageRoundTrip(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		msg := displayMessageGen().Draw(t, "msg")

		b, err := EncodeDisplayMessage(msg)
		if err != nil {
			t.Fatalf("encode failed for valid message: %v", err)
		}

		got, err := DecodeDisplayMessage(b)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if len(got.Lines) != len(msg.Lines) {
			t.Fatalf("line count: got %d, want %d", len(got.Lines), len(msg.Lines))
		}
		for i := range msg.Lines {
			if got.Lines[i] != msg.Lines[i] {
				t.Fatalf("line %d: got %q, want %q", i, got.Lines[i], msg.Lines[i])
			}
		}
		if got.Brightness != msg.Brightness || got.DurationMS != msg.DurationMS || got.FlashLED != msg.FlashLED {
			t.Fatalf("scalars: got %+v, want %+v", got, msg)
		}
	})
}

// TestPropertyButtonEventRoundTrip verifies every int32 range button number
// survives a firmware encode and host decode.
func TestPropertyButtonEventRoundTrip(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Uint32Range(0, 1<<31-1).Draw(t, "number")
		b := EncodeButtonEvent(ButtonEvent{Number: n})

		ev, consumed, err := DecodeButtonEvent(b)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if ev.Number != n || consumed != len(b) {
			t.Fatalf("got %d (%d bytes), want %d (%d bytes)", ev.Number, consumed, n, len(b))
		}
	})
}

// TestPropertyTruncatedFrameIsIncomplete verifies every strict prefix of a
// valid frame asks for more bytes instead of reporting corruption.
func TestPropertyTruncatedFrameIsIncomplete(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Uint32Range(0, 1<<31-1).Draw(t, "number")
		b := EncodeButtonEvent(ButtonEvent{Number: n})
		cut := rapid.IntRange(0, len(b)-1).Draw(t, "cut")

		_, _, err := DecodeButtonEvent(b[:cut])
		if !errors.Is(err, ErrIncomplete) {
			t.Fatalf("prefix %x: got %v, want ErrIncomplete", b[:cut], err)
		}
	})
}
