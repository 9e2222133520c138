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

// Package protocol encodes and decodes the frames exchanged with the deck
// firmware. The wire format is protobuf and must stay byte compatible with
// the firmware's communique.proto:
//
//	message ButtonPushed { int32 number = 1; }
//	message DisplayText  { repeated string line = 1; int32 brightness = 3;
//	                       int32 duration_ms = 4; bool flash_led = 5; }
//
// Frames carry no length prefix. The decoder therefore reports truncated
// input separately from corrupt input so callers can hold partial reads.
package protocol

import (
	"errors"
	"strconv"
)

const (
	// MaxLines is the largest number of lines a DisplayText may carry.
	MaxLines = 8
	// MaxLineBytes is the largest encoded size of a single line.
	MaxLineBytes = 64
	// MaxBrightness is the brightest backlight value the firmware accepts.
	MaxBrightness = 255
)

// field numbers from communique.proto
const (
	buttonNumberField      = 1
	displayLineField       = 1
	displayBrightnessField = 3
	displayDurationMSField = 4
	displayFlashLEDField   = 5
)

const maxInt32Value uint64 = 1<<31 - 1

var (
	// ErrIncomplete means the buffer ends part way through a frame. More
	// bytes may complete it.
	ErrIncomplete = errors.New("incomplete frame")
	// ErrMalformed means the bytes can never decode to a valid frame.
	ErrMalformed = errors.New("malformed frame")
	// ErrInvalidMessage is wrapped by every EncodeError.
	ErrInvalidMessage = errors.New("invalid display message")
)

// ButtonEvent is a button press reported by the deck.
type ButtonEvent struct {
	Number uint32
}

// DisplayMessage is text for the deck's display. Lines are shown in order
// for DurationMS milliseconds at the given backlight brightness.
type DisplayMessage struct {
	Lines      []string
	Brightness uint32
	DurationMS uint32
	FlashLED   bool
}

// DecodeError describes why inbound bytes were rejected. It always
// unwraps to ErrMalformed.
type DecodeError struct {
	Reason string
	Offset int
}

func (e *DecodeError) Error() string {
	return "malformed frame at byte " + strconv.Itoa(e.Offset) + ": " + e.Reason
}

func (*DecodeError) Unwrap() error {
	return ErrMalformed
}

// EncodeError reports a DisplayMessage field outside the range the
// firmware accepts. It always unwraps to ErrInvalidMessage.
type EncodeError struct {
	Field  string
	Reason string
}

func (e *EncodeError) Error() string {
	return "invalid display message " + e.Field + ": " + e.Reason
}

func (*EncodeError) Unwrap() error {
	return ErrInvalidMessage
}
