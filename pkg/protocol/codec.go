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
	"fmt"
	"io"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// DecodeButtonEvent decodes the ButtonPushed frame at the head of b and
// returns it with the number of bytes consumed. Every occurrence of the
// number field is treated as one frame, so several presses delivered in a
// single read decode one after another.
//
// ErrIncomplete is returned when b ends inside the frame. Any other error
// is a *DecodeError.
func DecodeButtonEvent(b []byte) (ButtonEvent, int, error) {
	if len(b) == 0 {
		return ButtonEvent{}, 0, ErrIncomplete
	}

	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return ButtonEvent{}, 0, parseError(n, 0, "tag")
	}
	if num != buttonNumberField || typ != protowire.VarintType {
		return ButtonEvent{}, 0, &DecodeError{
			Offset: 0,
			Reason: fmt.Sprintf("unexpected field %d with wire type %d", num, typ),
		}
	}

	v, m := protowire.ConsumeVarint(b[n:])
	if m < 0 {
		return ButtonEvent{}, 0, parseError(m, n, "button number")
	}
	// negative int32 values arrive sign extended to 64 bits
	if v > maxInt32Value {
		return ButtonEvent{}, 0, &DecodeError{
			Offset: n,
			Reason: fmt.Sprintf("button number %d out of range", int64(v)),
		}
	}

	return ButtonEvent{Number: uint32(v)}, n + m, nil
}

// EncodeButtonEvent is the firmware side of DecodeButtonEvent. The number
// field is always written, so button 0 is still a non-empty frame.
func EncodeButtonEvent(ev ButtonEvent) []byte {
	b := protowire.AppendTag(nil, buttonNumberField, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(ev.Number))
}

// EncodeDisplayMessage encodes m as a DisplayText frame. Zero scalars are
// omitted as in proto3.
func EncodeDisplayMessage(m DisplayMessage) ([]byte, error) {
	if err := validateDisplayMessage(m); err != nil {
		return nil, err
	}

	var b []byte
	for _, line := range m.Lines {
		b = protowire.AppendTag(b, displayLineField, protowire.BytesType)
		b = protowire.AppendString(b, line)
	}
	if m.Brightness != 0 {
		b = protowire.AppendTag(b, displayBrightnessField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Brightness))
	}
	if m.DurationMS != 0 {
		b = protowire.AppendTag(b, displayDurationMSField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.DurationMS))
	}
	if m.FlashLED {
		b = protowire.AppendTag(b, displayFlashLEDField, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}

	return b, nil
}

func validateDisplayMessage(m DisplayMessage) error {
	if len(m.Lines) > MaxLines {
		return &EncodeError{
			Field:  "lines",
			Reason: fmt.Sprintf("%d lines exceeds maximum of %d", len(m.Lines), MaxLines),
		}
	}
	for i, line := range m.Lines {
		if len(line) > MaxLineBytes {
			return &EncodeError{
				Field:  fmt.Sprintf("lines[%d]", i),
				Reason: fmt.Sprintf("%d bytes exceeds maximum of %d", len(line), MaxLineBytes),
			}
		}
		if !utf8.ValidString(line) {
			return &EncodeError{
				Field:  fmt.Sprintf("lines[%d]", i),
				Reason: "not valid UTF-8",
			}
		}
	}
	if m.Brightness > MaxBrightness {
		return &EncodeError{
			Field:  "brightness",
			Reason: fmt.Sprintf("%d outside 0-%d", m.Brightness, MaxBrightness),
		}
	}
	if uint64(m.DurationMS) > maxInt32Value {
		return &EncodeError{
			Field:  "duration_ms",
			Reason: fmt.Sprintf("%d does not fit in int32", m.DurationMS),
		}
	}
	return nil
}

// DecodeDisplayMessage is the firmware side of EncodeDisplayMessage. The
// whole buffer must hold exactly one DisplayText. Unknown fields are
// skipped.
func DecodeDisplayMessage(b []byte) (DisplayMessage, error) {
	var m DisplayMessage
	offset := 0

	for offset < len(b) {
		num, typ, n := protowire.ConsumeTag(b[offset:])
		if n < 0 {
			return DisplayMessage{}, parseError(n, offset, "tag")
		}
		offset += n

		switch {
		case num == displayLineField && typ == protowire.BytesType:
			s, m2 := protowire.ConsumeString(b[offset:])
			if m2 < 0 {
				return DisplayMessage{}, parseError(m2, offset, "line")
			}
			m.Lines = append(m.Lines, s)
			offset += m2
		case num == displayBrightnessField && typ == protowire.VarintType:
			v, m2 := protowire.ConsumeVarint(b[offset:])
			if m2 < 0 {
				return DisplayMessage{}, parseError(m2, offset, "brightness")
			}
			if v > maxInt32Value {
				return DisplayMessage{}, &DecodeError{Offset: offset, Reason: "negative brightness"}
			}
			m.Brightness = uint32(v)
			offset += m2
		case num == displayDurationMSField && typ == protowire.VarintType:
			v, m2 := protowire.ConsumeVarint(b[offset:])
			if m2 < 0 {
				return DisplayMessage{}, parseError(m2, offset, "duration_ms")
			}
			if v > maxInt32Value {
				return DisplayMessage{}, &DecodeError{Offset: offset, Reason: "negative duration"}
			}
			m.DurationMS = uint32(v)
			offset += m2
		case num == displayFlashLEDField && typ == protowire.VarintType:
			v, m2 := protowire.ConsumeVarint(b[offset:])
			if m2 < 0 {
				return DisplayMessage{}, parseError(m2, offset, "flash_led")
			}
			m.FlashLED = protowire.DecodeBool(v)
			offset += m2
		case num == displayLineField || num == displayBrightnessField ||
			num == displayDurationMSField || num == displayFlashLEDField:
			return DisplayMessage{}, &DecodeError{
				Offset: offset - n,
				Reason: fmt.Sprintf("field %d has wrong wire type %d", num, typ),
			}
		default:
			m2 := protowire.ConsumeFieldValue(num, typ, b[offset:])
			if m2 < 0 {
				return DisplayMessage{}, parseError(m2, offset, "unknown field")
			}
			offset += m2
		}
	}

	return m, nil
}

// parseError maps a negative protowire length to ErrIncomplete or a
// *DecodeError.
func parseError(n, offset int, what string) error {
	err := protowire.ParseError(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrIncomplete
	}
	return &DecodeError{
		Offset: offset,
		Reason: fmt.Sprintf("invalid %s: %v", what, err),
	}
}
