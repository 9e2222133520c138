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

// Package transport owns the physical link to the deck. A Transport is not
// safe for concurrent use; the device loop is its only user.
package transport

import (
	"errors"
	"io"
	"strings"

	"go.bug.st/serial"
)

var (
	// ErrDisconnected marks a link that will not recover without reopening
	// the port.
	ErrDisconnected = errors.New("device disconnected")
	// ErrTimeout is returned by ReadInto when nothing arrived within the
	// read timeout.
	ErrTimeout = errors.New("read timed out")
)

// Transport is a byte link to the deck.
type Transport interface {
	// Available returns the number of bytes ready to read. It never blocks.
	Available() (int, error)
	// ReadInto reads up to len(buf) bytes, waiting at most the read timeout.
	ReadInto(buf []byte) (int, error)
	// Write sends p in full or returns an error. It is never retried.
	Write(p []byte) error
	// DiscardInput drops everything received but not yet read.
	DiscardInput() error
	Close() error
}

// IsDisconnected reports whether err means the device is gone.
func IsDisconnected(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDisconnected) || errors.Is(err, io.EOF) {
		return true
	}

	if code, ok := portErrorCode(err); ok {
		switch code {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true
		case serial.PortBusy, serial.PermissionDenied, serial.InvalidSpeed,
			serial.InvalidDataBits, serial.InvalidParity, serial.InvalidStopBits,
			serial.InvalidTimeoutValue, serial.ErrorEnumeratingPorts,
			serial.FunctionNotImplemented:
			return false
		default:
			return false
		}
	}

	// OS level errors the serial library passes through unwrapped
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "device not configured") ||
		strings.Contains(errStr, "input/output error") ||
		strings.Contains(errStr, "no such device") ||
		strings.Contains(errStr, "device not found") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "bad file descriptor")
}

// portErrorCode extracts the code from a serial.PortError, which the
// library returns both by value and by pointer.
func portErrorCode(err error) (serial.PortErrorCode, bool) {
	var ptr *serial.PortError
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code(), true
	}
	var val serial.PortError
	if errors.As(err, &val) {
		return val.Code(), true
	}
	return 0, false
}
