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

package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the deck firmware.
	DefaultBaudRate = 115200
	// DefaultReadTimeout bounds ReadInto when no bytes are buffered.
	DefaultReadTimeout = 1000 * time.Millisecond

	// pollTimeout is the port timeout used while peeking for buffered
	// bytes in Available.
	pollTimeout = time.Millisecond
	// maxLookahead caps how much Available buffers in a single call.
	maxLookahead = 4096
	scratchSize  = 256
)

// SerialPort is the subset of serial.Port used by Serial (for mocking in
// tests).
type SerialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// PortFactory opens a serial port.
type PortFactory func(path string, mode *serial.Mode) (SerialPort, error)

// DefaultPortFactory opens real serial ports.
func DefaultPortFactory(path string, mode *serial.Mode) (SerialPort, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

// Options configures a serial transport. Zero values take the defaults.
type Options struct {
	PortFactory PortFactory
	Path        string
	BaudRate    int
	ReadTimeout time.Duration
}

// Serial is a Transport over a serial port: 8 data bits, no parity, one
// stop bit, no flow control.
type Serial struct {
	port        SerialPort
	path        string
	lookahead   []byte
	scratch     []byte
	readTimeout time.Duration
}

// Open opens the port described by opts.
func Open(opts Options) (*Serial, error) {
	if opts.Path == "" {
		return nil, errors.New("serial port path not set")
	}
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	factory := opts.PortFactory
	if factory == nil {
		factory = DefaultPortFactory
	}

	log.Info().Msgf("opening serial port %s at %d baud", opts.Path, opts.BaudRate)
	port, err := factory(opts.Path, &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", opts.Path, err)
	}

	if err := port.SetReadTimeout(pollTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set read timeout on serial port: %w", err)
	}

	return &Serial{
		port:        port,
		path:        opts.Path,
		readTimeout: opts.ReadTimeout,
		scratch:     make([]byte, scratchSize),
	}, nil
}

// Path returns the device path the port was opened with.
func (s *Serial) Path() string {
	return s.path
}

// Available peeks at the port with a near-zero timeout and keeps whatever
// arrived in the lookahead buffer, which ReadInto drains first.
func (s *Serial) Available() (int, error) {
	for len(s.lookahead) < maxLookahead {
		n, err := s.port.Read(s.scratch)
		if n > 0 {
			s.lookahead = append(s.lookahead, s.scratch[:n]...)
		}
		if err != nil {
			return len(s.lookahead), s.wrapErr("read", err)
		}
		if n == 0 {
			break
		}
	}
	return len(s.lookahead), nil
}

func (s *Serial) ReadInto(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	if len(s.lookahead) > 0 {
		n := copy(buf, s.lookahead)
		s.lookahead = s.lookahead[n:]
		if len(s.lookahead) == 0 {
			s.lookahead = nil
		}
		return n, nil
	}

	if err := s.port.SetReadTimeout(s.readTimeout); err != nil {
		return 0, fmt.Errorf("failed to set read timeout on %s: %w", s.path, err)
	}
	defer func() {
		if err := s.port.SetReadTimeout(pollTimeout); err != nil {
			log.Warn().Err(err).Msg("failed to restore serial poll timeout")
		}
	}()

	n, err := s.port.Read(buf)
	if err != nil {
		return n, s.wrapErr("read", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("read from %s: %w", s.path, ErrTimeout)
	}
	return n, nil
}

func (s *Serial) Write(p []byte) error {
	for written := 0; written < len(p); {
		n, err := s.port.Write(p[written:])
		if err != nil {
			return s.wrapErr("write", err)
		}
		if n == 0 {
			return fmt.Errorf("write to %s: short write after %d of %d bytes", s.path, written, len(p))
		}
		written += n
	}
	return nil
}

func (s *Serial) DiscardInput() error {
	s.lookahead = nil
	if err := s.port.ResetInputBuffer(); err != nil {
		return s.wrapErr("discard input", err)
	}
	return nil
}

func (s *Serial) Close() error {
	if err := s.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", s.path, err)
	}
	return nil
}

func (s *Serial) wrapErr(op string, err error) error {
	if IsDisconnected(err) && !errors.Is(err, ErrDisconnected) {
		return fmt.Errorf("%s %s: %w: %w", op, s.path, ErrDisconnected, err)
	}
	return fmt.Errorf("%s %s: %w", op, s.path, err)
}
