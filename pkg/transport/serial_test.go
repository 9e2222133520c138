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
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// fakePort replays scripted reads. Each Read returns the next chunk, or
// 0 bytes (a timeout) once the script is exhausted.
type fakePort struct {
	readErr  error
	writeErr error
	reads    [][]byte
	written  []byte
	timeouts []time.Duration
	resets   int
	closed   bool
	maxWrite int
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.reads) == 0 {
		if p.readErr != nil {
			return 0, p.readErr
		}
		return 0, nil
	}
	n := copy(b, p.reads[0])
	if n < len(p.reads[0]) {
		p.reads[0] = p.reads[0][n:]
	} else {
		p.reads = p.reads[1:]
	}
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if p.maxWrite > 0 && len(b) > p.maxWrite {
		b = b[:p.maxWrite]
	}
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.resets++
	p.reads = nil
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeouts = append(p.timeouts, t)
	return nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func openFake(t *testing.T, port *fakePort) *Serial {
	t.Helper()
	s, err := Open(Options{
		Path: "/dev/ttyFAKE0",
		PortFactory: func(path string, mode *serial.Mode) (SerialPort, error) {
			assert.Equal(t, "/dev/ttyFAKE0", path)
			assert.Equal(t, DefaultBaudRate, mode.BaudRate)
			assert.Equal(t, 8, mode.DataBits)
			assert.Equal(t, serial.NoParity, mode.Parity)
			assert.Equal(t, serial.OneStopBit, mode.StopBits)
			return port, nil
		},
	})
	require.NoError(t, err)
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(Options{})

	require.Error(t, err)
}

func TestOpen_FactoryError(t *testing.T) {
	t.Parallel()

	_, err := Open(Options{
		Path: "/dev/ttyMISSING",
		PortFactory: func(string, *serial.Mode) (SerialPort, error) {
			return nil, errors.New("no such file")
		},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/ttyMISSING")
}

func TestSerial_AvailableBuffersWithoutConsuming(t *testing.T) {
	t.Parallel()

	port := &fakePort{reads: [][]byte{{0x08}, {0x02, 0x08}}}
	s := openFake(t, port)

	n, err := s.Available()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// a second poll with nothing new reports the same count
	n, err = s.Available()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	buf := make([]byte, n)
	got, err := s.ReadInto(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Equal(t, []byte{0x08, 0x02, 0x08}, buf)

	n, err = s.Available()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSerial_ReadIntoPartialLookahead(t *testing.T) {
	t.Parallel()

	port := &fakePort{reads: [][]byte{{1, 2, 3, 4}}}
	s := openFake(t, port)
	_, err := s.Available()
	require.NoError(t, err)

	buf := make([]byte, 3)
	n, err := s.ReadInto(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf[:n])

	n, err = s.ReadInto(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, buf[:n])
}

func TestSerial_ReadIntoTimeout(t *testing.T) {
	t.Parallel()

	port := &fakePort{}
	s := openFake(t, port)

	_, err := s.ReadInto(make([]byte, 4))

	require.ErrorIs(t, err, ErrTimeout)
	// poll timeout on open, read timeout for the wait, poll timeout restored
	assert.Equal(t, []time.Duration{pollTimeout, DefaultReadTimeout, pollTimeout}, port.timeouts)
}

func TestSerial_ReadIntoDirect(t *testing.T) {
	t.Parallel()

	port := &fakePort{}
	s := openFake(t, port)
	port.reads = [][]byte{{0x08, 0x05}}

	buf := make([]byte, 8)
	n, err := s.ReadInto(buf)

	require.NoError(t, err)
	assert.Equal(t, []byte{0x08, 0x05}, buf[:n])
}

func TestSerial_Disconnected(t *testing.T) {
	t.Parallel()

	port := &fakePort{}
	s := openFake(t, port)
	port.readErr = io.EOF

	_, err := s.Available()

	require.ErrorIs(t, err, ErrDisconnected)
	assert.True(t, IsDisconnected(err))
}

func TestSerial_TransientReadError(t *testing.T) {
	t.Parallel()

	port := &fakePort{}
	s := openFake(t, port)
	port.readErr = errors.New("resource temporarily unavailable")

	_, err := s.Available()

	require.Error(t, err)
	assert.False(t, IsDisconnected(err))
}

func TestSerial_WriteLoopsOverShortWrites(t *testing.T) {
	t.Parallel()

	port := &fakePort{maxWrite: 2}
	s := openFake(t, port)

	err := s.Write([]byte{1, 2, 3, 4, 5})

	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, port.written)
}

func TestSerial_WriteError(t *testing.T) {
	t.Parallel()

	port := &fakePort{writeErr: errors.New("broken pipe")}
	s := openFake(t, port)

	err := s.Write([]byte{1})

	require.ErrorIs(t, err, ErrDisconnected)
}

func TestSerial_DiscardInputIdempotent(t *testing.T) {
	t.Parallel()

	port := &fakePort{reads: [][]byte{{0xde, 0xad}, {0xbe, 0xef}}}
	s := openFake(t, port)
	_, err := s.Available()
	require.NoError(t, err)

	require.NoError(t, s.DiscardInput())
	once, err := s.Available()
	require.NoError(t, err)

	require.NoError(t, s.DiscardInput())
	twice, err := s.Available()
	require.NoError(t, err)

	assert.Zero(t, once)
	assert.Zero(t, twice)
	assert.Equal(t, 2, port.resets)
}

func TestSerial_Close(t *testing.T) {
	t.Parallel()

	port := &fakePort{}
	s := openFake(t, port)

	require.NoError(t, s.Close())
	assert.True(t, port.closed)
	assert.Equal(t, "/dev/ttyFAKE0", s.Path())
}

func TestIsDisconnected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "sentinel", err: fmt.Errorf("wrapped: %w", ErrDisconnected), want: true},
		{name: "eof", err: io.EOF, want: true},
		{name: "io error text", err: errors.New("read /dev/ttyUSB0: input/output error"), want: true},
		{name: "no such device", err: errors.New("open: no such device"), want: true},
		{name: "timeout", err: ErrTimeout, want: false},
		{name: "generic", err: errors.New("something else"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsDisconnected(tt.err))
		})
	}
}
