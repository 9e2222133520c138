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

package helpers

import (
	"bytes"

	"github.com/quickcommanddeck/deckbridge/pkg/helpers/syncutil"
	"github.com/quickcommanddeck/deckbridge/pkg/transport"
)

// FakeTransport is an in-memory transport.Transport. Bytes passed to Feed
// become readable and every Write is recorded. Safe for use while a device
// loop runs in another goroutine.
type FakeTransport struct {
	availErr   error
	readErr    error
	writeErr   error
	discardErr error
	pending    []byte
	written    [][]byte
	mu         syncutil.Mutex
	discards   int
	closed     bool
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// Feed appends bytes the device "sent".
func (f *FakeTransport) Feed(b ...byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, b...)
}

func (f *FakeTransport) SetAvailableError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availErr = err
}

func (f *FakeTransport) SetReadError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

func (f *FakeTransport) SetWriteError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *FakeTransport) SetDiscardError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discardErr = err
}

// Written returns a copy of every successful Write, in order.
func (f *FakeTransport) Written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	for i, w := range f.written {
		out[i] = bytes.Clone(w)
	}
	return out
}

// Pending is the number of fed bytes not yet read or discarded.
func (f *FakeTransport) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *FakeTransport) Discards() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.discards
}

func (f *FakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeTransport) Available() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.availErr != nil {
		return 0, f.availErr
	}
	return len(f.pending), nil
}

func (f *FakeTransport) ReadInto(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.pending) == 0 {
		return 0, transport.ErrTimeout
	}
	n := copy(buf, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *FakeTransport) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, bytes.Clone(p))
	return nil
}

func (f *FakeTransport) DiscardInput() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.discardErr != nil {
		return f.discardErr
	}
	f.pending = nil
	f.discards++
	return nil
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var _ transport.Transport = (*FakeTransport)(nil)
