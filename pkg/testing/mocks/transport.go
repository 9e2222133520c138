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

package mocks

import (
	"github.com/stretchr/testify/mock"
)

// MockTransport is a testify mock for transport.Transport.
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Available() (int, error) {
	args := m.Called()
	//nolint:wrapcheck // Mock returns are already wrapped by caller
	return args.Int(0), args.Error(1)
}

func (m *MockTransport) ReadInto(buf []byte) (int, error) {
	args := m.Called(buf)
	if data, ok := args.Get(0).([]byte); ok {
		n := copy(buf, data)
		//nolint:wrapcheck // Mock returns are already wrapped by caller
		return n, args.Error(1)
	}
	//nolint:wrapcheck // Mock returns are already wrapped by caller
	return 0, args.Error(1)
}

func (m *MockTransport) Write(p []byte) error {
	args := m.Called(p)
	//nolint:wrapcheck // Mock returns are already wrapped by caller
	return args.Error(0)
}

func (m *MockTransport) DiscardInput() error {
	args := m.Called()
	//nolint:wrapcheck // Mock returns are already wrapped by caller
	return args.Error(0)
}

func (m *MockTransport) Close() error {
	args := m.Called()
	//nolint:wrapcheck // Mock returns are already wrapped by caller
	return args.Error(0)
}
