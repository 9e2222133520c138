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
	"context"

	"github.com/quickcommanddeck/deckbridge/pkg/helpers/command"
	"github.com/stretchr/testify/mock"
)

// MockCommandExecutor is a testify mock for command.Executor.
type MockCommandExecutor struct {
	mock.Mock
}

// Run mocks running a shell command line.
//
// Example:
//
//	mockCmd := &MockCommandExecutor{}
//	mockCmd.On("Run", mock.Anything, "echo hi").Return(command.Result{}, nil)
func (m *MockCommandExecutor) Run(ctx context.Context, cmd string) (command.Result, error) {
	args := m.Called(ctx, cmd)
	res, _ := args.Get(0).(command.Result)
	//nolint:wrapcheck // Mock returns are already wrapped by caller
	return res, args.Error(1)
}
