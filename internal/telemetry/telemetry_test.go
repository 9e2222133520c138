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

package telemetry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrub(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "system path", input: "/usr/bin/deckbridge", expected: "/usr/bin/deckbridge"},
		{
			name:     "linux home",
			input:    "/home/ana/.config/deckbridge/config.toml",
			expected: "/home/<user>/.config/deckbridge/config.toml",
		},
		{
			name:     "root home",
			input:    "open /root/.local/state/deckbridge/deckbridge.log",
			expected: "open /<root>/.local/state/deckbridge/deckbridge.log",
		},
		{
			name:     "macos users",
			input:    "/users/ana/Library/deckbridge",
			expected: "/Users/<user>/Library/deckbridge",
		},
		{
			name:     "windows users",
			input:    `d:\Users\Ana\AppData\deckbridge`,
			expected: `C:\Users\<user>\AppData\deckbridge`,
		},
		{
			name:     "several paths in one message",
			input:    "command /home/ana/bin/a.sh exited, see /home/bo/log",
			expected: "command /home/<user>/bin/a.sh exited, see /home/<user>/log",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, scrub(tt.input))
		})
	}
}

func TestScrubEvent(t *testing.T) {
	t.Parallel()

	event := &sentry.Event{
		ServerName: "ana-laptop",
		Message:    "failed to read /home/ana/.config/deckbridge/config.toml",
		User:       sentry.User{Username: "ana"},
		Exception: []sentry.Exception{{
			Value: "open /home/ana/x: permission denied",
			Stacktrace: &sentry.Stacktrace{Frames: []sentry.Frame{{
				AbsPath:  "/home/ana/src/deckbridge/main.go",
				Filename: "main.go",
			}}},
		}, {
			Value: "no stacktrace",
		}},
		Extra: map[string]any{"path": "/home/ana/a", "count": 3},
	}

	got := scrubEvent(event)

	assert.Empty(t, got.ServerName)
	assert.Empty(t, got.User.Username)
	assert.Equal(t, "failed to read /home/<user>/.config/deckbridge/config.toml", got.Message)
	assert.Equal(t, "open /home/<user>/x: permission denied", got.Exception[0].Value)
	assert.Equal(t, "/home/<user>/src/deckbridge/main.go", got.Exception[0].Stacktrace.Frames[0].AbsPath)
	assert.Equal(t, "main.go", got.Exception[0].Stacktrace.Frames[0].Filename)
	assert.Equal(t, "/home/<user>/a", got.Extra["path"])
	assert.Equal(t, 3, got.Extra["count"])
}

func TestInit_EmptyDSNDisabled(t *testing.T) {
	t.Parallel()

	require.NoError(t, Init(Options{Session: "s"}))
	assert.False(t, Enabled())
	Flush()
	Close()
}

func TestInit_BadDSN(t *testing.T) {
	t.Parallel()

	err := Init(Options{DSN: "not a dsn", Session: "s", Version: "test"})
	require.Error(t, err)
	assert.False(t, Enabled())
}
