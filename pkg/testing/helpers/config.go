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
	"path/filepath"
	"testing"

	"github.com/quickcommanddeck/deckbridge/pkg/config"
	"github.com/stretchr/testify/require"
)

// NewTestConfig writes the default config into configDir on fs and loads it.
func NewTestConfig(fs *FSHelper, configDir string) (*config.Instance, error) {
	//nolint:wrapcheck // returned as-is for test assertions
	return config.NewConfig(fs.Fs, filepath.Join(configDir, config.CfgFile), config.BaseDefaults)
}

// NewConfigWith builds an in-memory config from the defaults after applying
// mutate. The test fails if the result does not validate.
func NewConfigWith(t *testing.T, mutate func(*config.Values)) *config.Instance {
	t.Helper()

	vals := config.BaseDefaults
	if mutate != nil {
		mutate(&vals)
	}

	cfg, err := config.FromValues(vals)
	require.NoError(t, err)
	return cfg
}

// Ptr returns a pointer to v, for optional config fields.
func Ptr[T any](v T) *T {
	return &v
}
