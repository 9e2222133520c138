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

	"github.com/adrg/xdg"
	"github.com/quickcommanddeck/deckbridge/pkg/config"
)

// ConfigDir is the per-user directory holding config.toml.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, config.AppName)
}

// LogDir is the per-user directory holding the rotating log file.
func LogDir() string {
	return filepath.Join(xdg.StateHome, config.AppName)
}

// DefaultConfigPath resolves the config file location. The environment
// variable wins over the flag, and the flag over the XDG default.
func DefaultConfigPath(flagPath string) string {
	return config.ResolvePath(flagPath, ConfigDir())
}
