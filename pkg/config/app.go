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

package config

import (
	"os"
	"path/filepath"
)

var AppVersion = "DEVELOPMENT"

const (
	AppName = "deckbridge"
	LogFile = "deckbridge.log"
	CfgFile = "config.toml"
	CfgEnv  = "DECKBRIDGE_CFG"
)

// ResolvePath picks the config file location: $DECKBRIDGE_CFG, then the
// explicit flag value, then config.toml inside configDir.
func ResolvePath(flagPath, configDir string) string {
	if env := os.Getenv(CfgEnv); env != "" {
		return env
	}
	if flagPath != "" {
		return flagPath
	}
	return filepath.Join(configDir, CfgFile)
}
