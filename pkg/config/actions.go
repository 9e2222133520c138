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
	"slices"

	"github.com/rs/zerolog/log"
)

// ActionRecord is what the dispatcher does when a button with ID is pushed.
// Command and LogMessage are nil when not configured.
type ActionRecord struct {
	Command     *string
	LogMessage  *string
	ReportLines []string
	ID          uint8
}

func buildActions(cmds []Command) []ActionRecord {
	actions := make([]ActionRecord, 0, len(cmds))
	firstIndex := make(map[uint8]int, len(cmds))

	for i, c := range cmds {
		id := i
		if c.ID != nil {
			id = *c.ID
		}

		rec := ActionRecord{
			ID:          uint8(id), //nolint:gosec // validated range
			Command:     c.Command,
			LogMessage:  c.LogMessage,
			ReportLines: slices.Clone(c.ReportMessage),
		}

		if first, ok := firstIndex[rec.ID]; ok {
			log.Warn().Msgf(
				"command %d reuses id %d from command %d, both will run",
				i, rec.ID, first,
			)
		} else {
			firstIndex[rec.ID] = i
		}

		actions = append(actions, rec)
	}

	return actions
}
