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

// Package cli holds the command line flags shared by the bridge binaries.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/quickcommanddeck/deckbridge/internal/telemetry"
	"github.com/quickcommanddeck/deckbridge/pkg/config"
	"github.com/quickcommanddeck/deckbridge/pkg/helpers"
	"github.com/quickcommanddeck/deckbridge/pkg/service/injector"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const sendTimeout = 5 * time.Second

type Flags struct {
	Config    *string
	Version   *bool
	ListPorts *bool
	Send      *string
	Debug     *bool
	Daemon    *bool

	fs        *flag.FlagSet
	listPorts func() ([]string, error)
	sendText  func(ctx context.Context, text string) (string, error)
	logDir    string
}

// SetupFlags defines the bridge flags on fs.
func SetupFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		Config: fs.String(
			"config",
			"",
			"path to config.toml (overridden by $"+config.CfgEnv+")",
		),
		Version: fs.Bool(
			"version",
			false,
			"print version and exit",
		),
		ListPorts: fs.Bool(
			"list-ports",
			false,
			"print detected serial devices and exit",
		),
		Send: fs.String(
			"send",
			"",
			"send text to a running bridge's display over dbus and exit",
		),
		Debug: fs.Bool(
			"debug",
			false,
			"enable debug logging",
		),
		Daemon: fs.Bool(
			"daemon",
			false,
			"also log to stderr",
		),
		fs:        fs,
		listPorts: helpers.GetSerialDeviceList,
		sendText:  injector.SendText,
		logDir:    helpers.LogDir(),
	}
}

func (f *Flags) isFlagPassed(name string) bool {
	found := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

// Pre parses args and handles the flags that need no config or logging.
// done is true when the program should exit without starting the bridge.
func (f *Flags) Pre(args []string, out io.Writer) (done bool, err error) {
	if err := f.fs.Parse(args); err != nil {
		return true, fmt.Errorf("failed to parse flags: %w", err)
	}

	switch {
	case *f.Version:
		_, _ = fmt.Fprintf(out, "Deck Bridge v%s\n", config.AppVersion)
		return true, nil
	case *f.ListPorts:
		ports, err := f.listPorts()
		if err != nil {
			return true, fmt.Errorf("failed to list serial ports: %w", err)
		}
		if len(ports) == 0 {
			_, _ = fmt.Fprintln(out, "no serial devices found")
		}
		for _, p := range ports {
			_, _ = fmt.Fprintln(out, p)
		}
		return true, nil
	}

	return false, nil
}

// Post handles the flags that talk to a running bridge. Logging is set up
// by this point.
func (f *Flags) Post(ctx context.Context, out io.Writer) (done bool, err error) {
	if !f.isFlagPassed("send") {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	reply, err := f.sendText(ctx, *f.Send)
	if err != nil {
		log.Error().Err(err).Msg("error sending text")
		return true, fmt.Errorf("failed to send text: %w", err)
	}
	_, _ = fmt.Fprintln(out, reply)
	return true, nil
}

// Setup starts logging, loads the config and enables error reporting if it
// is configured. The returned session id tags this run.
func (f *Flags) Setup(fs afero.Fs, writers []io.Writer) (*config.Instance, string, error) {
	if err := helpers.InitLogging(f.logDir, writers); err != nil {
		return nil, "", fmt.Errorf("failed to initialize logging: %w", err)
	}
	helpers.SetDebugLogging(*f.Debug)

	cfg, err := config.NewConfig(fs, helpers.DefaultConfigPath(*f.Config), config.BaseDefaults)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	helpers.SetDebugLogging(*f.Debug || cfg.DebugLogging())

	session := uuid.New().String()
	if err := telemetry.Init(telemetry.Options{
		DSN:     cfg.ErrorReportingDSN(),
		Session: session,
		Version: config.AppVersion,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg, session, nil
}
