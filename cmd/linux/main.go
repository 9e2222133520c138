//go:build linux

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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/quickcommanddeck/deckbridge/internal/telemetry"
	"github.com/quickcommanddeck/deckbridge/pkg/cli"
	"github.com/quickcommanddeck/deckbridge/pkg/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

func main() {
	if err := run(); err != nil {
		telemetry.Flush()
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags(flag.CommandLine)

	done, err := flags.Pre(os.Args[1:], os.Stdout)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	var logWriters []io.Writer
	if *flags.Daemon {
		logWriters = []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}
	}

	cfg, session, err := flags.Setup(afero.NewOsFs(), logWriters)
	if err != nil {
		return err
	}
	defer telemetry.Close()

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if done, err := flags.Post(ctx, os.Stdout); done {
		return err
	}

	svc, err := service.Start(cfg, service.Deps{Session: session})
	if err != nil {
		log.Error().Err(err).Msg("error starting service")
		return fmt.Errorf("error starting service: %w", err)
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case <-svc.Done():
	}

	if err := svc.Stop(); err != nil {
		log.Error().Err(err).Msg("service stopped with error")
		return fmt.Errorf("service stopped: %w", err)
	}
	return nil
}
