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

// Package telemetry sends error level logs to a user supplied Sentry DSN.
// It is off unless a DSN is configured, and home directory paths are
// scrubbed before anything leaves the machine.
package telemetry

import (
	"fmt"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	sentryzerolog "github.com/getsentry/sentry-go/zerolog"
	"github.com/quickcommanddeck/deckbridge/pkg/config"
	"github.com/quickcommanddeck/deckbridge/pkg/helpers"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const flushTimeout = 2 * time.Second

// Options configures error reporting. An empty DSN disables it.
type Options struct {
	DSN     string
	Session string
	Version string
}

type scrubber struct {
	re   *regexp.Regexp
	repl string
}

var scrubbers = []scrubber{
	{regexp.MustCompile(`(?i)/home/[^/\s]+/`), "/home/<user>/"},
	{regexp.MustCompile(`(?i)/Users/[^/\s]+/`), "/Users/<user>/"},
	{regexp.MustCompile(`(?i)\b[a-z]:\\Users\\[^\\\s]+\\`), `C:\Users\<user>\`},
	{regexp.MustCompile(`/root/`), "/<root>/"},
}

var (
	mu      sync.Mutex
	writer  *sentryzerolog.Writer
	enabled bool
)

// Init starts reporting and adds a Sentry sink to the global logger.
func Init(opts Options) error {
	if opts.DSN == "" {
		log.Debug().Msg("error reporting disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Release:          config.AppName + "@" + opts.Version,
		Environment:      runtime.GOOS,
		AttachStacktrace: true,
		SendDefaultPII:   false,
		MaxBreadcrumbs:   0,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return scrubEvent(event)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("session", opts.Session)
		scope.SetTag("arch", runtime.GOARCH)
	})

	w, err := sentryzerolog.NewWithHub(sentry.CurrentHub(), sentryzerolog.Options{
		Levels:       []zerolog.Level{zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel},
		FlushTimeout: flushTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create sentry log writer: %w", err)
	}

	mu.Lock()
	writer = w
	enabled = true
	mu.Unlock()

	log.Logger = log.Output(zerolog.MultiLevelWriter(helpers.LogWriter(), w)).
		With().Timestamp().Caller().Logger()

	log.Info().Msg("error reporting enabled")
	return nil
}

// Enabled reports whether Init turned reporting on.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Flush waits for queued events. Call it before os.Exit.
func Flush() {
	if !Enabled() {
		return
	}
	sentry.Flush(flushTimeout)
}

// Close flushes and detaches the Sentry writer. Safe to call more than once.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}
	enabled = false
	_ = writer.Close()
	sentry.Flush(flushTimeout)
}

func scrubEvent(event *sentry.Event) *sentry.Event {
	event.ServerName = ""
	event.User = sentry.User{}
	event.Message = scrub(event.Message)

	for i := range event.Exception {
		ex := &event.Exception[i]
		ex.Value = scrub(ex.Value)
		if ex.Stacktrace == nil {
			continue
		}
		for j := range ex.Stacktrace.Frames {
			f := &ex.Stacktrace.Frames[j]
			f.AbsPath = scrub(f.AbsPath)
			f.Filename = scrub(f.Filename)
		}
	}

	for k, v := range event.Extra {
		if s, ok := v.(string); ok {
			event.Extra[k] = scrub(s)
		}
	}

	return event
}

func scrub(s string) string {
	for _, sc := range scrubbers {
		s = sc.re.ReplaceAllString(s, sc.repl)
	}
	return s
}
