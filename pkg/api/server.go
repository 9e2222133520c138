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

// Package api serves the local HTTP injector: a JSON endpoint that puts
// text on the deck display, plus a health check.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/quickcommanddeck/deckbridge/pkg/api/middleware"
	"github.com/quickcommanddeck/deckbridge/pkg/config"
	"github.com/quickcommanddeck/deckbridge/pkg/service/injector"
	"github.com/rs/zerolog/log"
)

const (
	RequestTimeout  = 10 * time.Second
	maxRequestBytes = 16 << 10
	maxTextRunes    = 1024
)

// Health is the body of GET /api/health.
type Health struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Session        string `json:"session,omitempty"`
	Port           string `json:"port,omitempty"`
	FramesIn       uint64 `json:"frames_in"`
	FramesOut      uint64 `json:"frames_out"`
	Discards       uint64 `json:"discards"`
	PendingDisplay int    `json:"pending_display"`
}

// HealthFunc reports live service state for the health endpoint.
type HealthFunc func() Health

type DisplayRequest struct {
	Text *string `json:"text" validate:"required,max=1024"`
}

type DisplayResponse struct {
	Reply string `json:"reply"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// NewRouter builds the HTTP handler. limiter may be nil to disable rate
// limiting.
func NewRouter(
	cfg *config.Instance,
	sub injector.TextSubmitter,
	health HealthFunc,
	limiter *middleware.IPRateLimiter,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.NoCache)
	r.Use(chimw.Timeout(RequestTimeout))
	r.Use(middleware.HTTPIPFilterMiddleware(middleware.NewIPFilter(cfg.APIAllowedIPs())))
	if origins := cfg.APIAllowedOrigins(); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	r.Get("/api/health", handleHealth(health))

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(middleware.HTTPRateLimitMiddleware(limiter))
		}
		r.Post("/api/display", handleDisplay(sub))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write json response")
	}
}

func handleHealth(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		h := Health{}
		if health != nil {
			h = health()
		}
		h.Status = "ok"
		h.Version = config.AppVersion
		writeJSON(w, http.StatusOK, h)
	}
}

func handleDisplay(sub injector.TextSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

		var req DisplayRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json body"})
			return
		}

		if err := requestValidator.Struct(&req); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error: fmt.Sprintf("text is required and at most %d characters", maxTextRunes),
			})
			return
		}

		log.Info().Str("remote", r.RemoteAddr).Msgf("http display request: %q", *req.Text)
		writeJSON(w, http.StatusOK, DisplayResponse{Reply: sub.Submit(*req.Text)})
	}
}

// Server is a running HTTP injector.
type Server struct {
	srv         *http.Server
	ln          net.Listener
	served      chan struct{}
	cleanupDone <-chan struct{}
	stopCleanup context.CancelFunc
}

// Start listens on cfg.APIListen() and serves in the background.
func Start(cfg *config.Instance, sub injector.TextSubmitter, health HealthFunc) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.APIListen())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.APIListen(), err)
	}
	return Serve(ln, cfg, sub, health), nil
}

// Serve serves the injector on an existing listener in the background.
func Serve(ln net.Listener, cfg *config.Instance, sub injector.TextSubmitter, health HealthFunc) *Server {
	limiter := middleware.NewIPRateLimiter(cfg.APIRequestsPerMinute(), clockwork.NewRealClock())
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())

	s := &Server{
		srv: &http.Server{
			Handler:           NewRouter(cfg, sub, health, limiter),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:          ln,
		served:      make(chan struct{}),
		cleanupDone: limiter.StartCleanup(cleanupCtx),
		stopCleanup: stopCleanup,
	}

	go func() {
		defer close(s.served)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http injector stopped")
		}
	}()

	log.Info().Msgf("http injector listening on %s", ln.Addr())
	return s
}

// Addr is the bound listen address, useful when port 0 was configured.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	defer func() {
		s.stopCleanup()
		<-s.cleanupDone
	}()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http injector shutdown: %w", err)
	}
	<-s.served
	return nil
}
