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

// Package service wires the deck bridge together: the device loop, the
// dispatcher and the optional text injectors, joined by two queues.
package service

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/quickcommanddeck/deckbridge/pkg/api"
	"github.com/quickcommanddeck/deckbridge/pkg/config"
	"github.com/quickcommanddeck/deckbridge/pkg/helpers"
	"github.com/quickcommanddeck/deckbridge/pkg/helpers/command"
	"github.com/quickcommanddeck/deckbridge/pkg/protocol"
	"github.com/quickcommanddeck/deckbridge/pkg/service/broker"
	"github.com/quickcommanddeck/deckbridge/pkg/service/deviceio"
	"github.com/quickcommanddeck/deckbridge/pkg/service/discovery"
	"github.com/quickcommanddeck/deckbridge/pkg/service/dispatcher"
	"github.com/quickcommanddeck/deckbridge/pkg/service/injector"
	"github.com/quickcommanddeck/deckbridge/pkg/service/publishers"
	"github.com/quickcommanddeck/deckbridge/pkg/service/queue"
	"github.com/quickcommanddeck/deckbridge/pkg/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const eventBufferSize = 100

// Deps are the service's outside world. Nil fields use the real
// implementations and an empty Session gets a fresh id.
type Deps struct {
	Session        string
	Executor       command.Executor
	ResolvePort    func(port string) (string, error)
	OpenTransport  func(path string) (transport.Transport, error)
	StartDBus      func(sub injector.TextSubmitter) (io.Closer, error)
	StartMQTT      func(cfg *config.Instance, events <-chan broker.Event) (stop func(), err error)
	StartDiscovery func(port int, session string) (stop func(), err error)
	Clock          clockwork.Clock
}

func (d Deps) withDefaults(cfg *config.Instance) Deps {
	if d.Executor == nil {
		d.Executor = &command.RealExecutor{}
	}
	if d.ResolvePort == nil {
		d.ResolvePort = helpers.ResolveSerialPort
	}
	if d.OpenTransport == nil {
		d.OpenTransport = func(path string) (transport.Transport, error) {
			tr, err := transport.Open(transport.Options{
				Path:        path,
				BaudRate:    cfg.BaudRate(),
				ReadTimeout: cfg.ReadTimeout(),
			})
			if err != nil {
				return nil, err
			}
			return tr, nil
		}
	}
	if d.StartDBus == nil {
		d.StartDBus = func(sub injector.TextSubmitter) (io.Closer, error) {
			ep, err := injector.StartDBus(sub)
			if err != nil {
				return nil, err
			}
			return ep, nil
		}
	}
	if d.StartMQTT == nil {
		d.StartMQTT = func(cfg *config.Instance, events <-chan broker.Event) (func(), error) {
			p := publishers.NewMQTTPublisher(cfg.MQTTBroker(), cfg.MQTTTopic(), cfg.MQTTEvents())
			if err := p.Start(events); err != nil {
				return nil, err
			}
			return p.Stop, nil
		}
	}
	if d.StartDiscovery == nil {
		d.StartDiscovery = func(port int, session string) (func(), error) {
			a := discovery.New(port, session)
			if err := a.Start(); err != nil {
				return nil, err
			}
			return a.Stop, nil
		}
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Session == "" {
		d.Session = uuid.New().String()
	}
	return d
}

// Service is a running bridge.
type Service struct {
	err      error
	tr       transport.Transport
	dbus     io.Closer
	http     *api.Server
	events   chan broker.Event
	broker   *broker.Broker
	stopMQTT func()
	stopMDNS func()
	inbound  *queue.Queue[protocol.ButtonEvent]
	outbound *queue.Queue[protocol.DisplayMessage]
	loop     *deviceio.Loop
	cancel   context.CancelFunc
	done     chan struct{}
	session  string
	port     string
	stopOnce sync.Once
}

// Start opens the device and starts every task. Failing to resolve or open
// the port is fatal. Injectors that cannot start are logged and skipped.
func Start(cfg *config.Instance, deps Deps) (*Service, error) {
	log.Info().Msgf("version: %s", config.AppVersion)
	deps = deps.withDefaults(cfg)

	session := deps.Session
	log.Info().Msgf("session: %s", session)

	port, err := deps.ResolvePort(cfg.Port())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve serial port: %w", err)
	}

	tr, err := deps.OpenTransport(port)
	if err != nil {
		return nil, fmt.Errorf("failed to open device on %s: %w", port, err)
	}

	s := &Service{
		tr:       tr,
		inbound:  queue.New[protocol.ButtonEvent]("inbound"),
		outbound: queue.New[protocol.DisplayMessage]("outbound"),
		events:   make(chan broker.Event, eventBufferSize),
		done:     make(chan struct{}),
		session:  session,
		port:     port,
	}

	s.loop = deviceio.New(deviceio.Options{
		Transport:    tr,
		Inbound:      s.inbound,
		Outbound:     s.outbound,
		Clock:        deps.Clock,
		Events:       s.events,
		PollInterval: cfg.PollInterval(),
		StaleCycles:  cfg.StaleFrameCycles(),
	})
	disp := dispatcher.New(cfg, deps.Executor, s.inbound, s.outbound).WithEvents(s.events)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.broker = broker.NewBroker(ctx, s.events)
	if cfg.MQTTBroker() != "" {
		sub, id := s.broker.Subscribe(eventBufferSize)
		stop, err := deps.StartMQTT(cfg, sub)
		if err != nil {
			s.broker.Unsubscribe(id)
			log.Error().Err(err).Msg("mqtt publisher unavailable, continuing without it")
		} else {
			s.stopMQTT = stop
		}
	}
	s.broker.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop.Run(gctx) })
	g.Go(func() error { return disp.Run(gctx) })

	go func() {
		s.err = g.Wait()
		close(s.done)
	}()

	if cfg.DisplayConnected() {
		s.startInjectors(cfg, deps)
	} else {
		log.Info().Msg("display not connected, text injectors disabled")
	}

	log.Info().Msgf("bridge running on %s", port)
	return s, nil
}

func (s *Service) startInjectors(cfg *config.Instance, deps Deps) {
	sub := injector.NewSubmitter(cfg, s.outbound)

	ep, err := deps.StartDBus(sub)
	if err != nil {
		log.Warn().Err(err).Msg("dbus injector unavailable, continuing without it")
	} else {
		s.dbus = ep
	}

	if cfg.APIListen() == "" {
		return
	}
	srv, err := api.Start(cfg, sub, s.Health)
	if err != nil {
		log.Error().Err(err).Msg("http injector unavailable, continuing without it")
		return
	}
	s.http = srv

	if !cfg.APIAdvertise() {
		return
	}
	port, err := discovery.PortFromAddr(srv.Addr())
	if err != nil {
		log.Warn().Err(err).Msg("cannot advertise http injector")
		return
	}
	stop, err := deps.StartDiscovery(port, s.session)
	if err != nil {
		log.Warn().Err(err).Msg("mdns advertising unavailable, continuing without it")
		return
	}
	s.stopMDNS = stop
}

// Done is closed once the device loop and dispatcher have both returned.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Err is the error that ended the service, or nil. Only valid after Done
// is closed.
func (s *Service) Err() error {
	return s.err
}

// Session is the id generated for this run.
func (s *Service) Session() string {
	return s.session
}

// Health snapshots the service state for the HTTP injector.
func (s *Service) Health() api.Health {
	st := s.loop.Stats()
	return api.Health{
		Session:        s.session,
		Port:           s.port,
		FramesIn:       st.FramesIn,
		FramesOut:      st.FramesOut,
		Discards:       st.Discards,
		PendingDisplay: s.outbound.Len(),
	}
}

// Stop shuts everything down and returns the error that ended the service,
// if any. Safe to call more than once.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		log.Info().Msg("stopping service")

		if s.stopMDNS != nil {
			s.stopMDNS()
		}
		if s.http != nil {
			ctx, cancel := context.WithTimeout(context.Background(), api.RequestTimeout)
			if err := s.http.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("error stopping http injector")
			}
			cancel()
		}
		if s.dbus != nil {
			if err := s.dbus.Close(); err != nil {
				log.Warn().Err(err).Msg("error stopping dbus injector")
			}
		}

		s.cancel()
		s.inbound.Close()
		<-s.done
		s.outbound.Close()

		// Producers have returned, so the broker can drain and close
		// subscribers before the publisher disconnects.
		close(s.events)
		<-s.broker.Done()
		if s.stopMQTT != nil {
			s.stopMQTT()
		}

		if err := s.tr.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing device")
		}
		log.Info().Msg("service stopped")
	})
	return s.err
}
