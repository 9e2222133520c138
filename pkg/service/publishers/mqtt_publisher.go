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

// Package publishers forwards bridge events to external systems.
package publishers

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/quickcommanddeck/deckbridge/pkg/config"
	"github.com/quickcommanddeck/deckbridge/pkg/service/broker"
	"github.com/rs/zerolog/log"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250
)

// MQTTPublisher publishes bridge events as JSON to one MQTT topic.
type MQTTPublisher struct {
	client    mqtt.Client
	newClient func(*mqtt.ClientOptions) mqtt.Client
	stopCh    chan struct{}
	done      chan struct{}
	broker    string
	topic     string
	filter    []string
	stopOnce  sync.Once
}

// NewMQTTPublisher publishes to topic on broker (host:port). An empty filter
// publishes every event kind.
func NewMQTTPublisher(brokerAddr, topic string, filter []string) *MQTTPublisher {
	return &MQTTPublisher{
		newClient: mqtt.NewClient,
		broker:    brokerAddr,
		topic:     topic,
		filter:    filter,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start connects and forwards events until Stop or until events closes.
// A broker that is unreachable after the connect timeout is retried in the
// background rather than failing startup.
func (p *MQTTPublisher) Start(events <-chan broker.Event) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + p.broker)
	opts.SetClientID(config.AppName + "-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.OnConnect = func(_ mqtt.Client) {
		log.Info().Msgf("mqtt publisher: connected to %s", p.broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt publisher: connection lost")
	}

	p.client = p.newClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warn().Msgf("mqtt publisher: %s not reachable yet, retrying in background", p.broker)
	} else if err := token.Error(); err != nil {
		p.client.Disconnect(0)
		p.client = nil
		return fmt.Errorf("failed to connect to mqtt broker %s: %w", p.broker, err)
	}

	go p.publishEvents(events)
	return nil
}

// Stop ends publishing and disconnects. Safe to call more than once.
func (p *MQTTPublisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		if p.client == nil {
			return
		}
		<-p.done
		// also ends a connect retry still running in the background
		p.client.Disconnect(disconnectQuiesce)
	})
}

func (p *MQTTPublisher) publishEvents(events <-chan broker.Event) {
	defer close(p.done)

	for {
		select {
		case <-p.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				log.Debug().Msg("mqtt publisher: event channel closed")
				return
			}
			p.publish(ev)
		}
	}
}

func (p *MQTTPublisher) publish(ev broker.Event) {
	if !p.matchesFilter(ev.Kind) {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("mqtt publisher: failed to marshal event")
		return
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Str("kind", string(ev.Kind)).Msg("mqtt publisher: publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Error().Err(err).Msg("mqtt publisher: failed to publish event")
		return
	}
	log.Debug().Msgf("mqtt publisher: published %s", ev.Kind)
}

func (p *MQTTPublisher) matchesFilter(kind broker.Kind) bool {
	return len(p.filter) == 0 || slices.Contains(p.filter, string(kind))
}
