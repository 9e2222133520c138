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

// Package discovery advertises the HTTP injector over mDNS so companion
// tools on the LAN can find the deck without configuration.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/quickcommanddeck/deckbridge/pkg/config"
	"github.com/quickcommanddeck/deckbridge/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

const ServiceType = "_deckbridge._tcp"

const (
	retryInterval    = 30 * time.Second
	maxRetryDuration = 5 * time.Minute
)

var virtualInterfacePrefixes = []string{
	"docker", "br-", "veth", "virbr", "lxc", "lxd",
	"cni", "flannel", "cali", "tunl", "wg",
}

type registerFunc func(
	instance, service, domain string,
	port int,
	text []string,
	ifaces []net.Interface,
) (shutdowner, error)

type shutdowner interface {
	Shutdown()
}

func zeroconfRegister(
	instance, service, domain string,
	port int,
	text []string,
	ifaces []net.Interface,
) (shutdowner, error) {
	server, err := zeroconf.Register(instance, service, domain, port, text, ifaces)
	if err != nil {
		return nil, fmt.Errorf("zeroconf register: %w", err)
	}
	return server, nil
}

func filterInterfaces(ifaces []net.Interface) []net.Interface {
	var preferred []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		// mDNS needs multicast
		if iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if isVirtualInterface(iface.Name) {
			continue
		}
		preferred = append(preferred, iface)
	}
	return preferred
}

func isVirtualInterface(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// PortFromAddr extracts the numeric port of a host:port listen address.
func PortFromAddr(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in listen address %q", addr)
	}
	return port, nil
}

// Advertiser publishes one mDNS service record for the injector.
type Advertiser struct {
	server     shutdowner
	register   registerFunc
	interfaces func() ([]net.Interface, error)
	cancelFunc context.CancelFunc
	done       chan struct{}
	instance   string
	session    string
	port       int
	stopped    bool
	mu         syncutil.Mutex
}

// New advertises the injector listening on port. session is published in
// the TXT record so clients can tell bridge restarts apart.
func New(port int, session string) *Advertiser {
	return &Advertiser{
		register:   zeroconfRegister,
		interfaces: net.Interfaces,
		port:       port,
		session:    session,
	}
}

// Start registers the service. When no network is ready yet, registration
// is retried in the background for a bounded time and Start still succeeds.
func (a *Advertiser) Start() error {
	if a.port <= 0 {
		return fmt.Errorf("invalid advertise port: %d", a.port)
	}
	a.instance = instanceName()

	if a.tryRegister() {
		return nil
	}

	log.Info().
		Dur("retryInterval", retryInterval).
		Dur("maxDuration", maxRetryDuration).
		Msg("mdns registration failed, retrying in background")

	ctx, cancel := context.WithTimeout(context.Background(), maxRetryDuration)
	done := make(chan struct{})
	a.mu.Lock()
	a.cancelFunc = cancel
	a.done = done
	a.mu.Unlock()

	go a.retryLoop(ctx, done)
	return nil
}

func (a *Advertiser) tryRegister() bool {
	all, err := a.interfaces()
	if err != nil {
		log.Debug().Err(err).Msg("failed to list network interfaces")
		return false
	}
	ifaces := filterInterfaces(all)
	if len(ifaces) == 0 {
		log.Debug().Msg("no suitable network interfaces for mdns")
		return false
	}

	names := make([]string, len(ifaces))
	for i, iface := range ifaces {
		names[i] = iface.Name
	}

	txt := []string{
		"version=" + config.AppVersion,
		"session=" + a.session,
		"path=/api/display",
	}

	server, err := a.register(a.instance, ServiceType, "local.", a.port, txt, ifaces)
	if err != nil {
		log.Debug().Err(err).Msg("mdns registration attempt failed")
		return false
	}

	a.mu.Lock()
	// Stop raced with registration.
	if a.stopped {
		a.mu.Unlock()
		server.Shutdown()
		return false
	}
	a.server = server
	a.mu.Unlock()

	log.Info().
		Str("instance", a.instance).
		Int("port", a.port).
		Strs("interfaces", names).
		Msgf("advertising %s", ServiceType)
	return true
}

func (a *Advertiser) retryLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if a.tryRegister() {
				log.Info().Msg("mdns registration succeeded after retry")
				return
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log.Warn().Msg("mdns registration gave up, discovery unavailable")
			}
			return
		}
	}
}

// Stop withdraws the advertisement and ends any background retry.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	a.stopped = true
	cancel, done := a.cancelFunc, a.done
	a.cancelFunc = nil
	server := a.server
	a.server = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if server != nil {
		log.Debug().Msg("stopping mdns advertising")
		server.Shutdown()
	}
}

// Instance is the advertised instance name.
func (a *Advertiser) Instance() string {
	return a.instance
}

func instanceName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		log.Warn().Err(err).Msg("failed to get hostname, using app name")
		return config.AppName
	}
	return config.AppName + "-" + hostname
}
