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

package injector

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog/log"
)

const (
	BusName        = "com.quickcommanddeck.endpoint"
	Interface      = "com.quickcommanddeck.endpoint"
	ObjectPath     = dbus.ObjectPath("/sendText")
	MethodSendText = "SendText"
)

var ErrNameTaken = errors.New("dbus name already owned")

// busConn is the subset of *dbus.Conn the endpoint uses.
type busConn interface {
	Export(v any, path dbus.ObjectPath, iface string) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	Close() error
}

// dbusMethods is exported on the bus; its method set is the D-Bus interface.
type dbusMethods struct {
	sub TextSubmitter
}

func (m dbusMethods) SendText(text string) (string, *dbus.Error) {
	log.Info().Msgf("dbus SendText: %q", text)
	return m.sub.Submit(text), nil
}

func introspectable(methods dbusMethods) introspect.Introspectable {
	return introspect.NewIntrospectable(&introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    Interface,
				Methods: introspect.Methods(methods),
			},
		},
	})
}

// Endpoint serves SendText on the session bus until closed.
type Endpoint struct {
	conn busConn
}

// StartDBus connects to the session bus and claims BusName.
func StartDBus(sub TextSubmitter) (*Endpoint, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	ep, err := serve(conn, sub)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ep, nil
}

func serve(conn busConn, sub TextSubmitter) (*Endpoint, error) {
	methods := dbusMethods{sub: sub}

	if err := conn.Export(methods, ObjectPath, Interface); err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", Interface, err)
	}
	if err := conn.Export(introspectable(methods), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("failed to export introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to request name %s: %w", BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, BusName)
	}

	log.Info().Msgf("dbus endpoint listening as %s at %s", BusName, ObjectPath)
	return &Endpoint{conn: conn}, nil
}

func (e *Endpoint) Close() error {
	if err := e.conn.Close(); err != nil {
		return fmt.Errorf("failed to close dbus connection: %w", err)
	}
	return nil
}

// SendText calls a running bridge's endpoint and returns its reply.
func SendText(ctx context.Context, text string) (string, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return "", fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close dbus connection")
		}
	}()

	return callSendText(ctx, conn.Object(BusName, ObjectPath), text)
}

func callSendText(ctx context.Context, obj dbus.BusObject, text string) (string, error) {
	var reply string
	call := obj.CallWithContext(ctx, Interface+"."+MethodSendText, 0, text)
	if err := call.Store(&reply); err != nil {
		return "", fmt.Errorf("SendText call failed: %w", err)
	}
	return reply, nil
}
