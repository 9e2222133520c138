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
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const SchemaVersion = 1

const (
	DefaultBaudRate          = 115200
	DefaultReadTimeoutMS     = 1000
	DefaultPollIntervalMS    = 100
	DefaultStaleFrameCycles  = 10
	DefaultDisplayLines      = 2
	DefaultDisplayColumns    = 16
	DefaultNotifTimeMS       = 500
	DefaultBrightness        = 255
	DefaultAPIRequestsPerMin = 60
	DefaultMQTTTopic         = "deckbridge/events"
)

var ErrSchemaMismatch = errors.New("schema version mismatch")

type Values struct {
	Commands     []Command `toml:"command,omitempty" validate:"dive"`
	Config       Settings  `toml:"config"`
	ConfigSchema int       `toml:"config_schema"`
}

type Settings struct {
	Port                string  `toml:"port"`
	ErrorReportingDSN   string  `toml:"error_reporting_dsn" validate:"omitempty,url"`
	API                 API     `toml:"api"`
	MQTT                MQTT    `toml:"mqtt"`
	Display             Display `toml:"display"`
	BaudRate            int     `toml:"baudrate" validate:"gt=0"`
	ReadTimeoutMS       int     `toml:"read_timeout_ms" validate:"gt=0"`
	PollIntervalMS      int     `toml:"poll_interval_ms" validate:"gt=0"`
	StaleFrameCycles    int     `toml:"stale_frame_cycles" validate:"gt=0"`
	CommandTimeoutMS    int     `toml:"command_timeout_ms" validate:"gte=0"`
	SendCompletedNotifs bool    `toml:"send_completed_notifs"`
	DebugLogging        bool    `toml:"debug_logging"`
}

type Display struct {
	Lines       int  `toml:"lines" validate:"gte=1,lte=8"`
	Columns     int  `toml:"columns" validate:"gte=1,lte=64"`
	NotifTimeMS int  `toml:"notif_time_ms" validate:"gte=0,lte=2147483647"`
	Brightness  int  `toml:"brightness" validate:"gte=0,lte=255"`
	Connected   bool `toml:"connected"`
}

type API struct {
	Listen            string   `toml:"listen" validate:"omitempty,hostname_port"`
	AllowedIPs        []string `toml:"allowed_ips,omitempty" validate:"dive,ip|cidr"`
	AllowedOrigins    []string `toml:"allowed_origins,omitempty"`
	RequestsPerMinute int      `toml:"requests_per_minute" validate:"gte=1"`
	Advertise         bool     `toml:"advertise"`
}

// MQTT publishes bridge events to a broker. An empty Broker disables it.
type MQTT struct {
	Broker string   `toml:"broker" validate:"omitempty,hostname_port"`
	Topic  string   `toml:"topic" validate:"required_with=Broker"`
	Events []string `toml:"events,omitempty" validate:"dive,oneof=button.pressed action.completed display.sent"`
}

// Command is one [[command]] table. Id defaults to the table's position.
type Command struct {
	ID            *int     `toml:"id,omitempty" validate:"omitempty,gte=0,lte=255"`
	Command       *string  `toml:"command,omitempty"`
	LogMessage    *string  `toml:"log_message,omitempty"`
	ReportMessage []string `toml:"report_message,omitempty"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Config: Settings{
		BaudRate:         DefaultBaudRate,
		ReadTimeoutMS:    DefaultReadTimeoutMS,
		PollIntervalMS:   DefaultPollIntervalMS,
		StaleFrameCycles: DefaultStaleFrameCycles,
		Display: Display{
			Connected:   true,
			Lines:       DefaultDisplayLines,
			Columns:     DefaultDisplayColumns,
			NotifTimeMS: DefaultNotifTimeMS,
			Brightness:  DefaultBrightness,
		},
		API: API{
			RequestsPerMinute: DefaultAPIRequestsPerMin,
		},
		MQTT: MQTT{
			Topic: DefaultMQTTTopic,
		},
	},
}

const defaultFileHeader = `# Deck Bridge configuration.
#
# Add one [[command]] table per button action, for example:
#
#   [[command]]
#   id = 2
#   command = "echo hi"
#   log_message = "said hi"
#   report_message = ["Done"]

`

// Instance is a validated, read-only configuration. It is safe to share
// between goroutines.
type Instance struct {
	cfgPath string
	actions []ActionRecord
	vals    Values
}

// NewConfig loads cfgPath from fs, first writing defaults there if the file
// does not exist yet.
//
//nolint:gocritic // config struct copied for immutability
func NewConfig(fs afero.Fs, cfgPath string, defaults Values) (*Instance, error) {
	exists, err := afero.Exists(fs, cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if !exists {
		log.Info().Str("path", cfgPath).Msg("saving new default config to disk")
		if err := fs.MkdirAll(filepath.Dir(cfgPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := writeValues(fs, cfgPath, defaults); err != nil {
			return nil, err
		}
	}

	return Load(fs, cfgPath, defaults)
}

// Load reads cfgPath on top of defaults and validates the result.
//
//nolint:gocritic // config struct copied for immutability
func Load(fs afero.Fs, cfgPath string, defaults Values) (*Instance, error) {
	data, err := afero.ReadFile(fs, cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	vals, err := Parse(data, defaults)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfgPath, err)
	}

	inst, err := FromValues(vals)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfgPath, err)
	}
	inst.cfgPath = cfgPath

	log.Info().Msgf("loaded config %s with %d command(s)", cfgPath, len(inst.actions))
	return inst, nil
}

// Parse decodes TOML data on top of defaults. Unknown keys are rejected.
//
//nolint:gocritic // config struct copied for immutability
func Parse(data []byte, defaults Values) (Values, error) {
	vals := defaults
	vals.Commands = nil

	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&vals); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Values{}, fmt.Errorf("unknown config keys: %w\n%s", err, strict.String())
		}
		return Values{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if vals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			vals.ConfigSchema,
			SchemaVersion,
		)
		return Values{}, ErrSchemaMismatch
	}

	return vals, nil
}

// FromValues validates vals and builds the action table.
//
//nolint:gocritic // config struct copied for immutability
func FromValues(vals Values) (*Instance, error) {
	if err := validate(&vals); err != nil {
		return nil, err
	}

	return &Instance{
		vals:    vals,
		actions: buildActions(vals.Commands),
	}, nil
}

func writeValues(fs afero.Fs, path string, vals Values) error { //nolint:gocritic // copied on purpose
	vals.ConfigSchema = SchemaVersion

	data, err := toml.Marshal(&vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	data = append([]byte(defaultFileHeader), data...)
	if err := afero.WriteFile(fs, path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Path is the file the instance was loaded from, empty when built in memory.
func (c *Instance) Path() string {
	return c.cfgPath
}

// Values returns a copy of the decoded values.
func (c *Instance) Values() Values {
	vals := c.vals
	vals.Commands = slices.Clone(c.vals.Commands)
	return vals
}

func (c *Instance) Port() string {
	return c.vals.Config.Port
}

func (c *Instance) BaudRate() int {
	return c.vals.Config.BaudRate
}

func (c *Instance) SendCompletedNotifs() bool {
	return c.vals.Config.SendCompletedNotifs
}

func (c *Instance) ReadTimeout() time.Duration {
	return msDuration(c.vals.Config.ReadTimeoutMS)
}

func (c *Instance) PollInterval() time.Duration {
	return msDuration(c.vals.Config.PollIntervalMS)
}

func (c *Instance) StaleFrameCycles() int {
	return c.vals.Config.StaleFrameCycles
}

// CommandTimeout is zero when commands may run indefinitely.
func (c *Instance) CommandTimeout() time.Duration {
	return msDuration(c.vals.Config.CommandTimeoutMS)
}

func (c *Instance) DebugLogging() bool {
	return c.vals.Config.DebugLogging
}

func (c *Instance) ErrorReportingDSN() string {
	return c.vals.Config.ErrorReportingDSN
}

// DisplayConnected reports whether the deck has a display worth sending
// injected text to.
func (c *Instance) DisplayConnected() bool {
	return c.vals.Config.Display.Connected
}

func (c *Instance) DisplayLines() int {
	return c.vals.Config.Display.Lines
}

func (c *Instance) DisplayColumns() int {
	return c.vals.Config.Display.Columns
}

// NotifDurationMS is the display time for notifications, within int32.
func (c *Instance) NotifDurationMS() uint32 {
	return uint32(c.vals.Config.Display.NotifTimeMS) //nolint:gosec // validated range
}

func (c *Instance) Brightness() uint32 {
	return uint32(c.vals.Config.Display.Brightness) //nolint:gosec // validated range
}

func (c *Instance) APIListen() string {
	return c.vals.Config.API.Listen
}

// APIAllowedIPs lists addresses and CIDRs allowed to reach the HTTP
// injector. Empty allows everyone.
func (c *Instance) APIAllowedIPs() []string {
	return slices.Clone(c.vals.Config.API.AllowedIPs)
}

// APIAllowedOrigins lists browser origins allowed by CORS.
func (c *Instance) APIAllowedOrigins() []string {
	return slices.Clone(c.vals.Config.API.AllowedOrigins)
}

func (c *Instance) APIRequestsPerMinute() int {
	return c.vals.Config.API.RequestsPerMinute
}

// APIAdvertise reports whether the HTTP injector is announced over mDNS.
func (c *Instance) APIAdvertise() bool {
	return c.vals.Config.API.Advertise
}

func (c *Instance) MQTTBroker() string {
	return c.vals.Config.MQTT.Broker
}

func (c *Instance) MQTTTopic() string {
	return c.vals.Config.MQTT.Topic
}

// MQTTEvents lists the event kinds to publish. Empty publishes all.
func (c *Instance) MQTTEvents() []string {
	return slices.Clone(c.vals.Config.MQTT.Events)
}

// Actions returns a copy of the action table in configuration order.
func (c *Instance) Actions() []ActionRecord {
	out := slices.Clone(c.actions)
	for i := range out {
		out[i].ReportLines = slices.Clone(out[i].ReportLines)
	}
	return out
}
