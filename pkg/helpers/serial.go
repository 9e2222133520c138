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

package helpers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// ErrNoSerialDevice is returned when no port is configured and none could be
// detected.
var ErrNoSerialDevice = errors.New("no serial device found")

type usbID struct {
	vid string
	pid string
}

// USB serial devices that enumerate as ttyACM but are never a deck.
var ignoreDevices = []usbID{
	// Sinden Lightgun
	{vid: "16c0", pid: "0f38"},
	{vid: "16c0", pid: "0f39"},
	{vid: "16c0", pid: "0f01"},
	{vid: "16c0", pid: "0f02"},
	{vid: "16d0", pid: "0f38"},
	{vid: "16d0", pid: "0f39"},
	{vid: "16d0", pid: "0f01"},
	{vid: "16d0", pid: "0f02"},
}

// parseUdevIDs extracts vendor and model ids from `udevadm info` output.
func parseUdevIDs(out string) usbID {
	var id usbID
	for line := range strings.SplitSeq(out, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "E: ID_VENDOR_ID="); ok {
			id.vid = strings.ToLower(v)
		} else if v, ok := strings.CutPrefix(line, "E: ID_MODEL_ID="); ok {
			id.pid = strings.ToLower(v)
		}
	}
	return id
}

func isIgnoredID(id usbID) bool {
	if id.vid == "" || id.pid == "" {
		return false
	}
	return slices.Contains(ignoreDevices, id)
}

func ignoreSerialDevice(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return true
	}

	if _, err := os.Stat("/usr/bin/udevadm"); err != nil {
		log.Debug().Msg("udevadm not found, skipping ignore list check")
		return false
	}

	if !strings.HasPrefix(path, "/dev/") {
		log.Error().Str("path", path).Msg("invalid device path")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	//nolint:gosec // path is checked to live under /dev/
	out, err := exec.CommandContext(ctx, "/usr/bin/udevadm", "info", "--name="+path).Output()
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("udevadm failed")
		return false
	}

	return isIgnoredID(parseUdevIDs(string(out)))
}

func isDeckDeviceName(name string) bool {
	return strings.HasPrefix(name, "ttyUSB") || strings.HasPrefix(name, "ttyACM")
}

func getLinuxList() ([]string, error) {
	const dir = "/dev"

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	devices := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isDeckDeviceName(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if ignoreSerialDevice(path) {
			continue
		}
		devices = append(devices, path)
	}

	return devices, nil
}

func filterPorts(ports []string, prefix string) []string {
	devices := make([]string, 0, len(ports))
	for _, p := range ports {
		if strings.HasPrefix(p, prefix) {
			devices = append(devices, p)
		}
	}
	return devices
}

// GetSerialDeviceList returns the serial devices that could be a deck, in
// the order the platform reports them.
func GetSerialDeviceList() ([]string, error) {
	if runtime.GOOS == "linux" {
		return getLinuxList()
	}

	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports list on %s: %w", runtime.GOOS, err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filterPorts(ports, "/dev/tty.usbserial"), nil
	case "windows":
		return filterPorts(ports, "COM"), nil
	default:
		return ports, nil
	}
}

type portLister func() ([]string, error)

type statFunc func(string) (os.FileInfo, error)

// ResolveSerialPort returns the device path to open. A configured port is
// checked for existence; an empty one selects the first detected device.
func ResolveSerialPort(port string) (string, error) {
	return resolveSerialPort(port, GetSerialDeviceList, os.Stat, runtime.GOOS)
}

func resolveSerialPort(port string, list portLister, stat statFunc, goos string) (string, error) {
	if port != "" {
		// COM names are not filesystem paths
		if goos == "windows" {
			return port, nil
		}
		if _, err := stat(port); err != nil {
			return "", fmt.Errorf("serial port %s: %w", port, err)
		}
		return port, nil
	}

	devices, err := list()
	if err != nil {
		return "", fmt.Errorf("failed to detect serial devices: %w", err)
	}
	if len(devices) == 0 {
		return "", ErrNoSerialDevice
	}

	log.Info().Msgf("no port configured, using detected device: %s", devices[0])
	return devices[0], nil
}
