// Zaparoo Pulse
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Pulse.
//
// Zaparoo Pulse is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Pulse is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Pulse.  If not, see <http://www.gnu.org/licenses/>.

package helpers

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/command"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial/enumerator"
)

var ErrNoSerialPorts = errors.New("no serial ports found")

const udevadmPath = "/usr/bin/udevadm"

// autoPickHints are matched against a port's description and name, in the
// order a sensor board is most likely to show up.
var autoPickHints = []string{"Arduino", "USB", "ACM", "COM"}

// SerialPort describes one serial device found on the system.
type SerialPort struct {
	Name        string
	Description string
	VID         string
	PID         string
	IsUSB       bool
}

func (p SerialPort) label() string {
	return p.Description + " " + p.Name
}

// PortLister returns the detailed list of serial ports. It is
// enumerator.GetDetailedPortsList outside of tests.
type PortLister func() ([]*enumerator.PortDetails, error)

// SerialDiscovery finds serial devices and picks the most likely sensor.
type SerialDiscovery struct {
	List PortLister
	Exec command.Executor
}

func NewSerialDiscovery() *SerialDiscovery {
	return &SerialDiscovery{
		List: enumerator.GetDetailedPortsList,
		Exec: &command.RealExecutor{},
	}
}

// Ports lists the serial devices. On Linux, ports with no product string
// are described from udev so boards like the Arduino Uno are recognised.
func (d *SerialDiscovery) Ports(ctx context.Context) ([]SerialPort, error) {
	details, err := d.List()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports list: %w", err)
	}

	ports := make([]SerialPort, 0, len(details))
	for _, v := range details {
		if v == nil {
			continue
		}
		port := SerialPort{
			Name:        v.Name,
			Description: v.Product,
			VID:         strings.ToLower(v.VID),
			PID:         strings.ToLower(v.PID),
			IsUSB:       v.IsUSB,
		}
		if port.Description == "" && runtime.GOOS == "linux" {
			port.Description = d.udevModel(ctx, port.Name)
		}
		ports = append(ports, port)
	}

	return ports, nil
}

// AutoPick returns the device path of the first port matching a hint, or
// the first port when nothing matches.
func (d *SerialDiscovery) AutoPick(ctx context.Context) (string, error) {
	ports, err := d.Ports(ctx)
	if err != nil {
		return "", err
	}
	name, ok := PickSerialPort(ports)
	if !ok {
		return "", ErrNoSerialPorts
	}
	log.Debug().Str("port", name).Int("candidates", len(ports)).Msg("auto-picked serial port")
	return name, nil
}

// PickSerialPort applies the auto-pick rule to an already listed set.
func PickSerialPort(ports []SerialPort) (string, bool) {
	if len(ports) == 0 {
		return "", false
	}
	for _, p := range ports {
		label := p.label()
		for _, hint := range autoPickHints {
			if strings.Contains(label, hint) {
				return p.Name, true
			}
		}
	}
	return ports[0].Name, true
}

// udevModel reads ID_MODEL for a /dev path, empty on any failure.
func (d *SerialDiscovery) udevModel(ctx context.Context, path string) string {
	if d.Exec == nil {
		return ""
	}
	// udevadm only accepts device nodes; anything else is not worth a call
	if !strings.HasPrefix(path, "/dev/") {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := d.Exec.Output(ctx, udevadmPath, "info", "--name="+path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("udevadm failed")
		return ""
	}
	return parseUdevModel(string(out))
}

func parseUdevModel(out string) string {
	var model, vendor string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "E: ID_MODEL="):
			model = strings.TrimPrefix(line, "E: ID_MODEL=")
		case strings.HasPrefix(line, "E: ID_VENDOR="):
			vendor = strings.TrimPrefix(line, "E: ID_VENDOR=")
		}
	}
	desc := strings.TrimSpace(strings.ReplaceAll(vendor+" "+model, "_", " "))
	return desc
}
