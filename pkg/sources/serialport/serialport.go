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

// Package serialport reads pulse lines from a microcontroller on a serial
// port.
package serialport

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/config"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/sources"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const (
	DefaultBaudRate = 115200
	// ReadTimeout is how long one read may block. Close waits at most this
	// long for the read loop to notice.
	ReadTimeout = time.Second
)

// SerialPort defines the serial port operations used by the source.
type SerialPort interface {
	Read(p []byte) (n int, err error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// SerialPortFactory creates a serial port connection.
type SerialPortFactory func(path string, mode *serial.Mode) (SerialPort, error)

// DefaultSerialPortFactory opens real serial ports.
func DefaultSerialPortFactory(path string, mode *serial.Mode) (SerialPort, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

// PortPicker chooses a device when no path is configured.
type PortPicker interface {
	AutoPick(ctx context.Context) (string, error)
}

type Source struct {
	clock       clockwork.Clock
	parser      *stream.Parser
	portFactory SerialPortFactory
	picker      PortPicker
	port        SerialPort
	done        chan struct{}
	path        string
	baud        int
	polling     bool
	mu          syncutil.RWMutex
}

func NewSource(clock clockwork.Clock) *Source {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Source{
		clock:       clock,
		parser:      stream.NewParser(clock),
		portFactory: DefaultSerialPortFactory,
		picker:      helpers.NewSerialDiscovery(),
	}
}

// WithPortFactory replaces how ports are opened.
func (s *Source) WithPortFactory(f SerialPortFactory) *Source {
	s.portFactory = f
	return s
}

// WithPicker replaces the auto-pick used for an empty path.
func (s *Source) WithPicker(p PortPicker) *Source {
	s.picker = p
	return s
}

func (*Source) Metadata() sources.DriverMetadata {
	return sources.DriverMetadata{
		ID:          config.DriverSerial,
		Description: "Lines from a serial port",
	}
}

func (*Source) IDs() []string {
	return []string{config.DriverSerial, "uart"}
}

func (s *Source) Open(ctx context.Context, src config.Source, q *stream.Queue) error {
	if !sources.MatchesDriver(s, src.Driver) {
		return fmt.Errorf("%w: %s", sources.ErrInvalidDriver, src.Driver)
	}
	if s.Connected() {
		return sources.ErrAlreadyOpen
	}

	path := src.Path
	if path == "" {
		picked, err := s.picker.AutoPick(ctx)
		if err != nil {
			return sources.StartupFailed(s.clock, q, "[Serial] open failed", err)
		}
		log.Info().Msgf("auto-picked serial port: %s", picked)
		path = picked
	}

	baud := src.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}

	port, err := s.portFactory(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return sources.StartupFailed(s.clock, q, "[Serial] open failed", err)
	}
	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		_ = port.Close()
		return sources.StartupFailed(s.clock, q, "[Serial] open failed",
			fmt.Errorf("failed to set read timeout: %w", err))
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.port = port
	s.path = path
	s.baud = baud
	s.done = done
	s.polling = true
	s.mu.Unlock()

	q.Put(stream.NewLogEvent(s.clock.Now(), "[Serial] opened %s @ %d", path, baud))

	go s.readLoop(ctx, port, q, done)
	return nil
}

func (s *Source) isPolling() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.polling
}

func (s *Source) readLoop(ctx context.Context, port SerialPort, q *stream.Queue, done chan struct{}) {
	defer close(done)

	var lineBuf []byte
	tooLong := false
	buf := make([]byte, 1024)
	for s.isPolling() && ctx.Err() == nil {
		n, err := port.Read(buf)
		if err != nil {
			if s.isPolling() {
				log.Error().Err(err).Msg("failed to read from serial port")
				q.Put(stream.NewLogEvent(s.clock.Now(), "[Serial] read error: %v", err))
			}
			break
		}

		for i := range n {
			if buf[i] != '\n' {
				if len(lineBuf) < stream.MaxLineSize {
					lineBuf = append(lineBuf, buf[i])
				} else {
					tooLong = true
				}
				continue
			}
			if tooLong {
				q.Put(s.parser.TooLong(string(lineBuf)))
			} else {
				s.handleLine(lineBuf, q)
			}
			lineBuf = lineBuf[:0]
			tooLong = false
		}
	}

	s.mu.Lock()
	s.polling = false
	s.port = nil
	s.mu.Unlock()

	if err := port.Close(); err != nil {
		log.Debug().Err(err).Msg("failed to close serial port")
	}
}

// handleLine drops lines that are empty or not valid UTF-8.
func (s *Source) handleLine(raw []byte, q *stream.Queue) {
	if !utf8.Valid(raw) {
		log.Debug().Msg("skipping undecodable serial line")
		return
	}
	line := strings.TrimSpace(strings.Trim(string(raw), "\r"))
	if line == "" {
		return
	}
	q.Put(s.parser.Parse(line))
}

// Close stops the read loop and waits up to ReadTimeout for it to release
// the port.
func (s *Source) Close() error {
	s.mu.Lock()
	s.polling = false
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
	case <-s.clock.After(ReadTimeout):
		log.Warn().Msg("serial read loop did not stop in time")
	}
	return nil
}

func (s *Source) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.polling && s.port != nil
}

func (s *Source) Info() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.path == "" {
		return "serial: none"
	}
	return fmt.Sprintf("serial: %s @ %d", s.path, s.baud)
}
