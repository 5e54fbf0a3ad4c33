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

// Package subprocess reads pulse lines from the combined output of a
// backend program, for example a Python script talking to the sensor.
package subprocess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/config"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/command"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/sources"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// CloseTimeout bounds how long Close waits for the read loop to finish.
const CloseTimeout = time.Second

var ErrNoCommand = errors.New("no command configured")

type Source struct {
	clock  clockwork.Clock
	exec   command.Executor
	parser *stream.Parser
	cancel context.CancelFunc
	done   chan struct{}
	cmd    string
	pid    int
	mu     syncutil.RWMutex
}

func NewSource(clock clockwork.Clock, exec command.Executor) *Source {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if exec == nil {
		exec = &command.RealExecutor{}
	}
	return &Source{
		clock:  clock,
		exec:   exec,
		parser: stream.NewParser(clock),
	}
}

func (*Source) Metadata() sources.DriverMetadata {
	return sources.DriverMetadata{
		ID:          config.DriverSubprocess,
		Description: "Lines from the output of a backend command",
	}
}

func (*Source) IDs() []string {
	return []string{config.DriverSubprocess, "backend", "command"}
}

func (s *Source) Open(ctx context.Context, src config.Source, q *stream.Queue) error {
	if !sources.MatchesDriver(s, src.Driver) {
		return fmt.Errorf("%w: %s", sources.ErrInvalidDriver, src.Driver)
	}
	if s.Connected() {
		return sources.ErrAlreadyOpen
	}
	if len(src.Command) == 0 || src.Command[0] == "" {
		return sources.StartupFailed(s.clock, q, "[BACKEND] start failed", ErrNoCommand)
	}

	cmdline := strings.Join(src.Command, " ")
	pctx, cancel := context.WithCancel(ctx)
	proc, err := s.exec.StartCombined(
		pctx,
		command.StartOptions{HideWindow: true},
		src.Command[0],
		src.Command[1:]...,
	)
	if err != nil {
		cancel()
		return sources.StartupFailed(s.clock, q, "[BACKEND] start failed", err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.cmd = cmdline
	s.pid = proc.Pid()
	s.mu.Unlock()

	log.Info().Msgf("backend started: %s (pid %d)", cmdline, proc.Pid())
	q.Put(stream.NewLogEvent(s.clock.Now(), "[BACKEND] started: %s", cmdline))

	go s.readLoop(proc, q, done)
	return nil
}

func (s *Source) readLoop(proc command.Process, q *stream.Queue, done chan struct{}) {
	defer close(done)

	err := sources.ReadLines(proc.Output(), func(raw []byte, tooLong bool) {
		if tooLong {
			q.Put(s.parser.TooLong(string(raw)))
			return
		}
		line := strings.TrimSpace(string(raw))
		if line == "" {
			return
		}
		q.Put(s.parser.Parse(line))
	})
	if err != nil {
		log.Warn().Err(err).Msg("backend output read failed")
	}

	if err := proc.Wait(); err != nil {
		log.Debug().Err(err).Msg("backend exited")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	q.Put(stream.NewLogEvent(s.clock.Now(), "[BACKEND] finished"))
}

// Close kills the backend and waits up to CloseTimeout for the read loop.
func (s *Source) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-s.clock.After(CloseTimeout):
		log.Warn().Msg("backend read loop did not stop in time")
		return nil
	}
}

func (s *Source) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Source) Info() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cmd == "" {
		return "backend: none"
	}
	return fmt.Sprintf("backend: %s (pid %d)", s.cmd, s.pid)
}
