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

// Package sources defines the producers that feed pulse lines into the
// monitor queue. Each driver lives in its own subpackage.
package sources

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/config"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidDriver = errors.New("invalid source driver")
	ErrAlreadyOpen   = errors.New("source already open")
)

type DriverMetadata struct {
	ID          string
	Description string
}

type Source interface {
	// Metadata returns static information about the driver.
	Metadata() DriverMetadata
	// IDs returns the driver names this source answers to.
	IDs() []string
	// Open starts the producer goroutine and returns straight away. When the
	// source cannot start, one LogEvent is queued and the error is returned.
	Open(ctx context.Context, src config.Source, q *stream.Queue) error
	// Close asks the producer to stop and waits at most one read timeout.
	Close() error
	// Connected returns true while the producer is running.
	Connected() bool
	// Info returns a short description of what the source is reading.
	Info() string
}

// NormalizeDriverID lowercases id and drops "_" and "-" so "Sub_Process"
// matches "subprocess".
func NormalizeDriverID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.NewReplacer("_", "", "-", "").Replace(id)
}

// MatchesDriver reports whether the source answers to driver.
func MatchesDriver(s Source, driver string) bool {
	want := NormalizeDriverID(driver)
	return slices.ContainsFunc(s.IDs(), func(id string) bool {
		return NormalizeDriverID(id) == want
	})
}

// Select returns the first source answering to driver.
func Select(all []Source, driver string) (Source, error) {
	for _, s := range all {
		if MatchesDriver(s, driver) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidDriver, driver)
}

// DriverIDs lists the primary ID of every source.
func DriverIDs(all []Source) []string {
	ids := make([]string, 0, len(all))
	for _, s := range all {
		ids = append(ids, s.Metadata().ID)
	}
	return ids
}

// StartupFailed queues the log view message for a source that could not
// start and returns err wrapped with the same text.
func StartupFailed(clock clockwork.Clock, q *stream.Queue, msg string, err error) error {
	log.Error().Err(err).Msg(msg)
	q.Put(stream.NewLogEvent(clock.Now(), "%s: %v", msg, err))
	return fmt.Errorf("%s: %w", msg, err)
}
