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

//go:build deadlock

// Package syncutil holds the mutex types used across Pulse. Building with
// -tags=deadlock swaps them for go-deadlock versions that report lock order
// problems between the queue, the settings and the config instance.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockEnabled reports whether the deadlock detector is compiled in.
const DeadlockEnabled = true

// DeadlockTimeout is how long a lock may be waited on before it is reported.
// It sits well above the one second read timeout of the sources.
const DeadlockTimeout = 10 * time.Second

func init() {
	deadlock.Opts.DeadlockTimeout = DeadlockTimeout
}

// Mutex is a go-deadlock mutex.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a go-deadlock reader/writer mutex.
type RWMutex struct {
	deadlock.RWMutex
}
