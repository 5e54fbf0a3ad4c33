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

package stream

import "time"

// WatchdogTimeout is the silence after which the stream counts as stalled.
const WatchdogTimeout = 5 * time.Second

const (
	MsgStalled = "No packet for > 5 s"
	MsgResumed = "Packet stream resumed"
)

type WatchdogState int

const (
	// WatchdogNoData is the state before the first sample: no alarm, no logs.
	WatchdogNoData WatchdogState = iota
	WatchdogAlive
	WatchdogStalled
)

func (s WatchdogState) String() string {
	switch s {
	case WatchdogAlive:
		return "alive"
	case WatchdogStalled:
		return "stalled"
	default:
		return "no_data"
	}
}

func (s WatchdogState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Watchdog tracks the time of the last received sample and flips between
// alive and stalled when evaluated. Only edges are reported.
type Watchdog struct {
	last    time.Time
	timeout time.Duration
	state   WatchdogState
}

func NewWatchdog(timeout time.Duration) *Watchdog {
	if timeout <= 0 {
		timeout = WatchdogTimeout
	}
	return &Watchdog{timeout: timeout}
}

// Observe records a received sample.
func (w *Watchdog) Observe(t time.Time) {
	if t.After(w.last) {
		w.last = t
	}
	if w.state == WatchdogNoData {
		w.state = WatchdogAlive
	}
}

// Evaluate checks the silence at now and returns the new state and true if
// the state changed on this call.
func (w *Watchdog) Evaluate(now time.Time) (WatchdogState, bool) {
	if w.state == WatchdogNoData {
		return w.state, false
	}

	stalled := now.Sub(w.last) > w.timeout
	switch {
	case stalled && w.state == WatchdogAlive:
		w.state = WatchdogStalled
		return w.state, true
	case !stalled && w.state == WatchdogStalled:
		w.state = WatchdogAlive
		return w.state, true
	default:
		return w.state, false
	}
}

func (w *Watchdog) State() WatchdogState {
	return w.state
}

// LastSeen returns the time of the newest observed sample, zero if none.
func (w *Watchdog) LastSeen() time.Time {
	return w.last
}

// Silence returns how long the stream has been quiet at now.
func (w *Watchdog) Silence(now time.Time) time.Duration {
	if w.last.IsZero() {
		return 0
	}
	return now.Sub(w.last)
}
