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

const (
	DefaultAlarmLow  = 40.0
	DefaultAlarmHigh = 90.0
)

type AlarmState int

const (
	AlarmNormal AlarmState = iota
	AlarmLow
	AlarmHigh
)

func (s AlarmState) String() string {
	switch s {
	case AlarmLow:
		return "LOW"
	case AlarmHigh:
		return "HIGH"
	default:
		return "NORMAL"
	}
}

func (s AlarmState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Message is the log text for entering the state. Normal has none.
func (s AlarmState) Message() string {
	switch s {
	case AlarmLow:
		return "Pulse LOW"
	case AlarmHigh:
		return "Pulse HIGH"
	default:
		return ""
	}
}

// Thresholds are the alarm bounds. Low above High is allowed; Low is checked
// first and wins.
type Thresholds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Low: DefaultAlarmLow, High: DefaultAlarmHigh}
}

// EvaluateAlarm classifies bpm against the thresholds. Both bounds are
// inclusive towards normal.
func EvaluateAlarm(bpm float64, th Thresholds) AlarmState {
	switch {
	case bpm < th.Low:
		return AlarmLow
	case bpm > th.High:
		return AlarmHigh
	default:
		return AlarmNormal
	}
}
