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

package models

import (
	"encoding/json"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
)

const (
	NotificationLog      = "log"
	NotificationAlarm    = "alarm.changed"
	NotificationWatchdog = "watchdog.changed"
	NotificationRecorder = "recording.changed"
)

// Notification is broadcast to every connected events client.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

type ThresholdsParams struct {
	Low  float64 `json:"low" validate:"bpm"`
	High float64 `json:"high" validate:"bpm"`
}

type RecordingParams struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type SimulateDropParams struct {
	Seconds int `json:"seconds" validate:"min=1,max=60"`
}

type ThresholdsResponse struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

type RecordingResponse struct {
	Started   *time.Time `json:"started,omitempty"`
	Path      string     `json:"path,omitempty"`
	ID        string     `json:"id,omitempty"`
	Rows      int        `json:"rows"`
	Recording bool       `json:"recording"`
}

type SimulateDropResponse struct {
	Until time.Time `json:"until"`
}

type LogNotification struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	Text    string    `json:"text"`
}

type AlarmNotification struct {
	From stream.AlarmState `json:"from"`
	To   stream.AlarmState `json:"to"`
}

type WatchdogNotification struct {
	From stream.WatchdogState `json:"from"`
	To   stream.WatchdogState `json:"to"`
}
