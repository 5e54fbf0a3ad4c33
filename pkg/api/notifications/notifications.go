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

package notifications

import (
	"encoding/json"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/rs/zerolog/log"
)

// sendNotification never blocks: monitor hooks call it from the tick loop,
// so a full channel drops the notification.
func sendNotification(ns chan<- models.Notification, method string, payload any) {
	var params json.RawMessage
	if payload != nil {
		var err error
		params, err = json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("method", method).Msg("error marshalling notification params")
			return
		}
	}

	select {
	case ns <- models.Notification{Method: method, Params: params}:
	default:
		log.Warn().Str("method", method).Msg("notification channel full, dropping notification")
	}
}

func LogLine(ns chan<- models.Notification, line stream.LogLine) {
	sendNotification(ns, models.NotificationLog, models.LogNotification{
		Time:    line.Time,
		Message: line.Message,
		Text:    line.String(),
	})
}

func AlarmChanged(ns chan<- models.Notification, from, to stream.AlarmState) {
	sendNotification(ns, models.NotificationAlarm, models.AlarmNotification{From: from, To: to})
}

func WatchdogChanged(ns chan<- models.Notification, from, to stream.WatchdogState) {
	sendNotification(ns, models.NotificationWatchdog, models.WatchdogNotification{From: from, To: to})
}

func RecordingChanged(ns chan<- models.Notification, status models.RecordingResponse) {
	sendNotification(ns, models.NotificationRecorder, status)
}
