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
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendNotification_NonBlocking(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification)

	done := make(chan struct{})
	go func() {
		AlarmChanged(ns, stream.AlarmNormal, stream.AlarmHigh)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("notification send blocked on an unbuffered channel")
	}
}

func TestLogLine(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 1)
	ts := time.Date(2024, 9, 19, 17, 46, 50, 0, time.Local)
	LogLine(ns, stream.LogLine{Time: ts, Message: "No packet for > 5 s"})

	n := <-ns
	assert.Equal(t, models.NotificationLog, n.Method)

	var params models.LogNotification
	require.NoError(t, json.Unmarshal(n.Params, &params))
	assert.Equal(t, "No packet for > 5 s", params.Message)
	assert.Equal(t, "Thu Sep 19 17:46:50 2024: No packet for > 5 s", params.Text)
}

func TestStateChanges(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 2)
	AlarmChanged(ns, stream.AlarmNormal, stream.AlarmLow)
	WatchdogChanged(ns, stream.WatchdogAlive, stream.WatchdogStalled)

	alarm := <-ns
	assert.Equal(t, models.NotificationAlarm, alarm.Method)
	assert.JSONEq(t, `{"from":"NORMAL","to":"LOW"}`, string(alarm.Params))

	wd := <-ns
	assert.Equal(t, models.NotificationWatchdog, wd.Method)
	assert.JSONEq(t, `{"from":"alive","to":"stalled"}`, string(wd.Params))
}

func TestSendNotification_DropsWhenFull(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 1)
	ns <- models.Notification{Method: "prefill"}

	for range 10 {
		RecordingChanged(ns, models.RecordingResponse{Recording: true})
	}

	msg := <-ns
	assert.Equal(t, "prefill", msg.Method)
	assert.Empty(t, ns)
}
