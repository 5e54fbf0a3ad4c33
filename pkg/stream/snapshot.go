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

// Snapshot is an immutable view of the monitor after a tick. Renderers on
// any goroutine may read it; nothing in it is shared with the monitor.
type Snapshot struct {
	Time         time.Time        `json:"time"`
	LastPacket   time.Time        `json:"last_packet"`
	DropUntil    time.Time        `json:"drop_until"`
	BPM          []Entry[float64] `json:"bpm"`
	Waveform     []Entry[int]     `json:"waveform"`
	Logs         []LogLine        `json:"logs"`
	Metrics      ResearchMetrics  `json:"metrics"`
	Link         LinkSnapshot     `json:"link"`
	Thresholds   Thresholds       `json:"thresholds"`
	CurrentBPM   float64          `json:"current_bpm"`
	MeanBPM      float64          `json:"mean_bpm"`
	RetentionMs  int64            `json:"retention_ms"`
	SilenceMs    int64            `json:"silence_ms"`
	Tick         uint64           `json:"tick"`
	QueueDropped uint64           `json:"queue_dropped"`
	Clamped      int              `json:"clamped"`
	Alarm        AlarmState       `json:"alarm"`
	Watchdog     WatchdogState    `json:"watchdog"`
	HasBPM       bool             `json:"has_bpm"`
	HasMeanBPM   bool             `json:"has_mean_bpm"`
	Dropping     bool             `json:"dropping"`
}

// Stalled reports whether the watchdog overlay should be shown.
func (s *Snapshot) Stalled() bool {
	return s.Watchdog == WatchdogStalled
}

// BPMValues returns the BPM series values, oldest first.
func (s *Snapshot) BPMValues() []float64 {
	out := make([]float64, len(s.BPM))
	for i, e := range s.BPM {
		out[i] = e.Value
	}
	return out
}

// emptySnapshot is served before the first tick.
func emptySnapshot(now time.Time, th Thresholds, retention time.Duration) *Snapshot {
	return &Snapshot{
		Time:        now,
		BPM:         []Entry[float64]{},
		Waveform:    []Entry[int]{},
		Logs:        []LogLine{},
		Thresholds:  th,
		RetentionMs: retention.Milliseconds(),
		Alarm:       AlarmNormal,
		Watchdog:    WatchdogNoData,
	}
}
