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

package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/rivo/tview"
)

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// chartMargin pads the chart range around the data and thresholds.
const chartMargin = 5.0

// Sparkline renders values as one row of block characters, width cells
// wide. When there are more values than cells each cell shows the mean of
// its bucket.
func Sparkline(values []float64, width int, lo, hi float64) string {
	if width <= 0 || len(values) == 0 {
		return ""
	}
	if hi <= lo {
		hi = lo + 1
	}

	n := len(values)
	cells := min(width, n)
	var b strings.Builder
	for i := range cells {
		start := i * n / cells
		end := (i + 1) * n / cells
		var sum float64
		for _, v := range values[start:end] {
			sum += v
		}
		mean := sum / float64(end-start)

		f := math.Max(0, math.Min(1, (mean-lo)/(hi-lo)))
		b.WriteRune(sparkRunes[int(math.Round(f*float64(len(sparkRunes)-1)))])
	}
	return b.String()
}

// ChartRange returns the BPM range the chart is scaled to: the data and
// both thresholds plus a margin.
func ChartRange(values []float64, th stream.Thresholds) (lo, hi float64) {
	lo = math.Min(th.Low, th.High)
	hi = math.Max(th.Low, th.High)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return math.Max(0, lo-chartMargin), hi + chartMargin
}

func formatBPM(v float64, ok bool) string {
	if !ok {
		return "--"
	}
	return fmt.Sprintf("%.1f", v)
}

func indicator(theme *Theme, label string, on bool, onColor string) string {
	color := theme.IdleColorName
	if on {
		color = onColor
	}
	return fmt.Sprintf("[%s]● %s[-]", color, label)
}

// RenderStatus draws the numbers and the LOW, HIGH and REMOTE indicators.
// REMOTE is green while packets arrive and red once the watchdog trips.
func RenderStatus(theme *Theme, snap *stream.Snapshot, recording bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]BPM:[::-] %s   [::b]Mean:[::-] %s",
		formatBPM(snap.CurrentBPM, snap.HasBPM),
		formatBPM(snap.MeanBPM, snap.HasMeanBPM))

	rmssd, sdppg := "--", "--"
	if snap.Metrics.HasRMSSD {
		rmssd = fmt.Sprintf("%.0f ms", snap.Metrics.RMSSDMs)
	}
	if snap.Metrics.HasSDPPG {
		sdppg = fmt.Sprintf("%.1f", snap.Metrics.SDPPG)
	}
	fmt.Fprintf(&b, "   [%s]RMSSD[-] %s   [%s]SDPPG[-] %s\n",
		theme.LabelColorName, rmssd, theme.LabelColorName, sdppg)

	remoteColor := theme.OKColorName
	if snap.Stalled() {
		remoteColor = theme.AlarmColorName
	}
	b.WriteString(indicator(theme, "LOW", snap.Alarm == stream.AlarmLow, theme.AlarmColorName))
	b.WriteString("  ")
	b.WriteString(indicator(theme, "HIGH", snap.Alarm == stream.AlarmHigh, theme.AlarmColorName))
	b.WriteString("  ")
	b.WriteString(indicator(theme, "REMOTE", snap.Watchdog != stream.WatchdogNoData, remoteColor))

	fmt.Fprintf(&b, "   [%s]thresholds[-] %.0f / %.0f", theme.LabelColorName, snap.Thresholds.Low, snap.Thresholds.High)
	if recording {
		fmt.Fprintf(&b, "   [%s]● REC[-]", theme.AlarmColorName)
	}
	return b.String()
}

// RenderChart draws the BPM sparkline with its scale, or the stall overlay.
func RenderChart(theme *Theme, snap *stream.Snapshot, width int) string {
	values := snap.BPMValues()
	lo, hi := ChartRange(values, snap.Thresholds)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]%5.0f[-]\n", theme.LabelColorName, hi)
	if line := Sparkline(values, width, lo, hi); line != "" {
		fmt.Fprintf(&b, "[%s]%s[-]\n", theme.AccentColorName, line)
	} else {
		b.WriteString("waiting for data\n")
	}
	fmt.Fprintf(&b, "[%s]%5.0f[-]", theme.LabelColorName, lo)

	if snap.Stalled() {
		fmt.Fprintf(&b, "\n[%s::b]%s[-::-]", theme.AlarmColorName, stream.MsgStalled)
	}
	if snap.Dropping {
		fmt.Fprintf(&b, "\n[%s]simulated drop until %s[-]",
			theme.LabelColorName, snap.DropUntil.Local().Format(time.TimeOnly))
	}
	return b.String()
}

func RenderLink(snap *stream.Snapshot, sourceInfo string) string {
	link := snap.Link
	latency := "--"
	if link.HasLatency {
		latency = fmt.Sprintf("%.0f ms", link.LatencyP95Ms)
	}
	return fmt.Sprintf(
		"%s | packets %d, missed %d (%.1f%%), p95 latency %s | queue dropped %d, clamped %d",
		tview.Escape(sourceInfo),
		link.Total, link.Missed, link.LossPercent, latency,
		snap.QueueDropped, snap.Clamped,
	)
}

func RenderLogs(snap *stream.Snapshot) string {
	lines := make([]string, len(snap.Logs))
	for i, l := range snap.Logs {
		lines[i] = tview.Escape(l.String())
	}
	return strings.Join(lines, "\n")
}
