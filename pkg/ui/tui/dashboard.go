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

// Package tui is the terminal dashboard. It only reads published monitor
// snapshots and drives the service through Controller.
package tui

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/gdamore/tcell/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

// Threshold ranges match the dashboard sliders.
const (
	LowMin        = 30.0
	LowMax        = 100.0
	HighMin       = 60.0
	HighMax       = 150.0
	ThresholdStep = 1.0

	helpLine = "+/- high   [/] low   d drop   r record   q quit"
)

type Controller interface {
	Snapshot() *stream.Snapshot
	// Thresholds returns the live bounds, which may be newer than the
	// last snapshot.
	Thresholds() stream.Thresholds
	SourceInfo() string
	Recording() bool
	SetThresholds(th stream.Thresholds) error
	ToggleRecording() (bool, error)
	SimulateDrop(d time.Duration)
}

type Dashboard struct {
	app    *tview.Application
	ctrl   Controller
	theme  *Theme
	root   *tview.Flex
	status *tview.TextView
	chart  *tview.TextView
	link   *tview.TextView
	logs   *tview.TextView
	footer *tview.TextView
}

func NewDashboard(app *tview.Application, ctrl Controller) *Dashboard {
	d := &Dashboard{
		app:    app,
		ctrl:   ctrl,
		theme:  CurrentTheme(),
		status: tview.NewTextView().SetDynamicColors(true),
		chart:  tview.NewTextView().SetDynamicColors(true),
		link:   tview.NewTextView().SetDynamicColors(true),
		logs:   tview.NewTextView().SetDynamicColors(true),
		footer: tview.NewTextView().SetDynamicColors(true).SetText(helpLine),
	}

	d.chart.SetBorder(true).SetTitle("BPM")
	d.logs.SetBorder(true).SetTitle("Log")
	d.logs.SetScrollable(true)

	d.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.status, 2, 0, false).
		AddItem(d.chart, 7, 0, false).
		AddItem(d.link, 1, 0, false).
		AddItem(d.logs, 0, 1, false).
		AddItem(d.footer, 1, 0, false)
	d.root.SetBorder(true).
		SetTitle("Zaparoo Pulse").
		SetTitleAlign(tview.AlignCenter)
	app.SetInputCapture(d.HandleKey)

	return d
}

func (d *Dashboard) Root() tview.Primitive {
	return d.root
}

// Refresh redraws every panel from the latest snapshot. Call it from the
// application goroutine.
func (d *Dashboard) Refresh() {
	snap := d.ctrl.Snapshot()
	if snap == nil {
		return
	}

	_, _, width, _ := d.chart.GetInnerRect()
	if width <= 0 {
		width = 60
	}

	d.status.SetText(RenderStatus(d.theme, snap, d.ctrl.Recording()))
	d.chart.SetText(RenderChart(d.theme, snap, width))
	d.link.SetText(RenderLink(snap, d.ctrl.SourceInfo()))
	d.logs.SetText(RenderLogs(snap))
	d.logs.ScrollToEnd()
}

func (d *Dashboard) flash(format string, args ...any) {
	d.footer.SetText(fmt.Sprintf("[%s]%s[-]   %s",
		d.theme.AlarmColorName, tview.Escape(fmt.Sprintf(format, args...)), helpLine))
}

func clampStep(v, delta, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v+delta))
}

func (d *Dashboard) adjustThresholds(dLow, dHigh float64) {
	th := d.ctrl.Thresholds()
	th.Low = clampStep(th.Low, dLow, LowMin, LowMax)
	th.High = clampStep(th.High, dHigh, HighMin, HighMax)
	if err := d.ctrl.SetThresholds(th); err != nil {
		log.Error().Err(err).Msg("error setting thresholds")
		d.flash("thresholds: %v", err)
	}
}

// HandleKey implements the dashboard key bindings.
func (d *Dashboard) HandleKey(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyEscape {
		d.app.Stop()
		return nil
	}
	if event.Key() != tcell.KeyRune {
		return event
	}

	switch event.Rune() {
	case '+', '=':
		d.adjustThresholds(0, ThresholdStep)
	case '-', '_':
		d.adjustThresholds(0, -ThresholdStep)
	case ']':
		d.adjustThresholds(ThresholdStep, 0)
	case '[':
		d.adjustThresholds(-ThresholdStep, 0)
	case 'd', 'D':
		d.ctrl.SimulateDrop(stream.DefaultDropDuration)
	case 'r', 'R':
		if _, err := d.ctrl.ToggleRecording(); err != nil {
			log.Error().Err(err).Msg("error toggling recording")
			d.flash("recording: %v", err)
		}
	case 'q', 'Q':
		d.app.Stop()
	default:
		return event
	}
	return nil
}

// Run shows the dashboard until the user quits or ctx is cancelled. A nil
// screen uses the terminal.
func Run(ctx context.Context, ctrl Controller, clock clockwork.Clock, interval time.Duration, screen tcell.Screen) error {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ApplyTheme(CurrentTheme())

	app := tview.NewApplication()
	if screen != nil {
		app.SetScreen(screen)
	}
	d := NewDashboard(app, ctrl)
	d.Refresh()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// queued so a stop before Run starts is not lost
				app.QueueUpdate(app.Stop)
				return
			case <-ticker.Chan():
				app.QueueUpdateDraw(d.Refresh)
			}
		}
	}()

	if err := app.SetRoot(d.Root(), true).Run(); err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}
