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
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/gdamore/tcell/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rivo/tview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockController struct {
	mock.Mock
	snap *stream.Snapshot
	th   stream.Thresholds
}

func newMockController(th stream.Thresholds) *mockController {
	return &mockController{th: th, snap: &stream.Snapshot{
		Thresholds: th,
		CurrentBPM: 72.3,
		HasBPM:     true,
		Watchdog:   stream.WatchdogAlive,
	}}
}

func (m *mockController) Snapshot() *stream.Snapshot {
	return m.snap
}

func (*mockController) SourceInfo() string {
	return "synthetic: idle"
}

func (*mockController) Recording() bool {
	return false
}

func (m *mockController) Thresholds() stream.Thresholds {
	return m.th
}

// SetThresholds updates the live bounds but not the snapshot, like the
// service does between ticks.
func (m *mockController) SetThresholds(th stream.Thresholds) error {
	args := m.Called(th)
	if err := args.Error(0); err != nil {
		return err //nolint:wrapcheck // mock returns are passed through
	}
	m.th = th
	return nil
}

func (m *mockController) ToggleRecording() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func (m *mockController) SimulateDrop(d time.Duration) {
	m.Called(d)
}

func runeKey(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestHandleKey_Thresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		start stream.Thresholds
		want  stream.Thresholds
		key   rune
	}{
		{name: "raise high", key: '+', start: stream.Thresholds{Low: 40, High: 90}, want: stream.Thresholds{Low: 40, High: 91}},
		{name: "raise high alias", key: '=', start: stream.Thresholds{Low: 40, High: 90}, want: stream.Thresholds{Low: 40, High: 91}},
		{name: "lower high", key: '-', start: stream.Thresholds{Low: 40, High: 90}, want: stream.Thresholds{Low: 40, High: 89}},
		{name: "raise low", key: ']', start: stream.Thresholds{Low: 40, High: 90}, want: stream.Thresholds{Low: 41, High: 90}},
		{name: "lower low", key: '[', start: stream.Thresholds{Low: 40, High: 90}, want: stream.Thresholds{Low: 39, High: 90}},
		{name: "low floor", key: '[', start: stream.Thresholds{Low: 30, High: 90}, want: stream.Thresholds{Low: 30, High: 90}},
		{name: "low ceiling", key: ']', start: stream.Thresholds{Low: 100, High: 120}, want: stream.Thresholds{Low: 100, High: 120}},
		{name: "high floor", key: '-', start: stream.Thresholds{Low: 40, High: 60}, want: stream.Thresholds{Low: 40, High: 60}},
		{name: "high ceiling", key: '+', start: stream.Thresholds{Low: 40, High: 150}, want: stream.Thresholds{Low: 40, High: 150}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := newMockController(tt.start)
			ctrl.On("SetThresholds", tt.want).Return(nil).Once()

			d := NewDashboard(tview.NewApplication(), ctrl)
			assert.Nil(t, d.HandleKey(runeKey(tt.key)))
			ctrl.AssertExpectations(t)
		})
	}
}

func TestHandleKey_RepeatedPressesBetweenTicks(t *testing.T) {
	t.Parallel()
	ctrl := newMockController(stream.Thresholds{Low: 40, High: 90})
	ctrl.On("SetThresholds", stream.Thresholds{Low: 40, High: 91}).Return(nil).Once()
	ctrl.On("SetThresholds", stream.Thresholds{Low: 40, High: 92}).Return(nil).Once()
	ctrl.On("SetThresholds", stream.Thresholds{Low: 41, High: 92}).Return(nil).Once()

	d := NewDashboard(tview.NewApplication(), ctrl)
	d.HandleKey(runeKey('+'))
	d.HandleKey(runeKey('+'))
	d.HandleKey(runeKey(']'))

	ctrl.AssertExpectations(t)
	assert.Equal(t, stream.Thresholds{Low: 40, High: 90}, ctrl.Snapshot().Thresholds)
}

func TestHandleKey_ThresholdError(t *testing.T) {
	t.Parallel()
	ctrl := newMockController(stream.Thresholds{Low: 40, High: 90})
	ctrl.On("SetThresholds", mock.Anything).Return(errors.New("disk full"))

	d := NewDashboard(tview.NewApplication(), ctrl)
	d.HandleKey(runeKey('+'))
	assert.Contains(t, d.footer.GetText(true), "thresholds: disk full")
}

func TestHandleKey_Actions(t *testing.T) {
	t.Parallel()
	ctrl := newMockController(stream.Thresholds{Low: 40, High: 90})
	ctrl.On("SimulateDrop", stream.DefaultDropDuration).Return().Once()
	ctrl.On("ToggleRecording").Return(true, nil).Once()

	d := NewDashboard(tview.NewApplication(), ctrl)
	assert.Nil(t, d.HandleKey(runeKey('d')))
	assert.Nil(t, d.HandleKey(runeKey('r')))

	other := runeKey('x')
	assert.Same(t, other, d.HandleKey(other))

	arrow := tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone)
	assert.Same(t, arrow, d.HandleKey(arrow))

	ctrl.AssertExpectations(t)
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	ctrl := newMockController(stream.Thresholds{Low: 40, High: 90})
	ctrl.snap.Logs = []stream.LogLine{{Time: time.Now(), Message: "Packet stream resumed"}}

	d := NewDashboard(tview.NewApplication(), ctrl)
	d.Refresh()

	assert.Contains(t, d.status.GetText(true), "72.3")
	assert.Contains(t, d.link.GetText(true), "synthetic: idle")
	assert.Contains(t, d.logs.GetText(true), "Packet stream resumed")
}

func screenText(screen tcell.SimulationScreen) string {
	cells, _, _ := screen.GetContents()
	var b strings.Builder
	for _, c := range cells {
		if len(c.Runes) > 0 {
			b.WriteRune(c.Runes[0])
		}
	}
	return b.String()
}

//nolint:paralleltest // tview global styles
func TestRun_QuitKey(t *testing.T) {
	ctrl := newMockController(stream.Thresholds{Low: 40, High: 90})
	screen := tcell.NewSimulationScreen("UTF-8")
	screen.SetSize(100, 30)

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), ctrl, clockwork.NewRealClock(), 20*time.Millisecond, screen)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(screenText(screen), "72.3")
	}, 2*time.Second, 10*time.Millisecond)

	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dashboard did not quit")
	}
}

//nolint:paralleltest // tview global styles
func TestRun_ContextCancel(t *testing.T) {
	ctrl := newMockController(stream.Thresholds{Low: 40, High: 90})
	screen := tcell.NewSimulationScreen("UTF-8")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, ctrl, clockwork.NewRealClock(), 20*time.Millisecond, screen)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dashboard did not stop on cancel")
	}
}
