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

package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/config"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/recorder"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/sources"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T, dir string, edit func(*config.Values)) *config.Instance {
	t.Helper()
	vals := config.BaseDefaults
	vals.API.Enabled = false
	if edit != nil {
		edit(&vals)
	}
	cfg, err := config.NewConfig(dir, vals)
	require.NoError(t, err)
	return cfg
}

func logMessages(snap *stream.Snapshot) []string {
	out := make([]string, 0, len(snap.Logs))
	for _, l := range snap.Logs {
		out = append(out, l.Message)
	}
	return out
}

// runService starts svc and advances the fake clock in sample sized steps
// until the returned cancel func is called.
func runService(t *testing.T, svc *Service, clock *clockwork.FakeClock) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Run(ctx)
	}()

	// synthetic source ticker and the tick loop ticker
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 2))

	advancing := make(chan struct{})
	go func() {
		defer close(advancing)
		for ctx.Err() == nil {
			clock.Advance(50 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}()

	return func() {
		stop()
		<-advancing
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("service did not stop")
		}
	}
}

func TestNew_RequiresConfig(t *testing.T) {
	t.Parallel()
	_, err := New(Options{})
	require.Error(t, err)
}

func TestNew_UnknownDriver(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t, t.TempDir(), nil)

	_, err := New(Options{Config: cfg, Driver: "bluetooth", Clock: clockwork.NewFakeClock()})
	require.ErrorIs(t, err, sources.ErrInvalidDriver)
	assert.Contains(t, err.Error(), `source driver "bluetooth" not found`)
}

func TestSelectSource(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t, t.TempDir(), nil)
	all := DefaultSources(clockwork.NewFakeClock(), cfg)

	tests := []struct {
		driver string
		want   string
	}{
		{driver: "synthetic", want: config.DriverSynthetic},
		{driver: "demo", want: config.DriverSynthetic},
		{driver: "backend", want: config.DriverSubprocess},
		{driver: "Serial", want: config.DriverSerial},
		{driver: "uart", want: config.DriverSerial},
		{driver: "mqtt", want: config.DriverMQTT},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			t.Parallel()
			src, err := SelectSource(all, tt.driver)
			require.NoError(t, err)
			assert.Equal(t, tt.want, src.Metadata().ID)
		})
	}

	_, err := SelectSource(all, "")
	require.ErrorIs(t, err, sources.ErrInvalidDriver)
}

func TestRun_Synthetic(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	cfg := newTestConfig(t, t.TempDir(), nil)

	svc, err := New(Options{Config: cfg, Clock: clock, Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	assert.Equal(t, config.DriverSynthetic, svc.Source().Metadata().ID)

	cancel := runService(t, svc, clock)

	assert.Eventually(t, func() bool {
		snap := svc.Monitor().Snapshot()
		return snap.HasBPM && len(snap.Waveform) > 0
	}, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, logMessages(svc.Monitor().Snapshot()), "[SIM] running mock BPM & packets")
	assert.True(t, svc.Source().Connected())

	cancel()
	assert.False(t, svc.Source().Connected())
}

func TestRun_RecordsPackets(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	fs := afero.NewMemMapFs()
	cfg := newTestConfig(t, t.TempDir(), func(v *config.Values) {
		v.Recording.Enabled = true
	})

	svc, err := New(Options{Config: cfg, Clock: clock, Fs: fs, DataDir: "/data"})
	require.NoError(t, err)

	cancel := runService(t, svc, clock)
	assert.Eventually(t, func() bool {
		session, ok := svc.Recorder().Session()
		return ok && session.Rows >= 2
	}, 3*time.Second, 10*time.Millisecond)
	cancel()

	assert.False(t, svc.Recorder().Recording())
	session, ok := svc.Recorder().Session()
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/data", config.RecordsDir), filepath.Dir(session.Path))

	data, err := afero.ReadFile(fs, session.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, strings.Join(recorder.Header, ","), lines[0])
	assert.Len(t, lines, session.Rows+1)
}

func TestRun_ReloadsThresholds(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	dir := t.TempDir()
	cfg := newTestConfig(t, dir, nil)

	svc, err := New(Options{Config: cfg, Clock: clock, Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	cancel := runService(t, svc, clock)
	defer cancel()

	other := newTestConfig(t, dir, nil)
	require.NoError(t, other.SetAlarmThresholds(55, 125))
	require.NoError(t, other.Save())

	assert.Eventually(t, func() bool {
		return svc.Monitor().Settings().Thresholds() == stream.Thresholds{Low: 55, High: 125}
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSetThresholds(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := newTestConfig(t, dir, nil)
	svc, err := New(Options{Config: cfg, Clock: clockwork.NewFakeClock(), Fs: afero.NewMemMapFs()})
	require.NoError(t, err)

	require.NoError(t, svc.SetThresholds(stream.Thresholds{Low: 35, High: 140}))
	assert.Equal(t, stream.Thresholds{Low: 35, High: 140}, svc.Thresholds())
	assert.Equal(t, stream.Thresholds{Low: 40, High: 90}, svc.Snapshot().Thresholds, "snapshot waits for a tick")

	reloaded := newTestConfig(t, dir, nil)
	low, high := reloaded.AlarmThresholds()
	assert.InDelta(t, 35.0, low, 0.0001)
	assert.InDelta(t, 140.0, high, 0.0001)

	require.Error(t, svc.SetThresholds(stream.Thresholds{Low: 0, High: 140}))
	assert.Equal(t, stream.Thresholds{Low: 35, High: 140}, svc.Monitor().Settings().Thresholds())
}

func TestToggleRecording(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	cfg := newTestConfig(t, t.TempDir(), nil)
	svc, err := New(Options{Config: cfg, Clock: clockwork.NewFakeClock(), Fs: fs, DataDir: "/data"})
	require.NoError(t, err)

	on, err := svc.ToggleRecording()
	require.NoError(t, err)
	assert.True(t, on)

	off, err := svc.ToggleRecording()
	require.NoError(t, err)
	assert.False(t, off)

	session, ok := svc.Recorder().Session()
	require.True(t, ok)
	exists, err := afero.Exists(fs, session.Path)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestToggleRecording_ReadOnly(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t, t.TempDir(), nil)
	svc, err := New(Options{
		Config: cfg,
		Clock:  clockwork.NewFakeClock(),
		Fs:     afero.NewReadOnlyFs(afero.NewMemMapFs()),
	})
	require.NoError(t, err)

	on, err := svc.ToggleRecording()
	require.Error(t, err)
	assert.False(t, on)
}
