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

package recorder

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logSink struct {
	lines []string
}

func (l *logSink) logf(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func packet(seq int, host time.Time) stream.Packet {
	return stream.Packet{
		HostTime:     host,
		BPM:          72.34567,
		Samples:      []int{1, -2, 3},
		Seq:          seq,
		Flags:        0,
		DeviceTimeMs: 456789,
	}
}

func TestNewRow(t *testing.T) {
	t.Parallel()

	p := packet(7, time.Unix(1726768010, 250*int64(time.Millisecond)))
	row := NewRow(&p)

	assert.Equal(t, Row{
		THost:   "1726768010.250",
		TMCU:    456789,
		BPM:     "72.346",
		Seq:     7,
		Flags:   0,
		Samples: "[1,-2,3]",
	}, row)

	empty := NewRow(&stream.Packet{HostTime: time.Unix(0, 0)})
	assert.Equal(t, "[]", empty.Samples)
	assert.Equal(t, "0.000", empty.THost)
}

func TestRecordSession(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 9, 19, 17, 46, 50, 0, time.Local))
	sink := &logSink{}
	dir := filepath.Join("data", "records")
	rec := New(fs, clock, dir, sink.logf)

	// packets before start are ignored
	rec.OnPacket(packet(0, clock.Now()))

	session, err := rec.Start()
	require.NoError(t, err)
	assert.True(t, rec.Recording())
	assert.Equal(t, filepath.Join(dir, "session_20240919_174650.csv"), session.Path)
	_, err = uuid.Parse(session.ID)
	require.NoError(t, err)

	_, err = rec.Start()
	require.ErrorIs(t, err, ErrAlreadyRecording)

	host := time.Unix(1726768010, 0)
	rec.OnPacket(packet(1, host))
	p := packet(2, host.Add(time.Second))
	require.NoError(t, rec.Write(&p))

	clock.Advance(2 * time.Second)
	stopped, err := rec.Stop()
	require.NoError(t, err)
	assert.Equal(t, 2, stopped.Rows)
	assert.Equal(t, clock.Now(), stopped.Stopped)
	assert.False(t, rec.Recording())

	data, err := afero.ReadFile(fs, session.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "t_host,t_mcu_ms,bpm,seq,flags,samples_json", lines[0])
	assert.Equal(t, `1726768010.000,456789,72.346,1,0,"[1,-2,3]"`, lines[1])
	assert.Equal(t, `1726768011.000,456789,72.346,2,0,"[1,-2,3]"`, lines[2])

	assert.Equal(t, []string{
		"Recording started -> " + session.Path,
		"Recording stopped",
	}, sink.lines)

	last, ok := rec.Session()
	assert.True(t, ok)
	assert.Equal(t, session.ID, last.ID)
}

func TestStopAndWriteWhenIdle(t *testing.T) {
	t.Parallel()

	rec := New(afero.NewMemMapFs(), clockwork.NewFakeClock(), "records", nil)

	_, err := rec.Stop()
	require.ErrorIs(t, err, ErrNotRecording)

	p := packet(0, time.Now())
	require.ErrorIs(t, rec.Write(&p), ErrNotRecording)

	_, ok := rec.Session()
	assert.False(t, ok)
}

func TestStartFailureLeavesRecordingOff(t *testing.T) {
	t.Parallel()

	sink := &logSink{}
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	rec := New(fs, clockwork.NewFakeClock(), "records", sink.logf)

	_, err := rec.Start()
	require.Error(t, err)
	assert.False(t, rec.Recording())
	require.Len(t, sink.lines, 1)
	assert.True(t, strings.HasPrefix(sink.lines[0], "[REC] open failed: "), sink.lines[0])
}

func TestRestartWithinSecondKeepsPreviousSession(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 9, 19, 17, 46, 50, 0, time.Local))
	rec := New(fs, clock, "records", nil)

	first, err := rec.Start()
	require.NoError(t, err)
	rec.OnPacket(stream.Packet{HostTime: clock.Now(), BPM: 70, Samples: []int{1}})
	_, err = rec.Stop()
	require.NoError(t, err)
	before, err := afero.ReadFile(fs, first.Path)
	require.NoError(t, err)

	clock.Advance(300 * time.Millisecond)
	second, err := rec.Start()
	require.NoError(t, err)
	_, err = rec.Stop()
	require.NoError(t, err)
	third, err := rec.Start()
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = rec.Stop() })

	assert.Equal(t, "session_20240919_174650.csv", filepath.Base(first.Path))
	assert.Equal(t, "session_20240919_174650_2.csv", filepath.Base(second.Path))
	assert.Equal(t, "session_20240919_174650_3.csv", filepath.Base(third.Path))

	after, err := afero.ReadFile(fs, first.Path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSecondSessionGetsNewFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 9, 19, 17, 46, 50, 0, time.Local))
	rec := New(fs, clock, "records", nil)

	first, err := rec.Start()
	require.NoError(t, err)
	_, err = rec.Stop()
	require.NoError(t, err)

	clock.Advance(time.Minute)
	second, err := rec.Start()
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = rec.Stop() })

	assert.NotEqual(t, first.Path, second.Path)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "session_20240919_174750.csv", filepath.Base(second.Path))

	exists, err := afero.Exists(fs, first.Path)
	require.NoError(t, err)
	assert.True(t, exists)
}
