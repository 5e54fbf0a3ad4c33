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

import (
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zeros(n int) string {
	return "[" + strings.TrimSuffix(strings.Repeat("0,", n), ",") + "]"
}

func TestParse_BpmLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want float64
	}{
		{name: "bare number", line: "72.4", want: 72.4},
		{name: "bare number with extra fields", line: "72.4,98,ok", want: 72.4},
		{name: "surrounding whitespace", line: "  61 \r\n", want: 61},
		{name: "compact json", line: `{"bpm":72.3}`, want: 72.3},
		{name: "compact json with spaces", line: `{ "bpm" : 80 }`, want: 80},
		{name: "negative number", line: "-3", want: -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := clockwork.NewFakeClock()
			p := NewParser(clock)

			ev := p.Parse(tt.line)
			bpm, ok := ev.(BpmEvent)
			require.True(t, ok, "expected BpmEvent, got %T", ev)
			assert.InDelta(t, tt.want, bpm.BPM, 1e-9)
			assert.Equal(t, clock.Now(), bpm.Time)
		})
	}
}

func TestParse_FullPacket(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	p := NewParser(clock)

	ev := p.Parse(`{"bpm":72.3,"samples":` + zeros(50) + `,"seq":5}`)
	pkt, ok := ev.(PacketEvent)
	require.True(t, ok, "expected PacketEvent, got %T", ev)

	assert.InDelta(t, 72.3, pkt.Packet.BPM, 1e-9)
	assert.Equal(t, 5, pkt.Packet.Seq)
	assert.Equal(t, 0, pkt.Packet.Flags)
	assert.Equal(t, int64(0), pkt.Packet.DeviceTimeMs)
	assert.Len(t, pkt.Packet.Samples, 50)
	assert.Equal(t, clock.Now(), pkt.Packet.HostTime)
}

func TestParse_PacketOptionalFields(t *testing.T) {
	t.Parallel()

	p := NewParser(clockwork.NewFakeClock())

	ev := p.Parse(`{"bpm":60,"samples":[1,-2,3],"seq":9,"flags":3,"t_mcu":123456}`)
	pkt, ok := ev.(PacketEvent)
	require.True(t, ok)

	assert.Equal(t, []int{1, -2, 3}, pkt.Packet.Samples)
	assert.Equal(t, 9, pkt.Packet.Seq)
	assert.Equal(t, 3, pkt.Packet.Flags)
	assert.Equal(t, int64(123456), pkt.Packet.DeviceTimeMs)
}

func TestParse_MissingSeqUsesCounter(t *testing.T) {
	t.Parallel()

	p := NewParser(clockwork.NewFakeClock())

	first, ok := p.Parse(`{"bpm":60,"samples":[]}`).(PacketEvent)
	require.True(t, ok)
	withSeq, ok := p.Parse(`{"bpm":60,"samples":[],"seq":400}`).(PacketEvent)
	require.True(t, ok)
	third, ok := p.Parse(`{"bpm":60,"samples":[]}`).(PacketEvent)
	require.True(t, ok)

	assert.Equal(t, 0, first.Packet.Seq)
	assert.Equal(t, 400, withSeq.Packet.Seq)
	assert.Equal(t, 401, third.Packet.Seq)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		line    string
	}{
		{name: "plain text", line: "not json or number", wantErr: ErrNotNumeric},
		{name: "empty", line: "   ", wantErr: ErrEmptyLine},
		{name: "broken json", line: `{"bpm":`, wantErr: ErrNotJSONObject},
		{name: "json never falls back to numeric", line: `{72}`, wantErr: ErrNotJSONObject},
		{name: "missing bpm", line: `{"seq":1}`, wantErr: ErrMissingBPM},
		{name: "null bpm", line: `{"bpm":null}`, wantErr: ErrMissingBPM},
		{name: "string bpm", line: `{"bpm":"72"}`, wantErr: ErrNotJSONObject},
		{name: "bad samples", line: `{"bpm":70,"samples":[1,"x"]}`, wantErr: ErrInvalidSamples},
		{name: "samples not a list", line: `{"bpm":70,"samples":{}}`, wantErr: ErrInvalidSamples},
		{name: "nan", line: "NaN", wantErr: ErrNotFinite},
		{name: "infinity", line: "+Inf,1", wantErr: ErrNotFinite},
		{name: "json array", line: "[1,2]", wantErr: ErrNotNumeric},
		{name: "empty first field", line: ",72", wantErr: ErrNotNumeric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := clockwork.NewFakeClock()
			ev := NewParser(clock).Parse(tt.line)

			perr, ok := ev.(ParseErrorEvent)
			require.True(t, ok, "expected ParseErrorEvent, got %T", ev)
			require.ErrorIs(t, perr.Err, tt.wantErr)
			assert.Equal(t, strings.TrimSpace(tt.line), perr.Line)
			assert.Equal(t, clock.Now(), perr.Time)
		})
	}
}

func TestParse_StampsParseTime(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	p := NewParser(clock)

	first, ok := p.Parse("70").(BpmEvent)
	require.True(t, ok)
	clock.Advance(1500 * time.Millisecond)
	second, ok := p.Parse(`{"bpm":71,"samples":[],"t_mcu":1}`).(PacketEvent)
	require.True(t, ok)

	assert.Equal(t, 1500*time.Millisecond, second.Packet.HostTime.Sub(first.Time))
}

func TestPacketWaveform(t *testing.T) {
	t.Parallel()

	host := time.Date(2024, 9, 19, 17, 46, 50, 0, time.UTC)
	samples := make([]int, SampleRate)
	for i := range samples {
		samples[i] = i * 10
	}
	p := Packet{HostTime: host, Samples: samples}

	wave := p.Waveform()
	require.Len(t, wave, SampleRate)
	assert.Equal(t, host.Add(-time.Second), wave[0].Time)
	assert.Equal(t, host.Add(-20*time.Millisecond), wave[49].Time)
	assert.Equal(t, 490, wave[49].Value)
	for i := 1; i < len(wave); i++ {
		assert.Equal(t, 20*time.Millisecond, wave[i].Time.Sub(wave[i-1].Time))
	}
}
