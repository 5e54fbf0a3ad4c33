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

// Package stream is the ingestion core: it turns text lines into typed
// events, carries them from a producer goroutine to the consumer through a
// FIFO queue, and keeps the time-windowed buffers, the liveness watchdog and
// the alarm state that renderers read through snapshots.
package stream

import (
	"fmt"
	"time"
)

const (
	// SampleRate is the nominal waveform rate of a packet in Hz.
	SampleRate = 50
	// PacketDuration is the span of waveform carried by one packet.
	PacketDuration = time.Second
	// SeqModulus is the wrap-around of device sequence numbers.
	SeqModulus = 65536
)

// Event is anything a source can put on the queue. The concrete types are
// LogEvent, BpmEvent, PacketEvent and ParseErrorEvent.
type Event interface {
	isEvent()
}

// LogEvent carries a message for the log view.
type LogEvent struct {
	Time    time.Time
	Message string
}

// BpmEvent is a simple heart rate sample.
type BpmEvent struct {
	Time time.Time
	BPM  float64
}

// PacketEvent is a full packet with one second of waveform.
type PacketEvent struct {
	Packet Packet
}

// ParseErrorEvent reports a line that matched no known format.
type ParseErrorEvent struct {
	Time time.Time
	Err  error
	Line string
}

func (LogEvent) isEvent()        {}
func (BpmEvent) isEvent()        {}
func (PacketEvent) isEvent()     {}
func (ParseErrorEvent) isEvent() {}

// NewLogEvent builds a LogEvent with a formatted message.
func NewLogEvent(t time.Time, format string, args ...any) LogEvent {
	return LogEvent{
		Time:    t,
		Message: fmt.Sprintf(format, args...),
	}
}

// Packet is one second of waveform plus a coincident BPM estimate.
type Packet struct {
	HostTime     time.Time
	Samples      []int
	BPM          float64
	Seq          int
	Flags        int
	DeviceTimeMs int64
}

// Waveform expands the packet samples across the second ending at HostTime,
// sample i landing at HostTime - 1s + i/SampleRate.
func (p *Packet) Waveform() []Entry[int] {
	base := p.HostTime.Add(-PacketDuration)
	out := make([]Entry[int], len(p.Samples))
	for i, v := range p.Samples {
		out[i] = Entry[int]{
			Time:  base.Add(time.Duration(i) * time.Second / SampleRate),
			Value: v,
		}
	}
	return out
}
