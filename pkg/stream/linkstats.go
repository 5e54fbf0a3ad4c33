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
	"errors"
	"fmt"
)

const (
	// LatencyHistory is the number of latency samples kept.
	LatencyHistory = 600
	// minLatencySamples is the count needed before a P95 is reported.
	minLatencySamples = 5
)

var ErrInvalidSeq = errors.New("invalid sequence number")

// LinkStats estimates packet loss from sequence gaps and host-side latency
// from device timestamps. Best effort only; nothing else depends on it.
type LinkStats struct {
	prevSeq   *int
	latencies []float64
	next      int
	capacity  int
	missed    int
	total     int
}

func NewLinkStats(capacity int) *LinkStats {
	if capacity <= 0 {
		capacity = LatencyHistory
	}
	return &LinkStats{
		capacity:  capacity,
		latencies: make([]float64, 0, capacity),
	}
}

// Observe accounts one packet. Latency is always recorded; an invalid
// sequence number is reported as an error after the latency is stored and
// the packet is still counted.
func (s *LinkStats) Observe(p *Packet) error {
	latency := float64(p.HostTime.UnixMilli() - p.DeviceTimeMs)
	s.pushLatency(max(0, latency))

	s.total++

	if p.Seq < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSeq, p.Seq)
	}

	if s.prevSeq != nil {
		gap := ((p.Seq-*s.prevSeq)%SeqModulus + SeqModulus) % SeqModulus
		if gap > 1 {
			s.missed += gap - 1
		}
	}
	seq := p.Seq
	s.prevSeq = &seq

	return nil
}

func (s *LinkStats) pushLatency(v float64) {
	if len(s.latencies) < s.capacity {
		s.latencies = append(s.latencies, v)
		return
	}
	s.latencies[s.next] = v
	s.next = (s.next + 1) % s.capacity
}

func (s *LinkStats) Missed() int {
	return s.missed
}

func (s *LinkStats) Total() int {
	return s.total
}

// LossPercent is missed / (missed + received) * 100.
func (s *LinkStats) LossPercent() float64 {
	if s.missed+s.total == 0 {
		return 0
	}
	return 100 * float64(s.missed) / float64(s.missed+s.total)
}

// Latencies returns the latency history in milliseconds, oldest first.
func (s *LinkStats) Latencies() []float64 {
	out := make([]float64, 0, len(s.latencies))
	if len(s.latencies) < s.capacity {
		return append(out, s.latencies...)
	}
	out = append(out, s.latencies[s.next:]...)
	return append(out, s.latencies[:s.next]...)
}

// LatencyP95 returns the 95th percentile latency once enough samples exist.
func (s *LinkStats) LatencyP95() (float64, bool) {
	if len(s.latencies) < minLatencySamples {
		return 0, false
	}
	return Percentile(s.latencies, 95), true
}

// LinkSnapshot is the renderer view of LinkStats.
type LinkSnapshot struct {
	Missed       int     `json:"missed"`
	Total        int     `json:"total"`
	LossPercent  float64 `json:"loss_percent"`
	LatencyP95Ms float64 `json:"latency_p95_ms"`
	HasLatency   bool    `json:"has_latency"`
}

func (s *LinkStats) Snapshot() LinkSnapshot {
	p95, ok := s.LatencyP95()
	return LinkSnapshot{
		Missed:       s.missed,
		Total:        s.total,
		LossPercent:  s.LossPercent(),
		LatencyP95Ms: p95,
		HasLatency:   ok,
	}
}
