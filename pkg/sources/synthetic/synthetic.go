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

// Package synthetic produces a believable pulse without any hardware, for
// demos and for developing the dashboard.
package synthetic

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/config"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/sources"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// SampleHz is the rate of simple BPM samples.
	SampleHz = 20
	// PacketInterval is the minimum gap between full packets.
	PacketInterval = time.Second
	// NoiseStdDev is the standard deviation of the waveform noise.
	NoiseStdDev = 60.0

	sampleInterval = time.Second / SampleHz
	waveAmplitude  = 1000.0
	waveHz         = 1.2
)

// BPMAt is the synthetic heart rate t seconds after start: a 71 BPM centre
// with slow 0.10 Hz and 0.04 Hz swings.
func BPMAt(t float64) float64 {
	return 71.0 + 3.5*math.Sin(2*math.Pi*0.10*t) + 1.0*math.Sin(2*math.Pi*0.04*t)
}

// Generator produces the events for each step. It is not safe for
// concurrent use.
type Generator struct {
	start      time.Time
	lastPacket time.Time
	rng        *rand.Rand
	seq        int
}

func NewGenerator(start time.Time, seed uint64) *Generator {
	return &Generator{
		start: start,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec // not security sensitive
	}
}

// Step returns a BpmEvent for now, followed by a PacketEvent when at least
// PacketInterval has passed since the previous packet. The first step
// always carries a packet.
func (g *Generator) Step(now time.Time) []stream.Event {
	elapsed := now.Sub(g.start)
	bpm := BPMAt(elapsed.Seconds())
	events := []stream.Event{stream.BpmEvent{Time: now, BPM: bpm}}

	if !g.lastPacket.IsZero() && now.Sub(g.lastPacket) < PacketInterval {
		return events
	}
	g.lastPacket = now

	samples := make([]int, stream.SampleRate)
	for i := range samples {
		x := float64(i) / stream.SampleRate
		samples[i] = int(waveAmplitude*math.Sin(2*math.Pi*waveHz*x) + NoiseStdDev*g.rng.NormFloat64())
	}

	events = append(events, stream.PacketEvent{Packet: stream.Packet{
		HostTime:     now,
		BPM:          bpm,
		Samples:      samples,
		Seq:          g.seq,
		Flags:        0,
		DeviceTimeMs: elapsed.Milliseconds(),
	}})
	g.seq = (g.seq + 1) % stream.SeqModulus
	return events
}

type Source struct {
	clock   clockwork.Clock
	stop    chan struct{}
	done    chan struct{}
	seed    uint64
	started time.Time
	mu      syncutil.RWMutex
}

func NewSource(clock clockwork.Clock) *Source {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Source{clock: clock, seed: rand.Uint64()} //nolint:gosec // not security sensitive
}

// WithSeed makes the waveform noise reproducible.
func (s *Source) WithSeed(seed uint64) *Source {
	s.seed = seed
	return s
}

func (*Source) Metadata() sources.DriverMetadata {
	return sources.DriverMetadata{
		ID:          config.DriverSynthetic,
		Description: "Simulated BPM and waveform packets",
	}
}

func (*Source) IDs() []string {
	return []string{config.DriverSynthetic, "sim", "mock", "demo"}
}

func (s *Source) Open(ctx context.Context, src config.Source, q *stream.Queue) error {
	if !sources.MatchesDriver(s, src.Driver) {
		return fmt.Errorf("%w: %s", sources.ErrInvalidDriver, src.Driver)
	}
	if s.Connected() {
		return sources.ErrAlreadyOpen
	}

	now := s.clock.Now()
	stop := make(chan struct{})
	done := make(chan struct{})
	s.mu.Lock()
	s.stop = stop
	s.done = done
	s.started = now
	s.mu.Unlock()

	log.Info().Msg("starting synthetic source")
	q.Put(stream.NewLogEvent(now, "[SIM] running mock BPM & packets"))

	gen := NewGenerator(now, s.seed)
	ticker := s.clock.NewTicker(sampleInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				for _, ev := range gen.Step(s.clock.Now()) {
					q.Put(ev)
				}
			}
		}
	}()

	return nil
}

// Close stops the generator. It returns once the goroutine has exited,
// which takes at most one sample interval.
func (s *Source) Close() error {
	s.mu.Lock()
	stop := s.stop
	done := s.done
	s.stop = nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (s *Source) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Source) Info() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.started.IsZero() {
		return "synthetic: idle"
	}
	return fmt.Sprintf("synthetic: %d Hz since %s", SampleHz, s.started.Format(time.TimeOnly))
}
