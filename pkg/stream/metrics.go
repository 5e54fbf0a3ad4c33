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
	"math"
	"slices"
	"time"
)

// These metrics are illustrative researcher views, not validated measures.

const (
	// BarBin is the bin width used for the mean BPM bars.
	BarBin = time.Second
	// SDPPGWindow is the number of newest waveform samples used for SDPPG.
	SDPPGWindow = 750

	minRMSSDSamples = 10
	minSDPPGSamples = 61
)

// ResearchMetrics groups the derived researcher values of one tick.
type ResearchMetrics struct {
	RMSSDMs  float64 `json:"rmssd_ms"`
	SDPPG    float64 `json:"sdppg"`
	HasRMSSD bool    `json:"has_rmssd"`
	HasSDPPG bool    `json:"has_sdppg"`
}

// BinnedMean splits the window ending at the newest entry into bins and
// returns the mean of the per-bin means, skipping empty bins.
func BinnedMean(entries []Entry[float64], window, bin time.Duration) (float64, bool) {
	if len(entries) == 0 || bin <= 0 || window < bin {
		return 0, false
	}
	newest := entries[len(entries)-1].Time
	nbins := int(window / bin)
	sums := make([]float64, nbins)
	counts := make([]int, nbins)

	for _, e := range entries {
		age := newest.Sub(e.Time)
		if age < 0 || age >= window {
			continue
		}
		idx := int(age / bin)
		if idx >= nbins {
			continue
		}
		sums[idx] += e.Value
		counts[idx]++
	}

	var total float64
	used := 0
	for i := range sums {
		if counts[i] == 0 {
			continue
		}
		total += sums[i] / float64(counts[i])
		used++
	}
	if used == 0 {
		return 0, false
	}
	return total / float64(used), true
}

// RMSSD converts BPM values to inter-beat intervals and returns the root
// mean square of successive differences in milliseconds. Values at or below
// 1 BPM are ignored.
func RMSSD(bpm []float64) (float64, bool) {
	if len(bpm) < minRMSSDSamples {
		return 0, false
	}
	ibi := make([]float64, 0, len(bpm))
	for _, v := range bpm {
		if v > 1.0 {
			ibi = append(ibi, 60.0/v)
		}
	}
	if len(ibi) < minRMSSDSamples {
		return 0, false
	}

	var sum float64
	for i := 1; i < len(ibi); i++ {
		d := ibi[i] - ibi[i-1]
		sum += d * d
	}
	return math.Sqrt(sum/float64(len(ibi)-1)) * 1000.0, true
}

// SDPPG is the RMS of the second difference of the newest waveform samples.
func SDPPG(wave []int) (float64, bool) {
	if len(wave) < minSDPPGSamples {
		return 0, false
	}
	if len(wave) > SDPPGWindow {
		wave = wave[len(wave)-SDPPGWindow:]
	}

	var sum float64
	n := 0
	for i := 2; i < len(wave); i++ {
		d2 := float64(wave[i] - 2*wave[i-1] + wave[i-2])
		sum += d2 * d2
		n++
	}
	return math.Sqrt(sum / float64(n)), true
}

// Percentile returns the p-th percentile using linear interpolation between
// closest ranks. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
