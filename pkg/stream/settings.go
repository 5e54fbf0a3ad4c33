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
	"math"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/syncutil"
)

var (
	ErrInvalidThreshold = errors.New("threshold must be a finite number")
	ErrInvalidRetention = errors.New("retention must be positive")
)

// Settings are the runtime-adjustable values of a monitor. Setters may be
// called from any goroutine; the monitor reads them once per tick.
type Settings struct {
	dropUntil  time.Time
	thresholds Thresholds
	retention  time.Duration
	mu         syncutil.RWMutex
}

func NewSettings(th Thresholds, retention time.Duration) (*Settings, error) {
	s := &Settings{retention: DefaultRetention, thresholds: DefaultThresholds()}
	if err := s.SetThresholds(th); err != nil {
		return nil, err
	}
	if err := s.SetRetention(retention); err != nil {
		return nil, err
	}
	return s, nil
}

// DefaultSettings returns 40/90 thresholds and a 15 s window.
func DefaultSettings() *Settings {
	return &Settings{
		retention:  DefaultRetention,
		thresholds: DefaultThresholds(),
	}
}

func (s *Settings) Thresholds() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// SetThresholds replaces both bounds. No ordering between them is enforced.
func (s *Settings) SetThresholds(th Thresholds) error {
	if !finite(th.Low) || !finite(th.High) {
		return ErrInvalidThreshold
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds = th
	return nil
}

func (s *Settings) Retention() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retention
}

func (s *Settings) SetRetention(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidRetention
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = d
	return nil
}

// DropUntil returns the end of the active drop simulation, zero if none.
func (s *Settings) DropUntil() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropUntil
}

func (s *Settings) setDropUntil(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropUntil = t
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
