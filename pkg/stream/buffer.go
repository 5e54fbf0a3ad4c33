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

import "time"

// DefaultRetention is the trailing window kept by the buffers.
const DefaultRetention = 15 * time.Second

// compactThreshold is the number of trimmed head slots tolerated before the
// backing slice is compacted.
const compactThreshold = 256

// Entry is a timestamped value.
type Entry[T any] struct {
	Time  time.Time `json:"t"`
	Value T         `json:"v"`
}

// WindowedBuffer is an append-only sequence trimmed from the head to a
// trailing time window. Timestamps never decrease: an entry older than the
// current tail is clamped to the tail time. Not safe for concurrent use; the
// monitor owns it from a single goroutine.
type WindowedBuffer[T any] struct {
	entries   []Entry[T]
	head      int
	retention time.Duration
	clamped   int
}

func NewWindowedBuffer[T any](retention time.Duration) *WindowedBuffer[T] {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &WindowedBuffer[T]{retention: retention}
}

// Append adds an entry at the tail. Returns true if the timestamp had to be
// clamped to keep the buffer ordered.
func (b *WindowedBuffer[T]) Append(t time.Time, v T) bool {
	clamped := false
	if last, ok := b.Last(); ok && t.Before(last.Time) {
		t = last.Time
		clamped = true
		b.clamped++
	}
	b.entries = append(b.entries, Entry[T]{Time: t, Value: v})
	return clamped
}

// Trim drops head entries older than now minus the retention window and
// returns how many were removed.
func (b *WindowedBuffer[T]) Trim(now time.Time) int {
	cutoff := now.Add(-b.retention)
	removed := 0
	for b.head < len(b.entries) && b.entries[b.head].Time.Before(cutoff) {
		var zero Entry[T]
		b.entries[b.head] = zero
		b.head++
		removed++
	}

	if b.head == len(b.entries) {
		b.entries = b.entries[:0]
		b.head = 0
	} else if b.head >= compactThreshold && b.head*2 >= len(b.entries) {
		n := copy(b.entries, b.entries[b.head:])
		b.entries = b.entries[:n]
		b.head = 0
	}

	return removed
}

func (b *WindowedBuffer[T]) Retention() time.Duration {
	return b.retention
}

// SetRetention changes the window; it takes effect on the next Trim.
func (b *WindowedBuffer[T]) SetRetention(d time.Duration) {
	if d > 0 {
		b.retention = d
	}
}

func (b *WindowedBuffer[T]) Len() int {
	return len(b.entries) - b.head
}

func (b *WindowedBuffer[T]) First() (Entry[T], bool) {
	if b.Len() == 0 {
		return Entry[T]{}, false
	}
	return b.entries[b.head], true
}

func (b *WindowedBuffer[T]) Last() (Entry[T], bool) {
	if b.Len() == 0 {
		return Entry[T]{}, false
	}
	return b.entries[len(b.entries)-1], true
}

// Entries returns a copy of the live entries, oldest first.
func (b *WindowedBuffer[T]) Entries() []Entry[T] {
	out := make([]Entry[T], b.Len())
	copy(out, b.entries[b.head:])
	return out
}

// Values returns a copy of the live values, oldest first.
func (b *WindowedBuffer[T]) Values() []T {
	out := make([]T, 0, b.Len())
	for _, e := range b.entries[b.head:] {
		out = append(out, e.Value)
	}
	return out
}

// Tail returns a copy of the newest n values.
func (b *WindowedBuffer[T]) Tail(n int) []T {
	live := b.entries[b.head:]
	if n < len(live) {
		live = live[len(live)-n:]
	}
	out := make([]T, len(live))
	for i, e := range live {
		out[i] = e.Value
	}
	return out
}

// Clamped returns how many appends were clamped to the tail timestamp.
func (b *WindowedBuffer[T]) Clamped() int {
	return b.clamped
}
