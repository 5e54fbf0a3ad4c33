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
	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/syncutil"
)

// Queue is the FIFO between a source goroutine and the consumer. Put never
// blocks. With a capacity above zero the oldest event is discarded to make
// room, otherwise the queue grows without limit.
type Queue struct {
	events   []Event
	capacity int
	dropped  uint64
	mu       syncutil.Mutex
}

func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{capacity: capacity}
}

func (q *Queue) Put(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.events) >= q.capacity {
		copy(q.events, q.events[1:])
		q.events = q.events[:len(q.events)-1]
		q.dropped++
	}
	q.events = append(q.events, ev)
}

// Drain takes every event queued at the time of the call and hands them to
// fn in FIFO order. fn runs without the queue lock held, so producers are
// never stalled by the consumer. Returns the number of events drained.
func (q *Queue) Drain(fn func(Event)) int {
	q.mu.Lock()
	batch := q.events
	q.events = nil
	q.mu.Unlock()

	for _, ev := range batch {
		fn(ev)
	}
	return len(batch)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Dropped returns how many events were discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
