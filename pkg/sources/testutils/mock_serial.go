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

// Package testutils holds fakes shared by the source tests.
package testutils

import (
	"context"
	"errors"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/syncutil"
)

var ErrPortClosed = errors.New("port closed")

// MockSerialPort is an in-memory serial port. Reads return queued chunks in
// order and then block for the read timeout like a quiet device.
type MockSerialPort struct {
	ReadError  error
	CloseError error
	TimeoutErr error
	chunks     [][]byte
	timeout    time.Duration
	closeCalls int
	closed     bool
	mu         syncutil.Mutex
}

func NewMockSerialPort(chunks ...string) *MockSerialPort {
	m := &MockSerialPort{timeout: 10 * time.Millisecond}
	for _, c := range chunks {
		m.chunks = append(m.chunks, []byte(c))
	}
	return m
}

// Feed queues more data for the next reads.
func (m *MockSerialPort) Feed(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, data)
}

func (m *MockSerialPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrPortClosed
	}
	if len(m.chunks) == 0 {
		readErr := m.ReadError
		timeout := m.timeout
		m.mu.Unlock()
		if readErr != nil {
			return 0, readErr
		}
		time.Sleep(timeout)
		return 0, nil
	}
	n := copy(p, m.chunks[0])
	if n < len(m.chunks[0]) {
		m.chunks[0] = m.chunks[0][n:]
	} else {
		m.chunks = m.chunks[1:]
	}
	m.mu.Unlock()
	return n, nil
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closeCalls++
	return m.CloseError
}

// SetReadTimeout records the timeout but caps the simulated block at 10 ms
// so tests stay fast.
func (m *MockSerialPort) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TimeoutErr != nil {
		return m.TimeoutErr
	}
	m.timeout = min(t, 10*time.Millisecond)
	return nil
}

func (m *MockSerialPort) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockSerialPort) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// StaticPicker always picks Path, or fails with Err.
type StaticPicker struct {
	Err  error
	Path string
}

func (p StaticPicker) AutoPick(_ context.Context) (string, error) {
	return p.Path, p.Err
}
