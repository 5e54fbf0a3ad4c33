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

package mocks

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/command"
	"github.com/stretchr/testify/mock"
)

// MockCommandExecutor is a testify mock for command.Executor.
//
// Example:
//
//	mockCmd := &MockCommandExecutor{}
//	mockCmd.On("Output", mock.Anything, "/usr/bin/udevadm", mock.Anything).Return([]byte("E: ID_MODEL=Uno"), nil)
type MockCommandExecutor struct {
	mock.Mock
}

func (m *MockCommandExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	called := m.Called(ctx, name, args)
	if out, ok := called.Get(0).([]byte); ok {
		//nolint:wrapcheck // mock returns are passed through
		return out, called.Error(1)
	}
	//nolint:wrapcheck // mock returns are passed through
	return nil, called.Error(1)
}

func (m *MockCommandExecutor) StartCombined(
	ctx context.Context,
	opts command.StartOptions,
	name string,
	args ...string,
) (command.Process, error) {
	called := m.Called(ctx, opts, name, args)
	if proc, ok := called.Get(0).(command.Process); ok {
		//nolint:wrapcheck // mock returns are passed through
		return proc, called.Error(1)
	}
	//nolint:wrapcheck // mock returns are passed through
	return nil, called.Error(1)
}

// MockProcess is a finished or streaming process with canned output.
type MockProcess struct {
	Out     io.Reader
	WaitErr error
	PID     int
	waited  chan struct{}
	once    sync.Once
}

// NewMockProcess returns a process whose output is the given text.
func NewMockProcess(output string) *MockProcess {
	return &MockProcess{Out: strings.NewReader(output), PID: 4242, waited: make(chan struct{})}
}

// NewStreamingMockProcess returns a process fed through the returned writer.
// Closing the writer ends the output.
func NewStreamingMockProcess() (*MockProcess, *io.PipeWriter) {
	pr, pw := io.Pipe()
	return &MockProcess{Out: pr, PID: 4243, waited: make(chan struct{})}, pw
}

func (p *MockProcess) Output() io.Reader {
	return p.Out
}

func (p *MockProcess) Wait() error {
	p.once.Do(func() { close(p.waited) })
	return p.WaitErr
}

func (p *MockProcess) Pid() int {
	return p.PID
}

// Waited is closed once Wait has been called.
func (p *MockProcess) Waited() <-chan struct{} {
	return p.waited
}
