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

// Package command wraps os/exec so subprocess sources and device probing can
// be mocked in tests.
package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// StartOptions configures how a long running command is started.
type StartOptions struct {
	// Dir is the working directory, empty for the current one.
	Dir string
	// HideWindow prevents a console window from appearing (Windows only).
	HideWindow bool
}

// Process is a started command whose stdout and stderr share one stream.
type Process interface {
	// Output is the combined stdout and stderr of the process. It reaches
	// EOF once the process exits.
	Output() io.Reader
	// Wait blocks until the process exits and releases its resources.
	Wait() error
	Pid() int
}

// Executor provides an abstraction over exec.Command for testability.
type Executor interface {
	// Output runs a command and returns its standard output.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)

	// StartCombined starts a command without waiting for it. Cancelling ctx
	// kills the process.
	StartCombined(ctx context.Context, opts StartOptions, name string, args ...string) (Process, error)
}

// RealExecutor runs real system commands.
type RealExecutor struct{}

// Output runs a system command using exec.CommandContext.
//
//nolint:wrapcheck // exec errors already name the command
func (*RealExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func (*RealExecutor) StartCombined(
	ctx context.Context,
	opts StartOptions,
	name string,
	args ...string,
) (Process, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	cmd.Stdout = pw
	cmd.Stderr = pw
	applyStartOptions(cmd, opts)

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	// the child holds its own copy of the write end; closing ours lets the
	// reader see EOF when the child exits
	_ = pw.Close()

	return &realProcess{cmd: cmd, out: pr}, nil
}

type realProcess struct {
	cmd *exec.Cmd
	out *os.File
}

func (p *realProcess) Output() io.Reader {
	return p.out
}

func (p *realProcess) Wait() error {
	err := p.cmd.Wait()
	if closeErr := p.out.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("failed to close output pipe: %w", closeErr)
	}
	return err
}

func (p *realProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
