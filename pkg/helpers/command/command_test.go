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

package command

import (
	"bufio"
	"context"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}
}

func TestRealExecutor_Output(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	executor := &RealExecutor{}

	t.Run("returns_stdout", func(t *testing.T) {
		t.Parallel()

		out, err := executor.Output(context.Background(), "echo", "hello")

		require.NoError(t, err)
		assert.Equal(t, "hello\n", string(out))
	})

	t.Run("returns_error_for_nonexistent_command", func(t *testing.T) {
		t.Parallel()

		_, err := executor.Output(context.Background(), "nonexistent_command_that_should_not_exist_12345")

		require.Error(t, err)
	})
}

func TestRealExecutor_StartCombined(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	executor := &RealExecutor{}

	t.Run("merges_stdout_and_stderr", func(t *testing.T) {
		t.Parallel()

		proc, err := executor.StartCombined(
			context.Background(),
			StartOptions{},
			"sh", "-c", "echo 72.5; echo oops 1>&2",
		)
		require.NoError(t, err)
		assert.Positive(t, proc.Pid())

		var lines []string
		scanner := bufio.NewScanner(proc.Output())
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		require.NoError(t, scanner.Err())
		require.NoError(t, proc.Wait())

		sort.Strings(lines)
		assert.Equal(t, []string{"72.5", "oops"}, lines)
	})

	t.Run("cancel_kills_process", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		proc, err := executor.StartCombined(ctx, StartOptions{}, "sleep", "30")
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() { done <- proc.Wait() }()
		cancel()

		select {
		case err := <-done:
			assert.Error(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("process was not killed")
		}
	})

	t.Run("returns_error_for_nonexistent_command", func(t *testing.T) {
		t.Parallel()

		proc, err := executor.StartCombined(
			context.Background(),
			StartOptions{},
			"nonexistent_command_that_should_not_exist_12345",
		)

		require.Error(t, err)
		assert.Nil(t, proc)
	})
}
