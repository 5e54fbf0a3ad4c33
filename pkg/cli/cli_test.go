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

package cli

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/config"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/sources"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/sources/synthetic"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintDrivers(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	PrintDrivers(&buf, []sources.Source{synthetic.NewSource(clockwork.NewFakeClock())})

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, config.DriverSynthetic))
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestFetchSnapshot(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/snapshot" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"tick":3}`))
	}))
	t.Cleanup(srv.Close)

	data, err := FetchSnapshot(context.Background(), srv.Listener.Addr().String())
	require.NoError(t, err)
	assert.JSONEq(t, `{"tick":3}`, string(data))
}

func TestFetchSnapshot_BadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	_, err := FetchSnapshot(context.Background(), srv.Listener.Addr().String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 503")
}

func TestFetchSnapshot_Unreachable(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = FetchSnapshot(context.Background(), addr)
	assert.Error(t, err)
}
