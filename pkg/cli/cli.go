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
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/config"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/sources"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/ui/tui"
	"github.com/rs/zerolog/log"
)

const statusTimeout = 5 * time.Second

type Flags struct {
	Version     *bool
	Daemon      *bool
	ListDrivers *bool
	Status      *bool
	Driver      *string
	Theme       *string
}

// SetupFlags defines the command line flags. Add any custom flags before
// running Pre.
func SetupFlags() *Flags {
	return &Flags{
		Version: flag.Bool(
			"version",
			false,
			"print version and exit",
		),
		Daemon: flag.Bool(
			"daemon",
			false,
			"run without the dashboard, logging to stderr",
		),
		ListDrivers: flag.Bool(
			"list-drivers",
			false,
			"list available source drivers and exit",
		),
		Status: flag.Bool(
			"status",
			false,
			"print the snapshot of a running instance and exit",
		),
		Driver: flag.String(
			"driver",
			"",
			"source driver to use instead of the configured one",
		),
		Theme: flag.String(
			"theme",
			"",
			"dashboard color theme",
		),
	}
}

// Pre parses flags and actions the ones that don't need config or logging.
func (f *Flags) Pre() {
	flag.Parse()

	if *f.Version {
		_, _ = fmt.Printf("Zaparoo Pulse v%s\n", config.AppVersion)
		os.Exit(0)
	}

	if *f.Theme != "" && !tui.SetCurrentTheme(*f.Theme) {
		_, _ = fmt.Fprintf(os.Stderr, "Error: unknown theme %q, available: %v\n",
			*f.Theme, tui.ThemeNames)
		os.Exit(1)
	}
}

// Post actions the remaining flags once config and logging are set up.
// Returns normally when the program should carry on starting up.
func (f *Flags) Post(cfg *config.Instance, all []sources.Source) {
	switch {
	case *f.ListDrivers:
		PrintDrivers(os.Stdout, all)
		os.Exit(0)
	case *f.Status:
		ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
		data, err := FetchSnapshot(ctx, cfg.APIListen())
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("error fetching status")
			_, _ = fmt.Fprintf(os.Stderr, "Error fetching status: %v\n", err)
			os.Exit(1)
		}
		_, _ = fmt.Println(string(data))
		os.Exit(0)
	}
}

// PrintDrivers writes one line per driver with its aliases.
func PrintDrivers(w io.Writer, all []sources.Source) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range all {
		md := s.Metadata()
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%v\n", md.ID, md.Description, s.IDs())
	}
	_ = tw.Flush()
}

// FetchSnapshot reads the current snapshot JSON from the API listening on
// addr.
func FetchSnapshot(ctx context.Context, addr string) ([]byte, error) {
	url := "http://" + addr + "/api/snapshot"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", addr, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("error closing response body")
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, data)
	}
	return data, nil
}

// Setup initializes the user config and logging. Returns a user config object.
//
//nolint:gocritic // config struct copied for immutability
func Setup(defaultConfig config.Values, writers []io.Writer) *config.Instance {
	err := helpers.EnsureDirectories()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error creating directories: %v\n", err)
		os.Exit(1)
	}

	err = helpers.InitLogging(helpers.LogDir(), false, writers)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.NewConfig(helpers.ConfigDir(), defaultConfig)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	helpers.SetDebugLogging(cfg.DebugLogging())

	// error reporting is opt-in
	if err := telemetry.Init(telemetry.Options{
		Enabled:    cfg.ErrorReporting(),
		DeviceID:   cfg.DeviceID(),
		AppVersion: config.AppVersion,
		Source:     cfg.Source().Driver,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg
}
