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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZaparooProject/zaparoo-pulse/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/cli"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/config"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/service"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/ui/tui"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags()
	flags.Pre()

	var logWriters []io.Writer
	if *flags.Daemon {
		logWriters = []io.Writer{os.Stderr}
	}

	cfg := cli.Setup(config.BaseDefaults, logWriters)
	defer telemetry.Close()

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	clock := clockwork.NewRealClock()
	all := service.DefaultSources(clock, cfg)
	flags.Post(cfg, all)

	svc, err := service.New(service.Options{
		Clock:   clock,
		Config:  cfg,
		Sources: all,
		Driver:  *flags.Driver,
		DataDir: helpers.DataDir(),
	})
	if err != nil {
		log.Error().Err(err).Msg("error creating service")
		return fmt.Errorf("error creating service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the dashboard closes when the service stops on its own
	uiCtx, cancelUI := context.WithCancel(ctx)
	defer cancelUI()

	svcErr := make(chan error, 1)
	go func() {
		svcErr <- svc.Run(ctx)
		cancelUI()
	}()

	if *flags.Daemon {
		log.Info().Msg("started in daemon mode")
		return <-svcErr
	}

	uiErr := tui.Run(uiCtx, svc, clock, cfg.PollInterval(), nil)
	if uiErr != nil {
		log.Error().Err(uiErr).Msg("error running UI")
	}
	stop()

	return errors.Join(uiErr, <-svcErr)
}
