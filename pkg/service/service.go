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

package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/api"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/api/validation"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/config"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/command"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/recorder"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/sources"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/sources/mqtt"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/sources/serialport"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/sources/subprocess"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/sources/synthetic"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Options configures a Service. Only Config is required.
type Options struct {
	Clock   clockwork.Clock
	Config  *config.Instance
	Fs      afero.Fs
	Sources []sources.Source
	// Driver overrides the configured source driver.
	Driver  string
	DataDir string
}

// Service owns the monitor and wires the active source, the tick loop, the
// recorder, the API and config reloads together.
type Service struct {
	clock    clockwork.Clock
	cfg      *config.Instance
	queue    *stream.Queue
	monitor  *stream.Monitor
	recorder *recorder.Recorder
	source   sources.Source
	api      *api.Server
	srcCfg   config.Source
}

// DefaultSources returns every built-in source driver.
func DefaultSources(clock clockwork.Clock, cfg *config.Instance) []sources.Source {
	return []sources.Source{
		synthetic.NewSource(clock),
		subprocess.NewSource(clock, &command.RealExecutor{}),
		serialport.NewSource(clock),
		mqtt.NewSource(clock, cfg.LookupAuth),
	}
}

type driverSelection struct {
	Driver string `validate:"required,driver"`
}

// SelectSource picks the source for driver out of all. The name must be one
// of the IDs or aliases the sources answer to.
func SelectSource(all []sources.Source, driver string) (sources.Source, error) {
	var ids []string
	for _, src := range all {
		ids = append(ids, src.IDs()...)
	}
	vctx := validation.NewContext(ids)
	sel := driverSelection{Driver: driver}
	if err := validation.DefaultValidator.ValidateCtx(context.Background(), &sel, vctx); err != nil {
		return nil, fmt.Errorf("%w: %w", sources.ErrInvalidDriver, err)
	}
	//nolint:wrapcheck // already carries ErrInvalidDriver
	return sources.Select(all, driver)
}

func New(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, errors.New("service requires a config")
	}
	cfg := opts.Config
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	all := opts.Sources
	if len(all) == 0 {
		all = DefaultSources(clock, cfg)
	}

	srcCfg := cfg.Source()
	if opts.Driver != "" {
		srcCfg.Driver = opts.Driver
	}
	source, err := SelectSource(all, srcCfg.Driver)
	if err != nil {
		return nil, err
	}

	low, high := cfg.AlarmThresholds()
	settings, err := stream.NewSettings(stream.Thresholds{Low: low, High: high}, cfg.Retention())
	if err != nil {
		return nil, fmt.Errorf("invalid monitor settings: %w", err)
	}

	queue := stream.NewQueue(cfg.QueueCapacity())
	monitor := stream.NewMonitor(clock, queue, settings)
	rec := recorder.New(fs, clock, cfg.RecordingDir(opts.DataDir), monitor.Log)
	monitor.OnPacket(rec.OnPacket)

	s := &Service{
		clock:    clock,
		cfg:      cfg,
		queue:    queue,
		monitor:  monitor,
		recorder: rec,
		source:   source,
		srcCfg:   srcCfg,
	}
	if cfg.APIEnabled() {
		s.api = api.NewServer(api.Env{
			Clock:    clock,
			Monitor:  monitor,
			Config:   cfg,
			Recorder: rec,
		})
	}
	return s, nil
}

func (s *Service) Monitor() *stream.Monitor {
	return s.monitor
}

func (s *Service) Recorder() *recorder.Recorder {
	return s.recorder
}

func (s *Service) Source() sources.Source {
	return s.source
}

func (s *Service) Snapshot() *stream.Snapshot {
	return s.monitor.Snapshot()
}

// Thresholds returns the bounds in effect now, ahead of the next snapshot.
func (s *Service) Thresholds() stream.Thresholds {
	return s.monitor.Settings().Thresholds()
}

func (s *Service) SourceInfo() string {
	return s.source.Info()
}

func (s *Service) Recording() bool {
	return s.recorder.Recording()
}

// Run opens the source and blocks until ctx is cancelled or a component
// fails. A source that cannot open is reported in the log view and the
// dashboard keeps running without data.
func (s *Service) Run(ctx context.Context) error {
	var apiLn net.Listener
	if s.api != nil {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", s.cfg.APIListen())
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.APIListen(), err)
		}
		apiLn = ln
	}

	g, gctx := errgroup.WithContext(ctx)

	// stages are stopped in order by the shutdown goroutine, not by gctx
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	apiCtx, stopAPI := context.WithCancel(context.Background())
	defer stopAPI()

	log.Info().Str("driver", s.srcCfg.Driver).Msg("opening source")
	if err := s.source.Open(gctx, s.srcCfg, s.queue); err != nil {
		log.Warn().Err(err).Msg("source did not start")
	}

	if s.cfg.RecordingEnabled() {
		if _, err := s.recorder.Start(); err != nil {
			log.Error().Err(err).Msg("error starting recording")
		}
	}

	loopDone := make(chan struct{})
	g.Go(func() error {
		defer close(loopDone)
		return s.tickLoop(loopCtx)
	})

	if apiLn != nil {
		g.Go(func() error {
			//nolint:wrapcheck // already wrapped by the server
			return s.api.Serve(apiCtx, apiLn)
		})
	}

	if err := s.cfg.Watch(gctx, s.reload); err != nil {
		log.Warn().Err(err).Msg("config changes will not be applied until restart")
	}

	g.Go(func() error {
		<-gctx.Done()
		s.shutdown(stopLoop, loopDone, stopAPI)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("service stopped: %w", err)
	}
	return nil
}

func (s *Service) shutdown(stopLoop context.CancelFunc, loopDone <-chan struct{}, stopAPI context.CancelFunc) {
	log.Info().Msg("service shutting down")

	if err := s.source.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing source")
	}

	stopLoop()
	<-loopDone

	if s.recorder.Recording() {
		if _, err := s.recorder.Stop(); err != nil {
			log.Error().Err(err).Msg("error stopping recording")
		}
	}

	stopAPI()
	log.Info().Msg("service cleanup completed")
}

// tickLoop runs the monitor at the configured poll interval. The interval
// is re-read after every tick so config reloads take effect. One last tick
// on exit flushes what the source queued before closing.
func (s *Service) tickLoop(ctx context.Context) error {
	interval := s.cfg.PollInterval()
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.monitor.Tick()
			return nil
		case <-ticker.Chan():
			s.monitor.Tick()
			if d := s.cfg.PollInterval(); d != interval {
				log.Debug().Dur("interval", d).Msg("poll interval changed")
				interval = d
				ticker.Reset(d)
			}
		}
	}
}

// reload applies config values that can change at runtime.
func (s *Service) reload() {
	s.cfg.SetDebugLogging(s.cfg.DebugLogging())

	low, high := s.cfg.AlarmThresholds()
	if err := s.monitor.SetThresholds(stream.Thresholds{Low: low, High: high}); err != nil {
		log.Error().Err(err).Msg("error applying reloaded thresholds")
	}
	if err := s.monitor.SetRetention(s.cfg.Retention()); err != nil {
		log.Error().Err(err).Msg("error applying reloaded retention")
	}
}

// SetThresholds applies new alarm bounds and saves them to the config.
func (s *Service) SetThresholds(th stream.Thresholds) error {
	if err := s.cfg.SetAlarmThresholds(th.Low, th.High); err != nil {
		return fmt.Errorf("failed to set thresholds: %w", err)
	}
	if err := s.monitor.SetThresholds(th); err != nil {
		return fmt.Errorf("failed to set thresholds: %w", err)
	}
	if err := s.cfg.Save(); err != nil {
		return fmt.Errorf("failed to save thresholds: %w", err)
	}
	return nil
}

// ToggleRecording starts or stops the recorder and returns the new state.
func (s *Service) ToggleRecording() (bool, error) {
	if s.recorder.Recording() {
		if _, err := s.recorder.Stop(); err != nil {
			return false, fmt.Errorf("failed to stop recording: %w", err)
		}
		return false, nil
	}
	if _, err := s.recorder.Start(); err != nil {
		return false, fmt.Errorf("failed to start recording: %w", err)
	}
	return true, nil
}

func (s *Service) SimulateDrop(d time.Duration) {
	s.monitor.SimulateDrop(d)
}
