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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/api/middleware"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/api/notifications"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/config"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/recorder"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

const (
	RequestTimeout     = 10 * time.Second
	ShutdownTimeout    = 2 * time.Second
	NotificationBuffer = 100
	readHeaderTimeout  = 5 * time.Second
)

// Env is everything the API handlers operate on. Config and Recorder are
// optional.
type Env struct {
	Clock    clockwork.Clock
	Monitor  *stream.Monitor
	Config   *config.Instance
	Recorder *recorder.Recorder
}

type Server struct {
	env           Env
	router        chi.Router
	session       *melody.Melody
	limiter       *middleware.IPRateLimiter
	notifications chan models.Notification
}

// NewServer builds the router and subscribes to the monitor's log, alarm and
// watchdog hooks. Nothing is served until Serve or Start is called.
func NewServer(env Env) *Server {
	if env.Clock == nil {
		env.Clock = clockwork.NewRealClock()
	}

	s := &Server{
		env:           env,
		session:       melody.New(),
		limiter:       middleware.NewIPRateLimiter(env.Clock),
		notifications: make(chan models.Notification, NotificationBuffer),
	}

	env.Monitor.OnLog(func(line stream.LogLine) {
		notifications.LogLine(s.notifications, line)
	})
	env.Monitor.OnAlarmChange(func(from, to stream.AlarmState) {
		notifications.AlarmChanged(s.notifications, from, to)
	})
	env.Monitor.OnWatchdogChange(func(from, to stream.WatchdogState) {
		notifications.WatchdogChanged(s.notifications, from, to)
	})

	s.session.Upgrader.CheckOrigin = func(*http.Request) bool { return true }
	s.session.HandleMessage(middleware.WebSocketRateLimitHandler(s.limiter, handleWSMessage))
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.NoCache)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{},
	}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.HTTPRateLimitMiddleware(s.limiter))
		r.Use(chimiddleware.Timeout(RequestTimeout))

		r.Get("/api/snapshot", s.handle(s.handleSnapshot))
		r.Put("/api/thresholds", s.handle(s.handleThresholds))
		r.Get("/api/recording", s.handle(s.handleRecordingStatus))
		r.Post("/api/recording", s.handle(s.handleRecording))
		r.Post("/api/simulate-drop", s.handle(s.handleSimulateDrop))
	})

	r.Get("/api/events", func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(middleware.ParseRemoteIP(r.RemoteAddr).String()) {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		if err := s.session.HandleRequest(w, r); err != nil {
			log.Error().Err(err).Msg("handling websocket request")
		}
	})

	return r
}

// handleWSMessage answers the "ping" heartbeat. The events socket is
// otherwise one-way.
func handleWSMessage(session *melody.Session, msg []byte) {
	if bytes.Equal(msg, []byte("ping")) {
		if err := session.Write([]byte("pong")); err != nil {
			log.Error().Err(err).Msg("sending pong")
		}
		return
	}
	log.Debug().Int("size", len(msg)).Msg("ignoring events client message")
}

func (s *Server) broadcastNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-s.notifications:
			data, err := json.Marshal(notif)
			if err != nil {
				log.Error().Err(err).Msg("marshalling notification")
				continue
			}
			if err := s.session.Broadcast(data); err != nil {
				log.Error().Err(err).Msg("broadcasting notification")
			}
		}
	}
}

// Serve runs the API on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go s.broadcastNotifications(ctx)
	s.limiter.StartCleanup(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("api server started")

	select {
	case err := <-errCh:
		_ = s.session.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	// websocket connections are hijacked and not tracked by Shutdown
	if err := s.session.Close(); err != nil {
		log.Debug().Err(err).Msg("closing websocket sessions")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	log.Info().Msg("api server stopped")
	return nil
}

// Start listens on addr and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}
