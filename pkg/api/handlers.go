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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/api/notifications"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/api/validation"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/recorder"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/rs/zerolog/log"
)

const maxBodySize = 64 << 10

var ErrRecorderUnavailable = errors.New("recorder is not available")

type handlerFunc func(params json.RawMessage) (any, error)

// handle adapts a handler to HTTP: the body is passed as raw params and the
// result written as JSON.
func (s *Server) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}

		result, err := fn(body)
		if err != nil {
			status := errorStatus(err)
			if status >= http.StatusInternalServerError {
				log.Error().Err(err).Str("path", r.URL.Path).Msg("api request failed")
			}
			writeError(w, status, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func errorStatus(err error) int {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr),
		errors.Is(err, validation.ErrMissingParams),
		errors.Is(err, validation.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, ErrRecorderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("error encoding response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := models.ErrorResponse{Error: err.Error()}
	var verr *validation.Error
	if errors.As(err, &verr) {
		for _, fe := range verr.Fields {
			resp.Fields = append(resp.Fields, fe.Message)
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleSnapshot(json.RawMessage) (any, error) {
	return s.env.Monitor.Snapshot(), nil
}

func (s *Server) handleThresholds(params json.RawMessage) (any, error) {
	var p models.ThresholdsParams
	if err := validation.ValidateAndUnmarshal(params, &p); err != nil {
		return nil, err //nolint:wrapcheck // validation errors map to 400
	}

	th := stream.Thresholds{Low: p.Low, High: p.High}
	if err := s.env.Monitor.SetThresholds(th); err != nil {
		return nil, fmt.Errorf("failed to apply thresholds: %w", err)
	}
	log.Info().Float64("low", p.Low).Float64("high", p.High).Msg("alarm thresholds updated")

	if cfg := s.env.Config; cfg != nil {
		if err := cfg.SetAlarmThresholds(p.Low, p.High); err != nil {
			log.Warn().Err(err).Msg("thresholds not mirrored to config")
		} else if err := cfg.Save(); err != nil {
			log.Error().Err(err).Msg("error saving config")
		}
	}

	return models.ThresholdsResponse(p), nil
}

func (s *Server) recordingStatus() models.RecordingResponse {
	rec := s.env.Recorder
	status := models.RecordingResponse{Recording: rec.Recording()}
	if session, ok := rec.Session(); ok && status.Recording {
		status.ID = session.ID
		status.Path = session.Path
		status.Rows = session.Rows
		status.Started = &session.Started
	}
	return status
}

func (s *Server) handleRecordingStatus(json.RawMessage) (any, error) {
	if s.env.Recorder == nil {
		return nil, ErrRecorderUnavailable
	}
	return s.recordingStatus(), nil
}

// handleRecording starts or stops the recorder. Asking for the state it is
// already in is not an error.
func (s *Server) handleRecording(params json.RawMessage) (any, error) {
	var p models.RecordingParams
	if err := validation.ValidateAndUnmarshal(params, &p); err != nil {
		return nil, err //nolint:wrapcheck // validation errors map to 400
	}
	rec := s.env.Recorder
	if rec == nil {
		return nil, ErrRecorderUnavailable
	}

	var err error
	if *p.Enabled {
		_, err = rec.Start()
		if errors.Is(err, recorder.ErrAlreadyRecording) {
			err = nil
		}
	} else {
		_, err = rec.Stop()
		if errors.Is(err, recorder.ErrNotRecording) {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to toggle recording: %w", err)
	}

	status := s.recordingStatus()
	notifications.RecordingChanged(s.notifications, status)
	return status, nil
}

func (s *Server) handleSimulateDrop(params json.RawMessage) (any, error) {
	var p models.SimulateDropParams
	if err := validation.ValidateAndUnmarshal(params, &p); err != nil {
		return nil, err //nolint:wrapcheck // validation errors map to 400
	}

	s.env.Monitor.SimulateDrop(time.Duration(p.Seconds) * time.Second)
	return models.SimulateDropResponse{Until: s.env.Monitor.Settings().DropUntil()}, nil
}
