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

// Package recorder writes received packets to CSV session files.
package recorder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	sessionLayout = "20060102_150405"
	// maxSessionSuffix bounds the _2, _3... names tried when sessions start
	// within the same second.
	maxSessionSuffix = 100
)

var (
	ErrNotRecording     = errors.New("not recording")
	ErrAlreadyRecording = errors.New("already recording")
)

// Row is one packet as stored in the session file. Field order is the
// column order.
//
//nolint:govet // fieldalignment would reorder the csv columns
type Row struct {
	THost   string `csv:"t_host"`
	TMCU    int64  `csv:"t_mcu_ms"`
	BPM     string `csv:"bpm"`
	Seq     int    `csv:"seq"`
	Flags   int    `csv:"flags"`
	Samples string `csv:"samples_json"`
}

// Header is the first line of every session file.
var Header = []string{"t_host", "t_mcu_ms", "bpm", "seq", "flags", "samples_json"}

// NewRow formats a packet: host time as Unix seconds and BPM both with three
// decimals, samples as a bracketed integer list.
func NewRow(p *stream.Packet) Row {
	samples := make([]string, len(p.Samples))
	for i, v := range p.Samples {
		samples[i] = strconv.Itoa(v)
	}
	return Row{
		THost:   strconv.FormatFloat(float64(p.HostTime.UnixMicro())/1e6, 'f', 3, 64),
		TMCU:    p.DeviceTimeMs,
		BPM:     strconv.FormatFloat(p.BPM, 'f', 3, 64),
		Seq:     p.Seq,
		Flags:   p.Flags,
		Samples: "[" + strings.Join(samples, ",") + "]",
	}
}

// Session describes a recording.
type Session struct {
	Started time.Time `json:"started"`
	Stopped time.Time `json:"stopped,omitzero"`
	Path    string    `json:"path"`
	ID      string    `json:"id"`
	Rows    int       `json:"rows"`
}

// Logger receives messages for the dashboard log view.
type Logger func(format string, args ...any)

type Recorder struct {
	fs      afero.Fs
	clock   clockwork.Clock
	logf    Logger
	file    afero.File
	writer  *gocsv.SafeCSVWriter
	dir     string
	session Session
	mu      syncutil.Mutex
}

// New builds a recorder writing under dir. logf may be nil.
func New(fs afero.Fs, clock clockwork.Clock, dir string, logf Logger) *Recorder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logf == nil {
		logf = func(format string, args ...any) {
			log.Info().Msgf(format, args...)
		}
	}
	return &Recorder{fs: fs, clock: clock, dir: dir, logf: logf}
}

func (r *Recorder) Dir() string {
	return r.dir
}

// Start opens a new session file and writes the header. A failure is also
// reported to the log view and leaves recording off.
func (r *Recorder) Start() (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.session, ErrAlreadyRecording
	}

	now := r.clock.Now()
	file, path, err := r.open("session_" + now.Format(sessionLayout))
	if err != nil {
		r.logf("[REC] open failed: %v", err)
		return Session{}, err
	}

	w := gocsv.NewSafeCSVWriter(csv.NewWriter(file))
	err = w.Write(Header)
	w.Flush()
	if err = errors.Join(err, w.Error()); err != nil {
		_ = file.Close()
		r.logf("[REC] open failed: %v", err)
		return Session{}, fmt.Errorf("failed to write csv header: %w", err)
	}

	r.file = file
	r.writer = w
	r.session = Session{
		ID:      uuid.New().String(),
		Path:    path,
		Started: now,
	}
	r.logf("Recording started -> %s", path)
	return r.session, nil
}

// open creates a new file for base without touching existing sessions.
func (r *Recorder) open(base string) (afero.File, string, error) {
	if err := r.fs.MkdirAll(r.dir, 0o750); err != nil {
		return nil, "", fmt.Errorf("failed to create records dir: %w", err)
	}
	for n := 1; ; n++ {
		name := base
		if n > 1 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		path := filepath.Join(r.dir, name+".csv")
		file, err := r.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return file, path, nil
		}
		if !errors.Is(err, os.ErrExist) || n == maxSessionSuffix {
			return nil, "", fmt.Errorf("failed to create session file: %w", err)
		}
	}
}

// Stop closes the session file.
func (r *Recorder) Stop() (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return Session{}, ErrNotRecording
	}

	r.writer.Flush()
	flushErr := r.writer.Error()
	closeErr := r.file.Close()
	r.file = nil
	r.writer = nil
	r.session.Stopped = r.clock.Now()
	r.logf("Recording stopped")

	if err := errors.Join(flushErr, closeErr); err != nil {
		return r.session, fmt.Errorf("failed to close session file: %w", err)
	}
	return r.session, nil
}

// Write appends one packet row.
func (r *Recorder) Write(p *stream.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return ErrNotRecording
	}

	row := NewRow(p)
	if err := gocsv.MarshalCSVWithoutHeaders([]Row{row}, r.writer); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	r.session.Rows++
	return nil
}

// OnPacket is a monitor packet hook. Packets are dropped while recording
// is off and write failures go to the log view.
func (r *Recorder) OnPacket(p stream.Packet) {
	if err := r.Write(&p); err != nil && !errors.Is(err, ErrNotRecording) {
		r.logf("[REC] write failed: %v", err)
	}
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file != nil
}

// Session returns the current or last session.
func (r *Recorder) Session() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session, r.session.ID != ""
}
