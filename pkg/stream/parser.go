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

package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
)

var (
	ErrEmptyLine      = errors.New("empty line")
	ErrNotJSONObject  = errors.New("line is not a valid JSON object")
	ErrMissingBPM     = errors.New("missing bpm field")
	ErrInvalidSamples = errors.New("samples field is not an integer list")
	ErrNotNumeric     = errors.New("line is not numeric")
	ErrNotFinite      = errors.New("value is not finite")
	ErrLineTooLong    = errors.New("line too long")
)

// MaxLineSize is the longest line sources hand to the parser. A full packet
// line is well under 1 KiB.
const MaxLineSize = 64 * 1024

// record is the JSON shape of both compact and full lines. Pointers and raw
// messages are used so missing keys can be told apart from zero values.
type record struct {
	BPM     *float64        `json:"bpm"`
	Seq     *int            `json:"seq"`
	Flags   *int            `json:"flags"`
	TMCU    *int64          `json:"t_mcu"`
	Samples json.RawMessage `json:"samples"`
}

// Parser classifies raw lines into events. The host timestamp of every event
// comes from the parser clock at parse time, never from the line itself.
// Parse is safe to call from several goroutines.
type Parser struct {
	clock clockwork.Clock
	seq   atomic.Int64
}

func NewParser(clock clockwork.Clock) *Parser {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Parser{clock: clock}
}

// Parse turns one line into exactly one event: a BpmEvent, a PacketEvent or
// a ParseErrorEvent. A line starting with "{" is only ever treated as JSON.
func (p *Parser) Parse(line string) Event {
	line = strings.TrimSpace(line)
	now := p.clock.Now()

	if line == "" {
		return ParseErrorEvent{Time: now, Line: line, Err: ErrEmptyLine}
	}

	if strings.HasPrefix(line, "{") {
		ev, err := p.parseJSON(line)
		if err != nil {
			return ParseErrorEvent{Time: now, Line: line, Err: err}
		}
		switch v := ev.(type) {
		case BpmEvent:
			v.Time = now
			return v
		case PacketEvent:
			v.Packet.HostTime = now
			return v
		default:
			return ev
		}
	}

	bpm, err := parseNumeric(line)
	if err != nil {
		return ParseErrorEvent{Time: now, Line: line, Err: err}
	}
	return BpmEvent{Time: now, BPM: bpm}
}

func (p *Parser) parseJSON(line string) (Event, error) {
	var rec record
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotJSONObject, err)
	}

	if rec.BPM == nil {
		return nil, ErrMissingBPM
	}
	if math.IsNaN(*rec.BPM) || math.IsInf(*rec.BPM, 0) {
		return nil, ErrNotFinite
	}

	if rec.Samples == nil {
		return BpmEvent{BPM: *rec.BPM}, nil
	}

	if bytes.Equal(bytes.TrimSpace(rec.Samples), []byte("null")) {
		return nil, ErrInvalidSamples
	}
	var samples []int
	if err := json.Unmarshal(rec.Samples, &samples); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSamples, err)
	}

	pkt := Packet{
		BPM:     *rec.BPM,
		Samples: samples,
	}
	// a missing seq continues from the last one seen, sent or assumed
	if rec.Seq != nil {
		pkt.Seq = *rec.Seq
		p.seq.Store(int64(pkt.Seq) + 1)
	} else {
		pkt.Seq = int(p.seq.Add(1) - 1)
	}
	if rec.Flags != nil {
		pkt.Flags = *rec.Flags
	}
	if rec.TMCU != nil {
		pkt.DeviceTimeMs = *rec.TMCU
	}

	return PacketEvent{Packet: pkt}, nil
}

// TooLong reports a line cut at MaxLineSize. Only the start of it is kept.
func (p *Parser) TooLong(prefix string) Event {
	return ParseErrorEvent{
		Time: p.clock.Now(),
		Line: truncateRunes(strings.ToValidUTF8(prefix, ""), maxParseEcho),
		Err:  ErrLineTooLong,
	}
}

// parseNumeric reads the first comma-separated field as a float.
func parseNumeric(line string) (float64, error) {
	first, _, _ := strings.Cut(line, ",")
	first = strings.TrimSpace(first)

	v, err := strconv.ParseFloat(first, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, first)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotFinite
	}
	return v, nil
}
