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
	"encoding/json"
	"time"
)

// LogTimeLayout renders as "Thu Sep 19 17:46:50 2024".
const LogTimeLayout = "Mon Jan 02 15:04:05 2006"

// maxParseEcho is how much of a bad line is echoed into the log view.
const maxParseEcho = 120

// LogLine is one entry of the dashboard log view.
type LogLine struct {
	Time    time.Time
	Message string
}

// String formats the line as "<weekday> <month> <day> <HH:MM:SS> <year>: <message>".
func (l LogLine) String() string {
	return FormatLogLine(l.Time, l.Message)
}

func (l LogLine) MarshalJSON() ([]byte, error) {
	//nolint:wrapcheck // plain struct encoding
	return json.Marshal(struct {
		Time    time.Time `json:"time"`
		Message string    `json:"message"`
		Text    string    `json:"text"`
	}{l.Time, l.Message, l.String()})
}

func FormatLogLine(t time.Time, msg string) string {
	return t.Local().Format(LogTimeLayout) + ": " + msg
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
