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

package sources

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
)

// LineFunc receives one line without its terminator. When tooLong is set
// the line was cut at stream.MaxLineSize and the rest of it discarded.
type LineFunc func(line []byte, tooLong bool)

// ReadLines calls fn for every line of r until EOF, which returns nil. An
// over-long line never stops the loop.
func ReadLines(r io.Reader, fn LineFunc) error {
	br := bufio.NewReaderSize(r, 4096)
	var line []byte
	tooLong := false
	for {
		frag, isPrefix, err := br.ReadLine()
		if err != nil {
			if len(line) > 0 || tooLong {
				fn(line, tooLong)
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read line: %w", err)
		}

		if room := stream.MaxLineSize - len(line); len(frag) > room {
			line = append(line, frag[:room]...)
			tooLong = true
		} else if !tooLong {
			line = append(line, frag...)
		}
		if isPrefix {
			continue
		}

		fn(line, tooLong)
		line = line[:0]
		tooLong = false
	}
}
