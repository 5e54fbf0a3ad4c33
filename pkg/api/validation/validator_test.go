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

//nolint:revive // custom validation tags are unknown to revive
package validation

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBPM(t *testing.T) {
	t.Parallel()

	type thresholds struct {
		Low  float64 `json:"low" validate:"bpm"`
		High float64 `json:"high" validate:"bpm"`
	}

	tests := []struct {
		name      string
		low       float64
		high      float64
		wantError bool
	}{
		{name: "defaults", low: 40, high: 90},
		{name: "low above high is allowed", low: 100, high: 50},
		{name: "upper bound inclusive", low: 1, high: 300},
		{name: "zero", low: 0, high: 90, wantError: true},
		{name: "negative", low: -5, high: 90, wantError: true},
		{name: "too high", low: 40, high: 300.5, wantError: true},
		{name: "nan", low: math.NaN(), high: 90, wantError: true},
		{name: "infinite", low: 40, high: math.Inf(1), wantError: true},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Validate(&thresholds{Low: tt.low, High: tt.high})
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "must be above 0")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDuration(t *testing.T) {
	t.Parallel()

	type s struct {
		Retention string `validate:"duration"`
	}

	v := NewValidator()
	require.NoError(t, v.Validate(&s{Retention: "15s"}))
	require.NoError(t, v.Validate(&s{Retention: ""}))

	err := v.Validate(&s{Retention: "fifteen"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retention must be a positive duration")

	require.Error(t, v.Validate(&s{Retention: "-1s"}))
	require.Error(t, v.Validate(&s{Retention: "0s"}))
}

func TestValidateDriverWithContext(t *testing.T) {
	t.Parallel()

	type s struct {
		Driver string `validate:"driver"`
	}

	v := NewValidator()
	vctx := NewContext([]string{"synthetic", "serial"})

	require.NoError(t, v.ValidateCtx(context.Background(), &s{Driver: "Serial"}, vctx))
	require.NoError(t, v.Validate(&s{Driver: "anything"}), "no context skips the check")

	err := v.ValidateCtx(context.Background(), &s{Driver: "bluetooth"}, vctx)
	require.Error(t, err)

	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "driver", verr.Fields[0].Tag)
	assert.Equal(t, `source driver "bluetooth" not found`, verr.Fields[0].Message)
}

func TestValidateAndUnmarshal(t *testing.T) {
	t.Parallel()

	type drop struct {
		Seconds int `json:"seconds" validate:"min=1,max=60"`
	}

	var d drop
	require.ErrorIs(t, ValidateAndUnmarshal(nil, &d), ErrMissingParams)
	require.ErrorIs(t, ValidateAndUnmarshal(json.RawMessage(`{"seconds":`), &d), ErrInvalidParams)

	err := ValidateAndUnmarshal(json.RawMessage(`{"seconds":90}`), &d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seconds must be at most 60")

	require.NoError(t, ValidateAndUnmarshal(json.RawMessage(`{"seconds":6}`), &d))
	assert.Equal(t, 6, d.Seconds)
}

func TestErrorEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "validation failed", (&Error{}).Error())
}
