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

// Package validation checks API request bodies and config values using
// go-playground/validator plus a few Pulse specific tags.
package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxBPM is the highest threshold the dashboard accepts.
const MaxBPM = 300

var (
	ErrMissingParams = errors.New("missing params")
	ErrInvalidParams = errors.New("invalid params")
)

type contextKey struct{}

var validateCtxKey = contextKey{}

// Validator handles validation of API parameters and config values.
type Validator struct {
	validate *validator.Validate
}

// Context provides runtime context for validation.
type Context struct {
	Drivers []string
}

// NewContext creates a Context from the IDs of the available source drivers.
func NewContext(drivers []string) *Context {
	return &Context{Drivers: drivers}
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("duration", validateDuration)
	_ = v.RegisterValidation("bpm", validateBPM)
	_ = v.RegisterValidationCtx("driver", validateDriver)

	return &Validator{validate: v}
}

// DefaultValidator is a shared validator instance.
var DefaultValidator = NewValidator()

func (v *Validator) Validate(params any) error {
	return v.ValidateCtx(context.Background(), params, nil)
}

func (v *Validator) ValidateCtx(ctx context.Context, params any, vctx *Context) error {
	ctxVal := context.WithValue(ctx, validateCtxKey, vctx)
	if err := v.validate.StructCtx(ctxVal, params); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewError(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateAndUnmarshal decodes a JSON body into dest and validates it.
// Returns ErrMissingParams for an empty body and ErrInvalidParams when the
// JSON does not decode.
func ValidateAndUnmarshal[T any](params json.RawMessage, dest *T) error {
	if len(params) == 0 {
		return ErrMissingParams
	}
	if err := json.Unmarshal(params, dest); err != nil {
		return ErrInvalidParams
	}
	return DefaultValidator.Validate(dest)
}

// validateDuration accepts an empty string or a positive Go duration.
func validateDuration(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	d, err := time.ParseDuration(val)
	return err == nil && d > 0
}

// validateBPM accepts thresholds in (0, MaxBPM].
func validateBPM(fl validator.FieldLevel) bool {
	v := fl.Field().Float()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v > 0 && v <= MaxBPM
}

// validateDriver checks the value against the registered source drivers.
// Without a context any value passes.
func validateDriver(ctx context.Context, fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	vctx, ok := ctx.Value(validateCtxKey).(*Context)
	if !ok || vctx == nil {
		return true
	}
	for _, id := range vctx.Drivers {
		if strings.EqualFold(id, val) {
			return true
		}
	}
	return false
}
