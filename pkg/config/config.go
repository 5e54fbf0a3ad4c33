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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/api/validation"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/syncutil"
	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	SchemaVersion = 1
	AppName       = "zaparoo-pulse"
	CfgFile       = "config.toml"
	AuthFile      = "auth.toml"
	CfgEnv        = "PULSE_CFG"
	RecordsDir    = "records"
	LogsDir       = "logs"

	DriverSynthetic  = "synthetic"
	DriverSubprocess = "subprocess"
	DriverSerial     = "serial"
	DriverMQTT       = "mqtt"

	DefaultRetention     = 15 * time.Second
	DefaultPollInterval  = 200 * time.Millisecond
	DefaultQueueCapacity = 10000
	DefaultAlarmLow      = 40.0
	DefaultAlarmHigh     = 90.0
	DefaultBaudRate      = 115200
	DefaultAPIListen     = "127.0.0.1:7598"
)

var ErrSchemaMismatch = errors.New("schema version mismatch")

type Values struct {
	Source         Source    `toml:"source"`
	API            API       `toml:"api"`
	Recording      Recording `toml:"recording"`
	Monitor        Monitor   `toml:"monitor"`
	DeviceID       string    `toml:"device_id"`
	ConfigSchema   int       `toml:"config_schema"`
	DebugLogging   bool      `toml:"debug_logging"`
	ErrorReporting bool      `toml:"error_reporting"`
}

type Monitor struct {
	Retention     string  `toml:"retention" validate:"duration"`
	PollInterval  string  `toml:"poll_interval" validate:"duration"`
	QueueCapacity int     `toml:"queue_capacity" validate:"gte=0"`
	AlarmLow      float64 `toml:"alarm_low" validate:"bpm"`
	AlarmHigh     float64 `toml:"alarm_high" validate:"bpm"`
}

// Source selects where pulse lines come from. Path is the serial device for
// the serial driver and broker:port/topic for MQTT.
type Source struct {
	Driver   string   `toml:"driver" validate:"omitempty,oneof=synthetic subprocess serial mqtt"`
	Path     string   `toml:"path"`
	Command  []string `toml:"command"`
	BaudRate int      `toml:"baud_rate" validate:"gte=0"`
}

type Recording struct {
	Dir     string `toml:"dir"`
	Enabled bool   `toml:"enabled"`
}

type API struct {
	Listen  string `toml:"listen" validate:"omitempty,hostname_port"`
	Enabled bool   `toml:"enabled"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Monitor: Monitor{
		Retention:     DefaultRetention.String(),
		PollInterval:  DefaultPollInterval.String(),
		QueueCapacity: DefaultQueueCapacity,
		AlarmLow:      DefaultAlarmLow,
		AlarmHigh:     DefaultAlarmHigh,
	},
	Source: Source{
		Driver:   DriverSynthetic,
		Command:  []string{},
		BaudRate: DefaultBaudRate,
	},
	API: API{
		Enabled: true,
		Listen:  DefaultAPIListen,
	},
}

type Instance struct {
	auth     map[string]CredentialEntry
	cfgPath  string
	authPath string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

//nolint:gocritic // config struct copied for immutability
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		cfgPath:  cfgPath,
		authPath: filepath.Join(filepath.Dir(cfgPath), AuthFile),
		vals:     defaults,
		defaults: defaults,
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		err := os.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err := cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Path returns the location of the config file on disk.
func (c *Instance) Path() string {
	return c.cfgPath
}

// Load reads the config file over the defaults. The current values are
// left untouched when the file fails to parse or validate.
func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// fields missing from the file keep their default value
	newVals := c.defaults
	newVals.Source.Command = slices.Clone(c.defaults.Source.Command)
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return ErrSchemaMismatch
	}

	if err := validation.DefaultValidator.Validate(&newVals); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c.vals = newVals

	if _, err := os.Stat(c.authPath); err == nil {
		log.Info().Msg("loading auth file")
		authData, err := os.ReadFile(c.authPath)
		if err != nil {
			return fmt.Errorf("failed to read auth file: %w", err)
		}
		c.auth = LoadAuthFromData(authData)
		log.Info().Msgf("loaded %d auth entries", len(c.auth))
	}

	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	c.vals.ConfigSchema = SchemaVersion

	if c.vals.DeviceID == "" {
		c.vals.DeviceID = uuid.New().String()
		log.Info().Msgf("generated new device id: %s", c.vals.DeviceID)
	}

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DeviceID is the anonymous ID attached to error reports.
func (c *Instance) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DeviceID
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
	if enabled {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func (c *Instance) ErrorReporting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.ErrorReporting
}

func (c *Instance) SetErrorReporting(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.ErrorReporting = enabled
}

// parseDuration falls back to def for empty or invalid values. Load has
// already validated the file so the fallback only covers zero Values.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		log.Warn().Msgf("invalid duration %q, using %s", s, def)
		return def
	}
	return d
}

func (c *Instance) Retention() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration(c.vals.Monitor.Retention, DefaultRetention)
}

func (c *Instance) SetRetention(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Monitor.Retention = d.String()
}

func (c *Instance) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration(c.vals.Monitor.PollInterval, DefaultPollInterval)
}

func (c *Instance) QueueCapacity() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Monitor.QueueCapacity
}

// AlarmThresholds returns the low and high BPM alarm bounds.
func (c *Instance) AlarmThresholds() (low, high float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Monitor.AlarmLow, c.vals.Monitor.AlarmHigh
}

func (c *Instance) SetAlarmThresholds(low, high float64) error {
	m := Monitor{AlarmLow: low, AlarmHigh: high}
	if err := validation.DefaultValidator.Validate(&m); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Monitor.AlarmLow = low
	c.vals.Monitor.AlarmHigh = high
	return nil
}

// Source returns a copy of the source settings.
func (c *Instance) Source() Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.vals.Source
	src.Command = slices.Clone(src.Command)
	if src.Driver == "" {
		src.Driver = DriverSynthetic
	}
	if src.BaudRate == 0 {
		src.BaudRate = DefaultBaudRate
	}
	return src
}

func (c *Instance) SetSource(src Source) error {
	if err := validation.DefaultValidator.Validate(&src); err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	src.Command = slices.Clone(src.Command)
	c.vals.Source = src
	return nil
}

func (c *Instance) RecordingEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Recording.Enabled
}

func (c *Instance) SetRecordingEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Recording.Enabled = enabled
}

// RecordingDir resolves the recording directory. Empty means
// <dataDir>/records and relative paths are taken from dataDir.
func (c *Instance) RecordingDir(dataDir string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := c.vals.Recording.Dir
	if dir == "" {
		return filepath.Join(dataDir, RecordsDir)
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(dataDir, dir)
}

func (c *Instance) APIEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.API.Enabled
}

func (c *Instance) APIListen() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.API.Listen == "" {
		return DefaultAPIListen
	}
	return c.vals.API.Listen
}
