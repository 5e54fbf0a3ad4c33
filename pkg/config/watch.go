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
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// reloadDebounce collapses the burst of events editors produce on save.
const reloadDebounce = 100 * time.Millisecond

// Watch reloads the config when the file changes on disk and calls onChange
// after every successful reload. A file that fails to load is logged and
// the previous values are kept. The watcher stops when ctx is done.
func (c *Instance) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	// watch the directory, editors often replace the file instead of writing
	dir := filepath.Dir(c.cfgPath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config dir (%s): %w", dir, err)
	}
	log.Debug().Msgf("watching config file: %s", c.cfgPath)

	go func() {
		defer func() {
			if err := watcher.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing config watcher")
			}
		}()

		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}

		target := filepath.Clean(c.cfgPath)
		for {
			select {
			case <-ctx.Done():
				debounce.Stop()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				debounce.Reset(reloadDebounce)
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(watchErr).Msg("config watcher error")
			case <-debounce.C:
				if err := c.Load(); err != nil {
					log.Error().Err(err).Msg("failed to reload config")
					continue
				}
				log.Info().Msg("config reloaded")
				if onChange != nil {
					onChange()
				}
			}
		}
	}()

	return nil
}
