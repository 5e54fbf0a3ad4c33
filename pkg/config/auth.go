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
	"maps"
	"net/url"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

// CredentialEntry holds the credentials for one broker URL.
type CredentialEntry struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// schemeAliases maps broker scheme variants to their canonical form.
var schemeAliases = map[string]string{
	"tcp":  "mqtt",
	"ssl":  "mqtts",
	"tls":  "mqtts",
	"ws":   "mqtt",
	"wss":  "mqtts",
	"mqtt": "mqtt",
}

type authCredsFormat struct {
	Creds map[string]CredentialEntry `toml:"creds"`
}

// LoadAuthFromData parses auth.toml. Both ["url"] tables at the root and
// [creds."url"] tables are accepted and merged.
func LoadAuthFromData(data []byte) map[string]CredentialEntry {
	result := make(map[string]CredentialEntry)

	var root map[string]CredentialEntry
	if err := toml.Unmarshal(data, &root); err == nil {
		for k, v := range root {
			if k != "creds" {
				result[k] = v
			}
		}
	}

	var creds authCredsFormat
	if err := toml.Unmarshal(data, &creds); err == nil {
		maps.Copy(result, creds.Creds)
	}

	return result
}

func normalizeScheme(scheme string) string {
	lower := strings.ToLower(scheme)
	if canonical, ok := schemeAliases[lower]; ok {
		return canonical
	}
	return lower
}

func isSchemelessKey(key string) bool {
	return !strings.Contains(key, "://")
}

// LookupAuth finds credentials for a broker URL. An entry with the same
// scheme wins over one with an equivalent scheme (tcp and mqtt), which wins
// over a plain host:port entry.
func LookupAuth(creds map[string]CredentialEntry, reqURL string) *CredentialEntry {
	if len(creds) == 0 {
		return nil
	}

	u, err := url.Parse(reqURL)
	if err != nil {
		log.Warn().Msgf("invalid auth request url: %s", reqURL)
		return nil
	}

	match := func(canonical bool) *CredentialEntry {
		for k, v := range creds {
			if isSchemelessKey(k) {
				continue
			}
			defURL, err := url.Parse(k)
			if err != nil {
				log.Error().Msgf("invalid auth config url: %s", k)
				continue
			}
			sameScheme := strings.EqualFold(defURL.Scheme, u.Scheme)
			if canonical {
				sameScheme = normalizeScheme(defURL.Scheme) == normalizeScheme(u.Scheme)
			}
			if sameScheme &&
				strings.EqualFold(defURL.Host, u.Host) &&
				strings.HasPrefix(u.Path, defURL.Path) {
				return &v
			}
		}
		return nil
	}

	if found := match(false); found != nil {
		return found
	}
	if found := match(true); found != nil {
		return found
	}

	for k, v := range creds {
		if isSchemelessKey(k) && strings.EqualFold(k, u.Host) {
			return &v
		}
	}

	return nil
}

// LookupAuth finds credentials for reqURL in the loaded auth file.
func (c *Instance) LookupAuth(reqURL string) *CredentialEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return LookupAuth(c.auth, reqURL)
}
