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

package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ParseMQTTPath splits a "broker:port/topic" path.
//
// Examples:
//   - "localhost:1883/pulse/raw" -> ("localhost:1883", "pulse/raw")
//   - "mqtts://broker.example.com:8883/ward/3" -> ("broker.example.com:8883", "ward/3")
func ParseMQTTPath(path string) (broker, topic string, err error) {
	if path == "" {
		return "", "", errors.New("path cannot be empty")
	}

	urlStr := path
	if !strings.Contains(path, "://") {
		urlStr = "mqtt://" + path
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse MQTT URL: %w", err)
	}

	if u.Host == "" {
		return "", "", errors.New("broker address (host:port) is required")
	}

	topic = strings.TrimLeft(u.Path, "/")
	if topic == "" {
		return "", "", errors.New("topic is required")
	}

	return u.Host, topic, nil
}

// ProtocolInfo is the transport implied by a broker URL.
type ProtocolInfo struct {
	Protocol  string
	Scheme    string
	Remainder string
	UseTLS    bool
}

// ParseProtocol maps mqtts:// and ssl:// to TLS and everything else to
// plain TCP. The path part of the URL is dropped.
func ParseProtocol(urlStr string) ProtocolInfo {
	info := ProtocolInfo{
		Protocol:  "tcp",
		Remainder: urlStr,
	}

	if scheme, rest, ok := strings.Cut(urlStr, "://"); ok {
		info.Scheme = scheme
		info.Remainder = rest
		if scheme == "mqtts" || scheme == "ssl" {
			info.Protocol = "ssl"
			info.UseTLS = true
		}
	}

	if host, _, ok := strings.Cut(info.Remainder, "/"); ok {
		info.Remainder = host
	}

	return info
}

// AuthLookup returns the credentials for a broker URL, or nil.
type AuthLookup func(brokerURL string) *config.CredentialEntry

// NewClientOptions configures a client for brokerURL with a random client
// ID under clientIDPrefix.
func NewClientOptions(brokerURL, clientIDPrefix string, auth AuthLookup) *mqtt.ClientOptions {
	info := ParseProtocol(brokerURL)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s", info.Protocol, info.Remainder))
	opts.SetClientID(clientIDPrefix + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOrderMatters(false)

	if auth != nil {
		lookupURL := brokerURL
		if info.Scheme == "" {
			lookupURL = "mqtt://" + info.Remainder
		}
		if creds := auth(lookupURL); creds != nil && creds.Username != "" {
			opts.SetUsername(creds.Username)
			opts.SetPassword(creds.Password)
			log.Debug().Msgf("mqtt: using authentication for %s", info.Remainder)
		}
	}

	if info.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
		log.Debug().Msgf("mqtt: using TLS for %s", info.Remainder)
	}

	return opts
}
