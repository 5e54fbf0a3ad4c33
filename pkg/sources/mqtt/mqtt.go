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

// Package mqtt subscribes to a broker topic and treats every line of every
// message as a pulse line.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/config"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/sources"
	"github.com/ZaparooProject/zaparoo-pulse/pkg/stream"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// ConnectTimeout bounds the initial connection in Open.
	ConnectTimeout = 5 * time.Second
	// disconnectQuiesce is the time given to in-flight work on Close, in ms.
	disconnectQuiesce = 250
)

var ErrConnectTimeout = errors.New("connection timeout")

// ClientFactory creates an MQTT client.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

func DefaultClientFactory(opts *mqtt.ClientOptions) mqtt.Client {
	return mqtt.NewClient(opts)
}

type Source struct {
	client        mqtt.Client
	clock         clockwork.Clock
	parser        *stream.Parser
	clientFactory ClientFactory
	auth          AuthLookup
	broker        string
	topic         string
	mu            syncutil.RWMutex
}

// NewSource builds an MQTT source. auth may be nil when the broker needs
// no credentials.
func NewSource(clock clockwork.Clock, auth AuthLookup) *Source {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Source{
		clock:         clock,
		parser:        stream.NewParser(clock),
		clientFactory: DefaultClientFactory,
		auth:          auth,
	}
}

// WithClientFactory replaces how the client is created.
func (s *Source) WithClientFactory(f ClientFactory) *Source {
	s.clientFactory = f
	return s
}

func (*Source) Metadata() sources.DriverMetadata {
	return sources.DriverMetadata{
		ID:          config.DriverMQTT,
		Description: "Lines from an MQTT topic",
	}
}

func (*Source) IDs() []string {
	return []string{config.DriverMQTT}
}

func (s *Source) Open(_ context.Context, src config.Source, q *stream.Queue) error {
	if !sources.MatchesDriver(s, src.Driver) {
		return fmt.Errorf("%w: %s", sources.ErrInvalidDriver, src.Driver)
	}
	if s.Connected() {
		return sources.ErrAlreadyOpen
	}

	broker, topic, err := ParseMQTTPath(src.Path)
	if err != nil {
		return sources.StartupFailed(s.clock, q, "[MQTT] open failed", err)
	}

	brokerURL := src.Path
	if !strings.Contains(brokerURL, "://") {
		brokerURL = broker
	}

	opts := NewClientOptions(brokerURL, "zaparoo-pulse-", s.auth)
	opts.OnConnect = func(client mqtt.Client) {
		log.Info().Msgf("mqtt source: connected to %s", broker)

		// QoS 0: a late sample is worse than a missing one
		token := client.Subscribe(topic, 0, s.messageHandler(q))
		if token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Msgf("mqtt source: failed to subscribe to %s", topic)
			q.Put(stream.NewLogEvent(s.clock.Now(), "[MQTT] subscribe failed: %v", token.Error()))
			return
		}
		log.Info().Msgf("mqtt source: subscribed to topic %s", topic)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt source: connection lost")
		q.Put(stream.NewLogEvent(s.clock.Now(), "[MQTT] connection lost: %v", err))
	}

	client := s.clientFactory(opts)
	token := client.Connect()
	if !token.WaitTimeout(ConnectTimeout) {
		client.Disconnect(0)
		return sources.StartupFailed(s.clock, q, "[MQTT] connect failed", ErrConnectTimeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return sources.StartupFailed(s.clock, q, "[MQTT] connect failed", err)
	}

	s.mu.Lock()
	s.client = client
	s.broker = broker
	s.topic = topic
	s.mu.Unlock()

	q.Put(stream.NewLogEvent(s.clock.Now(), "[MQTT] connected to %s (topic %s)", broker, topic))
	return nil
}

// messageHandler splits payloads into lines so a publisher may batch
// several samples in one message.
func (s *Source) messageHandler(q *stream.Queue) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		payload := string(msg.Payload())
		if strings.TrimSpace(payload) == "" {
			log.Debug().Msg("mqtt source: ignoring empty message")
			return
		}
		for line := range strings.Lines(payload) {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			q.Put(s.parser.Parse(line))
		}
	}
}

func (s *Source) Close() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client != nil && client.IsConnected() {
		log.Debug().Msg("mqtt source: disconnecting")
		client.Disconnect(disconnectQuiesce)
	}
	return nil
}

func (s *Source) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil && s.client.IsConnected()
}

func (s *Source) Info() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.topic == "" {
		return "mqtt: none"
	}
	return fmt.Sprintf("mqtt: %s/%s", s.broker, s.topic)
}
