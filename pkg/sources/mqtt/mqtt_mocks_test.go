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
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mockMQTTClient implements mqtt.Client. Connect runs the OnConnect hook
// of the options it was built with, like a broker that accepts at once.
type mockMQTTClient struct {
	connectError    error
	subscribeError  error
	opts            *mqtt.ClientOptions
	messageHandler  mqtt.MessageHandler
	subscribedTopic string
	disconnectCalls int
	connectTimeout  bool
	connected       bool
	mu              sync.Mutex
}

func newMockMQTTClient() *mockMQTTClient {
	return &mockMQTTClient{}
}

func (m *mockMQTTClient) factory(opts *mqtt.ClientOptions) mqtt.Client {
	m.mu.Lock()
	m.opts = opts
	m.mu.Unlock()
	return m
}

func (m *mockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTTClient) IsConnectionOpen() bool {
	return m.IsConnected()
}

func (m *mockMQTTClient) Connect() mqtt.Token {
	if m.connectTimeout {
		return &mockToken{}
	}
	if m.connectError != nil {
		return &mockToken{err: m.connectError, complete: true}
	}
	m.mu.Lock()
	m.connected = true
	opts := m.opts
	m.mu.Unlock()
	if opts != nil && opts.OnConnect != nil {
		opts.OnConnect(m)
	}
	return &mockToken{complete: true}
}

func (m *mockMQTTClient) Disconnect(_ uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnectCalls++
}

func (*mockMQTTClient) Publish(_ string, _ byte, _ bool, _ any) mqtt.Token {
	return &mockToken{complete: true}
}

func (m *mockMQTTClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	if m.subscribeError != nil {
		return &mockToken{err: m.subscribeError, complete: true}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribedTopic = topic
	m.messageHandler = callback
	return &mockToken{complete: true}
}

func (*mockMQTTClient) SubscribeMultiple(_ map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	return &mockToken{complete: true}
}

func (*mockMQTTClient) Unsubscribe(_ ...string) mqtt.Token {
	return &mockToken{complete: true}
}

func (m *mockMQTTClient) AddRoute(_ string, callback mqtt.MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messageHandler = callback
}

func (*mockMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

func (m *mockMQTTClient) deliver(payload string) {
	m.mu.Lock()
	handler := m.messageHandler
	m.mu.Unlock()
	handler(m, &mockMessage{payload: []byte(payload)})
}

// mockToken implements mqtt.Token.
type mockToken struct {
	err      error
	complete bool
}

func (*mockToken) Wait() bool {
	return true
}

func (t *mockToken) WaitTimeout(_ time.Duration) bool {
	return t.complete
}

func (*mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *mockToken) Error() error {
	return t.err
}

// mockMessage implements mqtt.Message.
type mockMessage struct {
	payload []byte
}

func (*mockMessage) Duplicate() bool { return false }
func (*mockMessage) Qos() byte { return 0 }
func (*mockMessage) Retained() bool { return false }
func (*mockMessage) Topic() string { return "pulse/raw" }
func (*mockMessage) MessageID() uint16 { return 1 }
func (m *mockMessage) Payload() []byte { return m.payload }
func (*mockMessage) Ack() {}
