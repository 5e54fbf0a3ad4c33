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
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// LogHistory is the number of log view lines kept by the monitor.
	LogHistory = 500
	// SnapshotLogLines is the number of newest log lines copied per snapshot.
	SnapshotLogLines = 200
	// DefaultDropDuration matches the dashboard "simulate drop" action.
	DefaultDropDuration = 6 * time.Second
)

type (
	LogHook            func(LogLine)
	PacketHook         func(Packet)
	AlarmChangeHook    func(from, to AlarmState)
	WatchdogChangeHook func(from, to WatchdogState)
)

type hooks struct {
	log      []LogHook
	packet   []PacketHook
	alarm    []AlarmChangeHook
	watchdog []WatchdogChangeHook
}

// Monitor is the consumer side of the pipeline. Tick must only be called
// from one goroutine at a time; everything else is safe for concurrent use.
type Monitor struct {
	clock    clockwork.Clock
	queue    *Queue
	settings *Settings
	bpm      *WindowedBuffer[float64]
	wave     *WindowedBuffer[int]
	watchdog *Watchdog
	link     *LinkStats
	snapshot atomic.Pointer[Snapshot]

	hooks   hooks
	hooksMu syncutil.RWMutex

	logs          []LogLine
	lastAlarmText string
	ticks         uint64
	alarm         AlarmState
	dropping      bool
}

// NewMonitor builds a monitor draining queue. A nil settings uses the
// defaults and a nil clock the real clock.
func NewMonitor(clock clockwork.Clock, queue *Queue, settings *Settings) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if queue == nil {
		queue = NewQueue(0)
	}
	if settings == nil {
		settings = DefaultSettings()
	}
	retention := settings.Retention()
	m := &Monitor{
		clock:    clock,
		queue:    queue,
		settings: settings,
		bpm:      NewWindowedBuffer[float64](retention),
		wave:     NewWindowedBuffer[int](retention),
		watchdog: NewWatchdog(WatchdogTimeout),
		link:     NewLinkStats(LatencyHistory),
	}
	m.snapshot.Store(emptySnapshot(clock.Now(), settings.Thresholds(), retention))
	return m
}

func (m *Monitor) Settings() *Settings {
	return m.settings
}

func (m *Monitor) Queue() *Queue {
	return m.queue
}

// Snapshot returns the view published by the last tick.
func (m *Monitor) Snapshot() *Snapshot {
	return m.snapshot.Load()
}

func (m *Monitor) OnLog(fn LogHook) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks.log = append(m.hooks.log, fn)
}

func (m *Monitor) OnPacket(fn PacketHook) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks.packet = append(m.hooks.packet, fn)
}

func (m *Monitor) OnAlarmChange(fn AlarmChangeHook) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks.alarm = append(m.hooks.alarm, fn)
}

func (m *Monitor) OnWatchdogChange(fn WatchdogChangeHook) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks.watchdog = append(m.hooks.watchdog, fn)
}

func (m *Monitor) SetThresholds(th Thresholds) error {
	return m.settings.SetThresholds(th)
}

func (m *Monitor) SetRetention(d time.Duration) error {
	return m.settings.SetRetention(d)
}

// SimulateDrop ignores incoming BPM samples and packets for d, which trips
// the watchdog once d exceeds its timeout. Log events keep flowing.
func (m *Monitor) SimulateDrop(d time.Duration) {
	if d <= 0 {
		d = DefaultDropDuration
	}
	now := m.clock.Now()
	m.settings.setDropUntil(now.Add(d))
	m.queue.Put(NewLogEvent(now, "[Demo] Simulating no packets for %d s", int(d.Seconds())))
}

// Log queues a message for the log view. Safe from any goroutine.
func (m *Monitor) Log(format string, args ...any) {
	m.queue.Put(NewLogEvent(m.clock.Now(), format, args...))
}

// Tick drains the queue, trims the buffers, evaluates the watchdog and the
// alarm and publishes a new snapshot.
func (m *Monitor) Tick() *Snapshot {
	now := m.clock.Now()
	m.ticks++

	retention := m.settings.Retention()
	m.bpm.SetRetention(retention)
	m.wave.SetRetention(retention)

	dropUntil := m.settings.DropUntil()
	dropping := now.Before(dropUntil)
	if m.dropping && !dropping {
		m.appendLog(LogLine{Time: now, Message: "[Demo] Drop simulation ended"})
	}
	m.dropping = dropping

	m.queue.Drain(func(ev Event) {
		m.ingest(ev, dropUntil)
	})

	m.bpm.Trim(now)
	m.wave.Trim(now)

	m.evaluateWatchdog(now)
	m.evaluateAlarm(now)

	snap := m.buildSnapshot(now, dropUntil)
	m.snapshot.Store(snap)
	return snap
}

// ingest applies one event. A panic while handling it is logged and the
// rest of the batch continues.
func (m *Monitor) ingest(ev Event, dropUntil time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msgf("panic while ingesting %T", ev)
			m.appendLog(LogLine{
				Time:    m.clock.Now(),
				Message: fmt.Sprintf("[ERROR] event %T dropped: %v", ev, r),
			})
		}
	}()

	switch v := ev.(type) {
	case LogEvent:
		m.appendLog(LogLine(v))
	case ParseErrorEvent:
		m.appendLog(LogLine{
			Time:    v.Time,
			Message: "[PARSE] " + truncateRunes(v.Line, maxParseEcho),
		})
	case BpmEvent:
		if v.Time.Before(dropUntil) {
			return
		}
		m.bpm.Append(v.Time, v.BPM)
		m.watchdog.Observe(v.Time)
	case PacketEvent:
		if v.Packet.HostTime.Before(dropUntil) {
			return
		}
		m.ingestPacket(&v.Packet)
	default:
		log.Warn().Msgf("unknown event type: %T", ev)
	}
}

func (m *Monitor) ingestPacket(p *Packet) {
	m.bpm.Append(p.HostTime, p.BPM)
	for _, e := range p.Waveform() {
		m.wave.Append(e.Time, e.Value)
	}
	m.watchdog.Observe(p.HostTime)

	if err := m.link.Observe(p); err != nil {
		m.appendLog(LogLine{
			Time:    p.HostTime,
			Message: fmt.Sprintf("[METRIC] link stats: %v", err),
		})
	}

	m.hooksMu.RLock()
	fns := slices.Clone(m.hooks.packet)
	m.hooksMu.RUnlock()
	for _, fn := range fns {
		m.safeCall("packet", func() { fn(*p) })
	}
}

func (m *Monitor) evaluateWatchdog(now time.Time) {
	prev := m.watchdog.State()
	state, changed := m.watchdog.Evaluate(now)
	if !changed {
		return
	}

	switch state {
	case WatchdogStalled:
		m.appendLog(LogLine{Time: now, Message: MsgStalled})
	case WatchdogAlive:
		m.appendLog(LogLine{Time: now, Message: MsgResumed})
	case WatchdogNoData:
	}

	m.hooksMu.RLock()
	fns := slices.Clone(m.hooks.watchdog)
	m.hooksMu.RUnlock()
	for _, fn := range fns {
		m.safeCall("watchdog", func() { fn(prev, state) })
	}
}

func (m *Monitor) evaluateAlarm(now time.Time) {
	latest, ok := m.bpm.Last()
	if !ok {
		return
	}

	state := EvaluateAlarm(latest.Value, m.settings.Thresholds())
	if text := state.Message(); text != "" && text != m.lastAlarmText {
		m.lastAlarmText = text
		m.appendLog(LogLine{Time: now, Message: text})
	}

	if state == m.alarm {
		return
	}
	prev := m.alarm
	m.alarm = state

	m.hooksMu.RLock()
	fns := slices.Clone(m.hooks.alarm)
	m.hooksMu.RUnlock()
	for _, fn := range fns {
		m.safeCall("alarm", func() { fn(prev, state) })
	}
}

func (m *Monitor) appendLog(line LogLine) {
	log.Info().Str("view", "log").Msg(line.Message)

	m.logs = append(m.logs, line)
	if over := len(m.logs) - LogHistory; over > 0 {
		m.logs = slices.Delete(m.logs, 0, over)
	}

	m.hooksMu.RLock()
	fns := slices.Clone(m.hooks.log)
	m.hooksMu.RUnlock()
	for _, fn := range fns {
		m.safeCall("log", func() { fn(line) })
	}
}

func (*Monitor) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msgf("panic in %s hook", kind)
		}
	}()
	fn()
}

func (m *Monitor) buildSnapshot(now, dropUntil time.Time) *Snapshot {
	bpm := m.bpm.Entries()
	snap := &Snapshot{
		Time:         now,
		LastPacket:   m.watchdog.LastSeen(),
		BPM:          bpm,
		Waveform:     m.wave.Entries(),
		Link:         m.link.Snapshot(),
		Thresholds:   m.settings.Thresholds(),
		RetentionMs:  m.bpm.Retention().Milliseconds(),
		SilenceMs:    m.watchdog.Silence(now).Milliseconds(),
		Tick:         m.ticks,
		QueueDropped: m.queue.Dropped(),
		Clamped:      m.bpm.Clamped() + m.wave.Clamped(),
		Alarm:        m.alarm,
		Watchdog:     m.watchdog.State(),
		Dropping:     now.Before(dropUntil),
	}
	if snap.Dropping {
		snap.DropUntil = dropUntil
	}

	if latest, ok := m.bpm.Last(); ok {
		snap.CurrentBPM = latest.Value
		snap.HasBPM = true
	}
	snap.MeanBPM, snap.HasMeanBPM = BinnedMean(bpm, m.bpm.Retention(), BarBin)

	var metrics ResearchMetrics
	metrics.RMSSDMs, metrics.HasRMSSD = RMSSD(m.bpm.Values())
	metrics.SDPPG, metrics.HasSDPPG = SDPPG(m.wave.Tail(SDPPGWindow))
	snap.Metrics = metrics

	start := max(0, len(m.logs)-SnapshotLogLines)
	snap.Logs = slices.Clone(m.logs[start:])
	if snap.Logs == nil {
		snap.Logs = []LogLine{}
	}

	return snap
}
