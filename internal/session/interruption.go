// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_session

import (
	internal_agentprofile "github.com/aurix-ai/voice-gateway/internal/agentprofile"
	internal_audio "github.com/aurix-ai/voice-gateway/internal/audio"
	internal_vad "github.com/aurix-ai/voice-gateway/internal/vad"
	"github.com/aurix-ai/voice-gateway/pkg/commons"
)

// ============================================================================
// InterruptionMonitor — barge-in detection during AI playback
// ============================================================================

// InterruptionMonitor watches inbound frames while the session is in
// AI_SPEAKING. It reuses the session detector's frame classifier but
// applies the stricter barge-in threshold, so line echo of the gateway's
// own playback does not cancel the turn while a caller talking over the
// AI does.
//
// Fed from the ingest goroutine only; never safe for concurrent use.
// Cancellation is best-effort: the monitor fires its callback once and
// never blocks on the streaming loop reacting.
type InterruptionMonitor struct {
	logger   commons.Logger
	detector *internal_vad.Detector

	confirmFrames int
	streak        int
	triggered     bool

	onBargeIn func()
}

// NewInterruptionMonitor builds a monitor sharing the session's detector.
func NewInterruptionMonitor(
	logger commons.Logger,
	detector *internal_vad.Detector,
	settings internal_agentprofile.VoiceSettings,
	onBargeIn func(),
) *InterruptionMonitor {
	confirm := settings.BargeInConfirmMs / internal_audio.FrameDurationMs
	if confirm < 1 {
		confirm = 1
	}
	return &InterruptionMonitor{
		logger:        logger,
		detector:      detector,
		confirmFrames: confirm,
		onBargeIn:     onBargeIn,
	}
}

// Arm resets the monitor for a new AI turn. Called when playback starts.
func (m *InterruptionMonitor) Arm() {
	m.streak = 0
	m.triggered = false
}

// Triggered reports whether the current AI turn has been cancelled.
func (m *InterruptionMonitor) Triggered() bool {
	return m.triggered
}

// Feed classifies one inbound frame. Sustained energy above the barge-in
// threshold for the confirmation window fires the callback exactly once
// per armed turn.
func (m *InterruptionMonitor) Feed(samples []int16) {
	if m.triggered {
		return
	}
	energy := internal_audio.RMS(samples)
	if !m.detector.ClassifyEnergy(energy, true) {
		m.streak = 0
		return
	}
	m.streak++
	if m.streak < m.confirmFrames {
		return
	}
	m.triggered = true
	m.logger.Debugw("barge-in threshold sustained",
		"energy", energy, "confirmFrames", m.confirmFrames)
	if m.onBargeIn != nil {
		m.onBargeIn()
	}
}
