// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_agentprofile

import (
	"context"
)

// VoiceSettings are the per-agent conversation tunables. They are resolved
// once at call start and never mutated for the lifetime of the call.
// All durations are milliseconds; the engine converts them to 20ms frame
// counts, so values are effectively rounded down to frame granularity.
type VoiceSettings struct {
	// SpeechRatio is the VAD aggressiveness: a frame counts as speech when
	// its energy exceeds noiseFloor*SpeechRatio (and MinSpeechEnergy).
	// Higher is more aggressive filtering.
	SpeechRatio float64 `json:"speechRatio"`

	// MinSpeechEnergy is the absolute RMS floor below which a frame is
	// never classified as speech, regardless of the noise floor.
	MinSpeechEnergy float64 `json:"minSpeechEnergy"`

	// SilenceEndCleanMs / SilenceEndNoisyMs bound the adaptive
	// end-of-utterance silence confirmation. Clean lines use the lower
	// value for snappy turn-taking; noisy lines the higher one to avoid
	// premature cut-offs.
	SilenceEndCleanMs int `json:"silenceEndCleanMs"`
	SilenceEndNoisyMs int `json:"silenceEndNoisyMs"`

	// NoiseVarianceThreshold switches between the two silence windows:
	// energy variance strictly above it means a noisy line.
	NoiseVarianceThreshold float64 `json:"noiseVarianceThreshold"`

	// SpeechStartMs is the sustained-speech confirmation window before
	// speech_start fires.
	SpeechStartMs int `json:"speechStartMs"`

	// MinUtteranceMs is the minimum buffered audio duration worth
	// transcribing; shorter utterances are discarded as noise blips.
	MinUtteranceMs int `json:"minUtteranceMs"`

	// MaxUtteranceMs is the hard speaking ceiling: once exceeded, the
	// pipeline runs on the buffered audio even without observed silence.
	MaxUtteranceMs int `json:"maxUtteranceMs"`

	// EchoIgnoreMs is the window after AI speech starts (and again after
	// it ends) during which inbound frames are suspected playback echo
	// and must clear the stricter barge-in threshold.
	EchoIgnoreMs int `json:"echoIgnoreMs"`

	// BargeInEnergyFactor multiplies the speech threshold during AI
	// speech and the echo window; genuine interruptions are loud.
	BargeInEnergyFactor float64 `json:"bargeInEnergyFactor"`

	// BargeInConfirmMs is the sustained-speech window the interruption
	// monitor requires before cancelling AI playback.
	BargeInConfirmMs int `json:"bargeInConfirmMs"`
}

// DefaultVoiceSettings are the tuned starting values. Agents override
// individual fields through their profile.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		SpeechRatio:            2.5,
		MinSpeechEnergy:        350,
		SilenceEndCleanMs:      700,
		SilenceEndNoisyMs:      1200,
		NoiseVarianceThreshold: 50000,
		SpeechStartMs:          200,
		MinUtteranceMs:         300,
		MaxUtteranceMs:         6000,
		EchoIgnoreMs:           600,
		BargeInEnergyFactor:    2.0,
		BargeInConfirmMs:       300,
	}
}

// AgentProfile is everything the engine needs to speak on behalf of one
// agent: prompt, voice, and conversation tunables.
type AgentProfile struct {
	AgentID      string        `json:"agentId"`
	SystemPrompt string        `json:"systemPrompt"`
	Greeting     string        `json:"greeting"`
	VoiceID      string        `json:"voiceId"`
	MaxTokens    int           `json:"maxTokens"`
	Voice        VoiceSettings `json:"voice"`
}

// Provider resolves agent profiles. Consumed exactly once per call, at
// session creation.
type Provider interface {
	Resolve(ctx context.Context, agentID string) (*AgentProfile, error)
}
