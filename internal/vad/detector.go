// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_vad

import (
	internal_agentprofile "github.com/aurix-ai/voice-gateway/internal/agentprofile"
	internal_audio "github.com/aurix-ai/voice-gateway/internal/audio"
)

// Event is the boundary signal emitted by the detector for a frame.
type Event int

const (
	EventNone Event = iota
	EventSpeechStart
	EventSpeechEnd
)

func (e Event) String() string {
	switch e {
	case EventSpeechStart:
		return "speech_start"
	case EventSpeechEnd:
		return "speech_end"
	default:
		return "none"
	}
}

// varianceFrames is the energy-history window whose variance proxies line
// noise: 500ms of 20ms frames.
const varianceFrames = 25

// majorityFraction of the start-confirmation window must be
// speech-classified before speech_start fires.
const majorityFraction = 0.6

// noiseFloorAlpha is the EMA coefficient for the adaptive noise floor.
// Only silence-classified frames outside speech and outside the
// echo-ignore window feed the floor, so neither an utterance nor playback
// echo can drag it upward.
const noiseFloorAlpha = 0.05

// Detector classifies fixed 20ms PCM frames as speech or silence against
// an adaptively tracked noise floor, and emits speech_start / speech_end
// boundary events. It is purely frame-count driven — no wall clock — so
// identical frame sequences always produce identical event sequences.
//
// Not safe for concurrent use; each session owns exactly one detector and
// feeds it from its ingest goroutine.
type Detector struct {
	settings internal_agentprofile.VoiceSettings

	// Derived frame counts.
	startConfirmFrames int
	endCleanFrames     int
	endNoisyFrames     int
	echoIgnoreFrames   int

	noiseFloor     float64
	noiseFloorSeen bool

	// energies is a ring of the last varianceFrames frame energies.
	energies  [varianceFrames]float64
	energyLen int
	energyPos int

	// classes is a ring of the last startConfirmFrames classifications,
	// the sliding window behind speech_start confirmation.
	classes  []bool
	classLen int
	classPos int

	speaking      bool
	silenceStreak int

	echoRemaining int
}

// framesFromMs converts a millisecond setting to a frame count, minimum 1.
func framesFromMs(ms int) int {
	n := ms / internal_audio.FrameDurationMs
	if n < 1 {
		n = 1
	}
	return n
}

// NewDetector builds a detector for one call from its resolved settings.
func NewDetector(settings internal_agentprofile.VoiceSettings) *Detector {
	startFrames := framesFromMs(settings.SpeechStartMs)
	return &Detector{
		settings:           settings,
		startConfirmFrames: startFrames,
		endCleanFrames:     framesFromMs(settings.SilenceEndCleanMs),
		endNoisyFrames:     framesFromMs(settings.SilenceEndNoisyMs),
		echoIgnoreFrames:   framesFromMs(settings.EchoIgnoreMs),
		classes:            make([]bool, startFrames),
	}
}

// Speaking reports whether the detector is currently inside an utterance.
func (d *Detector) Speaking() bool {
	return d.speaking
}

// NoiseFloor exposes the current adaptive noise floor estimate.
func (d *Detector) NoiseFloor() float64 {
	return d.noiseFloor
}

// SpeechThreshold is the energy a frame must exceed to classify as speech.
func (d *Detector) SpeechThreshold() float64 {
	t := d.noiseFloor * d.settings.SpeechRatio
	if t < d.settings.MinSpeechEnergy {
		t = d.settings.MinSpeechEnergy
	}
	return t
}

// BargeInThreshold is the stricter energy bar applied during AI speech and
// the echo-ignore window, separating genuine interruption from line echo.
func (d *Detector) BargeInThreshold() float64 {
	return d.SpeechThreshold() * d.settings.BargeInEnergyFactor
}

// EnergyVariance is the population variance of the recent frame energies.
func (d *Detector) EnergyVariance() float64 {
	if d.energyLen == 0 {
		return 0
	}
	var mean float64
	for i := 0; i < d.energyLen; i++ {
		mean += d.energies[i]
	}
	mean /= float64(d.energyLen)
	var variance float64
	for i := 0; i < d.energyLen; i++ {
		delta := d.energies[i] - mean
		variance += delta * delta
	}
	return variance / float64(d.energyLen)
}

// EndSilenceFrames is the adaptive silence-confirmation requirement for
// the current line condition: the noisy-line value when energy variance is
// strictly above the configured noise threshold, the clean-line value
// otherwise (the boundary resolves to clean).
func (d *Detector) EndSilenceFrames() int {
	if d.EnergyVariance() > d.settings.NoiseVarianceThreshold {
		return d.endNoisyFrames
	}
	return d.endCleanFrames
}

// NotifyAISpeech arms the echo-ignore window. Called when AI playback
// starts and again when it ends, so echo of the gateway's own audio —
// which trails playback on both edges — never registers as speech_start.
func (d *Detector) NotifyAISpeech() {
	d.echoRemaining = d.echoIgnoreFrames
}

// InEchoWindow reports whether frames are currently treated as suspect.
func (d *Detector) InEchoWindow() bool {
	return d.echoRemaining > 0
}

// ClassifyEnergy classifies one frame energy as speech or silence, taking
// the echo-ignore window into account. Exposed for the interruption
// monitor, which applies its own confirmation streak on top.
func (d *Detector) ClassifyEnergy(energy float64, strict bool) bool {
	threshold := d.SpeechThreshold()
	if strict || d.echoRemaining > 0 {
		threshold = d.BargeInThreshold()
	}
	return energy > threshold
}

// ProcessFrame ingests one 20ms frame and returns the boundary event it
// produced, if any. speech_start fires at most once per utterance: after
// it fires the detector will not fire it again until a speech_end has been
// emitted.
func (d *Detector) ProcessFrame(samples []int16) Event {
	return d.ProcessEnergy(internal_audio.RMS(samples))
}

// ProcessEnergy is ProcessFrame for a precomputed frame energy.
func (d *Detector) ProcessEnergy(energy float64) Event {
	isSpeech := d.ClassifyEnergy(energy, false)
	inEchoWindow := d.echoRemaining > 0
	if inEchoWindow {
		d.echoRemaining--
	}

	// Track the noise floor on trusted silence frames only, seeding from
	// the first such frame observed.
	if !d.speaking && !isSpeech && !inEchoWindow {
		if !d.noiseFloorSeen {
			d.noiseFloor = energy
			d.noiseFloorSeen = true
		} else {
			d.noiseFloor = (1-noiseFloorAlpha)*d.noiseFloor + noiseFloorAlpha*energy
		}
	}

	d.pushEnergy(energy)
	d.pushClass(isSpeech)

	if !d.speaking {
		if d.classLen == d.startConfirmFrames && isSpeech &&
			d.speechFraction() >= majorityFraction {
			d.speaking = true
			d.silenceStreak = 0
			return EventSpeechStart
		}
		return EventNone
	}

	if isSpeech {
		d.silenceStreak = 0
		return EventNone
	}
	d.silenceStreak++
	if d.silenceStreak >= d.EndSilenceFrames() {
		d.speaking = false
		d.silenceStreak = 0
		return EventSpeechEnd
	}
	return EventNone
}

func (d *Detector) pushEnergy(energy float64) {
	d.energies[d.energyPos] = energy
	d.energyPos = (d.energyPos + 1) % varianceFrames
	if d.energyLen < varianceFrames {
		d.energyLen++
	}
}

func (d *Detector) pushClass(isSpeech bool) {
	d.classes[d.classPos] = isSpeech
	d.classPos = (d.classPos + 1) % d.startConfirmFrames
	if d.classLen < d.startConfirmFrames {
		d.classLen++
	}
}

// SpeechFraction reports the speech-classified share of the sliding
// start-confirmation window. Callers use it to tell idle silence from a
// confirmation in progress.
func (d *Detector) SpeechFraction() float64 {
	return d.speechFraction()
}

func (d *Detector) speechFraction() float64 {
	if d.classLen == 0 {
		return 0
	}
	speech := 0
	for i := 0; i < d.classLen; i++ {
		if d.classes[i] {
			speech++
		}
	}
	return float64(speech) / float64(d.classLen)
}

// Reset clears utterance state but keeps the learned noise floor — the
// line does not get quieter just because a turn ended.
func (d *Detector) Reset() {
	d.speaking = false
	d.silenceStreak = 0
	for i := range d.classes {
		d.classes[i] = false
	}
	d.classLen = 0
	d.classPos = 0
	d.energyLen = 0
	d.energyPos = 0
}
