// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zaf/g711"
)

// AudioFormat identifies the wire encoding of an audio payload.
type AudioFormat string

const (
	FormatLinear16 AudioFormat = "linear16"
	FormatMulaw8   AudioFormat = "mulaw"
)

// AudioConfig describes a fixed audio stream format. Frames are always
// FrameDurationMs long; every duration in the engine is derived from that.
type AudioConfig struct {
	SampleRate int
	Format     AudioFormat
	Channels   int
}

// FrameDurationMs is the fixed frame length the engine operates on.
const FrameDurationMs = 20

// NewLinear16khzMonoAudioConfig is the internal engine format: all inbound
// audio is decoded into it before hitting the VAD or the utterance buffer.
func NewLinear16khzMonoAudioConfig() AudioConfig {
	return AudioConfig{SampleRate: 16000, Format: FormatLinear16, Channels: 1}
}

// NewMulaw8khzMonoAudioConfig is the classic telephony wire format.
func NewMulaw8khzMonoAudioConfig() AudioConfig {
	return AudioConfig{SampleRate: 8000, Format: FormatMulaw8, Channels: 1}
}

// BytesPerSample returns the per-sample byte width of the format.
func (c AudioConfig) BytesPerSample() int {
	if c.Format == FormatMulaw8 {
		return 1
	}
	return 2
}

// BytesPerMs returns how many bytes one millisecond of audio occupies.
func BytesPerMs(c AudioConfig) int {
	return c.SampleRate * c.BytesPerSample() * c.Channels / 1000
}

// FrameBytes returns the byte size of one fixed-duration frame.
func (c AudioConfig) FrameBytes() int {
	return BytesPerMs(c) * FrameDurationMs
}

// DurationMs returns the playback duration of n bytes in this format.
func (c AudioConfig) DurationMs(n int) int {
	bpm := BytesPerMs(c)
	if bpm == 0 {
		return 0
	}
	return n / bpm
}

// Decode converts a payload in the source format into linear16 PCM bytes.
// Linear16 input passes through untouched; µ-law is expanded via g711.
// Sample-rate conversion is not performed here: the wire protocol pins the
// rate per stream and the VAD operates on whatever rate the config declares.
func Decode(payload []byte, cfg AudioConfig) ([]byte, error) {
	switch cfg.Format {
	case FormatLinear16:
		return payload, nil
	case FormatMulaw8:
		return g711.DecodeUlaw(payload), nil
	default:
		return nil, fmt.Errorf("unsupported audio format %q", cfg.Format)
	}
}

// EncodeOutbound converts linear16 PCM into the stream's wire format.
func EncodeOutbound(pcm []byte, cfg AudioConfig) ([]byte, error) {
	switch cfg.Format {
	case FormatLinear16:
		return pcm, nil
	case FormatMulaw8:
		return g711.EncodeUlaw(pcm), nil
	default:
		return nil, fmt.Errorf("unsupported audio format %q", cfg.Format)
	}
}

// DownsampleHalf halves the rate of linear16 PCM by dropping every other
// sample, for the 16k synthesis → 8k telephony playback path. Plain
// decimation is audible only above telephony bandwidth anyway.
func DownsampleHalf(pcm []byte) []byte {
	out := make([]byte, 0, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 4 {
		out = append(out, pcm[i], pcm[i+1])
	}
	return out
}

// Samples reinterprets little-endian linear16 bytes as int16 samples.
// A trailing odd byte is dropped.
func Samples(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return out
}

// RMS computes the root-mean-square energy of a PCM16 frame. Returned in
// raw sample units (0..32767), matching the VAD threshold scale.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
