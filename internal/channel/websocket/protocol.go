// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package channel_websocket

import (
	"fmt"

	internal_audio "github.com/aurix-ai/voice-gateway/internal/audio"
)

// ============================================================================
// WIRE PROTOCOL
// ============================================================================
//
// The media stream is a framed JSON sequence per call. Inbound:
//
//	{"event":"start","streamId":"…","start":{"agentId":"…","callId":"…","mediaFormat":{…}}}
//	{"event":"media","streamId":"…","media":{"payload":"<base64 audio>"}}
//	{"event":"stop","streamId":"…"}
//
// Outbound audio uses the same media framing addressed to the stream id;
// a clear event tells the far end to drop buffered playback on barge-in.

const (
	EventStart = "start"
	EventMedia = "media"
	EventStop  = "stop"
	EventClear = "clear"
)

// MediaFormat pins the audio encoding for the stream's lifetime.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// StartPayload carries call metadata on the start event.
type StartPayload struct {
	AgentID     string      `json:"agentId"`
	CallID      string      `json:"callId"`
	MediaFormat MediaFormat `json:"mediaFormat"`
}

// MediaPayload carries one base64-encoded audio chunk.
type MediaPayload struct {
	Payload string `json:"payload"`
}

// Envelope is the framed message, inbound and outbound.
type Envelope struct {
	Event    string        `json:"event"`
	StreamID string        `json:"streamId,omitempty"`
	Start    *StartPayload `json:"start,omitempty"`
	Media    *MediaPayload `json:"media,omitempty"`
}

// wireConfig maps a declared media format onto an engine audio config.
func wireConfig(format MediaFormat) (internal_audio.AudioConfig, error) {
	switch format.Encoding {
	case "mulaw":
		return internal_audio.NewMulaw8khzMonoAudioConfig(), nil
	case "linear16", "":
		cfg := internal_audio.NewLinear16khzMonoAudioConfig()
		if format.SampleRate > 0 {
			cfg.SampleRate = format.SampleRate
		}
		return cfg, nil
	default:
		return internal_audio.AudioConfig{}, fmt.Errorf("unsupported media encoding %q", format.Encoding)
	}
}
