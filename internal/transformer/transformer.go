// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_transformer

import (
	"context"
	"errors"
)

// The engine consumes the three pipeline capabilities behind these
// interfaces; the concrete providers live in subpackages. All calls are
// synchronous and carry the caller's context, which always has a
// deadline — a hung provider must surface as a stage error, never stall
// the session.

// Stage errors. Providers wrap their failures with the matching sentinel
// so the session can recover locally per stage without inspecting
// provider-specific error types.
var (
	// ErrTranscription covers speech-to-text timeouts and provider failures.
	ErrTranscription = errors.New("transcription failed")
	// ErrGeneration covers language-model timeouts and invalid responses.
	ErrGeneration = errors.New("generation failed")
	// ErrSynthesis covers text-to-speech timeouts and provider failures.
	ErrSynthesis = errors.New("synthesis failed")
)

// Conversation roles attached to Message entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of conversation context handed to the language
// model.
type Message struct {
	Role    string
	Content string
}

// SpeechToText converts one buffered utterance to text. An empty string
// with a nil error means the provider detected no speech; that is not a
// failure.
type SpeechToText interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error)
}

// LanguageModel produces the reply text for a transcript given the
// conversation history and the agent's system prompt.
type LanguageModel interface {
	Name() string
	Generate(ctx context.Context, messages []Message, systemPrompt string, maxTokens int) (string, error)
}

// TextToSpeech synthesizes one sentence into linear16 PCM bytes in the
// engine's internal format.
type TextToSpeech interface {
	Name() string
	Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error)
}
