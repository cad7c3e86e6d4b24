// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_transformer_elevenlabs

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	internal_transformer "github.com/aurix-ai/voice-gateway/internal/transformer"
	"github.com/aurix-ai/voice-gateway/pkg/commons"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// elevenLabsTextToSpeech synthesizes sentences through the ElevenLabs
// REST endpoint, requesting raw PCM at the engine's internal sample rate
// so no resampling is needed on the outbound path.
type elevenLabsTextToSpeech struct {
	logger  commons.Logger
	client  *resty.Client
	modelID string
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Option customizes the provider.
type Option func(*elevenLabsTextToSpeech)

// WithBaseURL points the client at a different host, e.g. a proxy.
func WithBaseURL(url string) Option {
	return func(e *elevenLabsTextToSpeech) { e.client.SetBaseURL(url) }
}

// WithModelID overrides the default synthesis model.
func WithModelID(modelID string) Option {
	return func(e *elevenLabsTextToSpeech) { e.modelID = modelID }
}

// NewElevenLabsTextToSpeech creates the ElevenLabs-backed synthesizer.
func NewElevenLabsTextToSpeech(logger commons.Logger, apiKey string, opts ...Option) (internal_transformer.TextToSpeech, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("elevenlabs-tts: api key is required")
	}
	client := resty.New().
		SetBaseURL(defaultBaseURL).
		SetHeader("xi-api-key", apiKey).
		SetHeader("Content-Type", "application/json")
	e := &elevenLabsTextToSpeech{
		logger:  logger,
		client:  client,
		modelID: "eleven_turbo_v2",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Name implements internal_transformer.TextToSpeech.
func (*elevenLabsTextToSpeech) Name() string {
	return "elevenlabs-text-to-speech"
}

// Synthesize implements internal_transformer.TextToSpeech.
func (e *elevenLabsTextToSpeech) Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetPathParam("voiceId", voiceID).
		SetQueryParam("output_format", "pcm_16000").
		SetBody(synthesizeRequest{Text: text, ModelID: e.modelID}).
		Post("/v1/text-to-speech/{voiceId}")
	if err != nil {
		return nil, fmt.Errorf("%w: elevenlabs request: %v", internal_transformer.ErrSynthesis, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: elevenlabs returned %d", internal_transformer.ErrSynthesis, resp.StatusCode())
	}

	audio := resp.Body()
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: elevenlabs returned empty audio", internal_transformer.ErrSynthesis)
	}
	e.logger.Debugw("elevenlabs-tts: sentence synthesized",
		"chars", len(text), "bytes", len(audio))
	return audio, nil
}
