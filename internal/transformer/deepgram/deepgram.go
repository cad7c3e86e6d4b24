// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_transformer_deepgram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"

	internal_transformer "github.com/aurix-ai/voice-gateway/internal/transformer"
	"github.com/aurix-ai/voice-gateway/pkg/commons"
)

const defaultBaseURL = "https://api.deepgram.com"

// deepgramSpeechToText transcribes buffered utterances through Deepgram's
// prerecorded listen endpoint. The engine batches one utterance per
// request, so the streaming websocket API is not needed here.
type deepgramSpeechToText struct {
	logger commons.Logger
	client *resty.Client
	model  string
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Option customizes the provider.
type Option func(*deepgramSpeechToText)

// WithBaseURL points the client at a different host, e.g. a proxy.
func WithBaseURL(url string) Option {
	return func(d *deepgramSpeechToText) { d.client.SetBaseURL(url) }
}

// WithModel overrides the default transcription model.
func WithModel(model string) Option {
	return func(d *deepgramSpeechToText) { d.model = model }
}

// NewDeepgramSpeechToText creates the Deepgram-backed transcriber.
func NewDeepgramSpeechToText(logger commons.Logger, apiKey string, opts ...Option) (internal_transformer.SpeechToText, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram-stt: api key is required")
	}
	client := resty.New().
		SetBaseURL(defaultBaseURL).
		SetHeader("Authorization", "Token "+apiKey).
		SetHeader("Content-Type", "audio/raw")
	d := &deepgramSpeechToText{
		logger: logger,
		client: client,
		model:  "nova-2",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Name implements internal_transformer.SpeechToText.
func (*deepgramSpeechToText) Name() string {
	return "deepgram-speech-to-text"
}

// Transcribe implements internal_transformer.SpeechToText. An empty
// transcript with a nil error means no speech was detected.
func (d *deepgramSpeechToText) Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	var result listenResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"model":        d.model,
			"encoding":     "linear16",
			"sample_rate":  strconv.Itoa(sampleRate),
			"channels":     "1",
			"smart_format": "true",
			"punctuate":    "true",
		}).
		SetBody(audio).
		SetResult(&result).
		Post("/v1/listen")
	if err != nil {
		return "", fmt.Errorf("%w: deepgram request: %v", internal_transformer.ErrTranscription, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: deepgram returned %d", internal_transformer.ErrTranscription, resp.StatusCode())
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	alt := result.Results.Channels[0].Alternatives[0]
	d.logger.Debugw("deepgram-stt: transcript received",
		"confidence", alt.Confidence, "bytes", len(audio))
	return alt.Transcript, nil
}
