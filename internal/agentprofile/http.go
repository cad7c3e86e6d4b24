// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_agentprofile

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aurix-ai/voice-gateway/pkg/commons"
)

// httpProvider resolves profiles from the agent-configuration service.
// The engine consumes this once per call, so a plain request/response
// client without caching is enough here; callers hold the result for the
// call's lifetime.
type httpProvider struct {
	logger commons.Logger
	client *resty.Client
}

// NewHTTPProvider creates a Provider backed by the profile service at host.
func NewHTTPProvider(logger commons.Logger, host string) Provider {
	client := resty.New().
		SetBaseURL(host).
		SetTimeout(5 * time.Second).
		SetRetryCount(2)
	return &httpProvider{logger: logger, client: client}
}

func (p *httpProvider) Resolve(ctx context.Context, agentID string) (*AgentProfile, error) {
	var profile AgentProfile
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("agentId", agentID).
		SetResult(&profile).
		Get("/v1/agents/{agentId}/profile")
	if err != nil {
		return nil, fmt.Errorf("resolving agent profile %s: %w", agentID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("agent profile service returned %d for %s", resp.StatusCode(), agentID)
	}

	// Zero-valued tunables fall back to defaults so a sparse profile
	// document never disables the VAD.
	defaults := DefaultVoiceSettings()
	if profile.Voice.SpeechRatio == 0 {
		profile.Voice.SpeechRatio = defaults.SpeechRatio
	}
	if profile.Voice.MinSpeechEnergy == 0 {
		profile.Voice.MinSpeechEnergy = defaults.MinSpeechEnergy
	}
	if profile.Voice.SilenceEndCleanMs == 0 {
		profile.Voice.SilenceEndCleanMs = defaults.SilenceEndCleanMs
	}
	if profile.Voice.SilenceEndNoisyMs == 0 {
		profile.Voice.SilenceEndNoisyMs = defaults.SilenceEndNoisyMs
	}
	if profile.Voice.NoiseVarianceThreshold == 0 {
		profile.Voice.NoiseVarianceThreshold = defaults.NoiseVarianceThreshold
	}
	if profile.Voice.SpeechStartMs == 0 {
		profile.Voice.SpeechStartMs = defaults.SpeechStartMs
	}
	if profile.Voice.MinUtteranceMs == 0 {
		profile.Voice.MinUtteranceMs = defaults.MinUtteranceMs
	}
	if profile.Voice.MaxUtteranceMs == 0 {
		profile.Voice.MaxUtteranceMs = defaults.MaxUtteranceMs
	}
	if profile.Voice.EchoIgnoreMs == 0 {
		profile.Voice.EchoIgnoreMs = defaults.EchoIgnoreMs
	}
	if profile.Voice.BargeInEnergyFactor == 0 {
		profile.Voice.BargeInEnergyFactor = defaults.BargeInEnergyFactor
	}
	if profile.Voice.BargeInConfirmMs == 0 {
		profile.Voice.BargeInConfirmMs = defaults.BargeInConfirmMs
	}

	p.logger.Debugw("resolved agent profile",
		"agent", agentID, "voice", profile.VoiceID)
	return &profile, nil
}
