// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_transformer_openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	internal_transformer "github.com/aurix-ai/voice-gateway/internal/transformer"
	"github.com/aurix-ai/voice-gateway/pkg/commons"
)

// openAILanguageModel generates conversational replies through the
// OpenAI chat completions API. Replies are kept short by instruction
// and by the caller-supplied token ceiling, since every extra token
// is synthesis latency on the phone line.
type openAILanguageModel struct {
	logger commons.Logger
	client openai.Client
	model  openai.ChatModel
}

// NewOpenAILanguageModel creates the OpenAI-backed language model.
func NewOpenAILanguageModel(logger commons.Logger, apiKey string) (internal_transformer.LanguageModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai-llm: api key is required")
	}
	return &openAILanguageModel{
		logger: logger,
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModelGPT4oMini,
	}, nil
}

// Name implements internal_transformer.LanguageModel.
func (*openAILanguageModel) Name() string {
	return "openai-language-model"
}

// Generate implements internal_transformer.LanguageModel.
func (o *openAILanguageModel) Generate(ctx context.Context, messages []internal_transformer.Message,
	systemPrompt string, maxTokens int) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    o.model,
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	if systemPrompt != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(systemPrompt))
	}
	for _, message := range messages {
		switch message.Role {
		case internal_transformer.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(message.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(message.Content))
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: openai request: %v", internal_transformer.ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", internal_transformer.ErrGeneration)
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	o.logger.Debugw("openai-llm: reply generated",
		"model", o.model, "chars", len(reply))
	return reply, nil
}
