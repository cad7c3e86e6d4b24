// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/aurix-ai/voice-gateway/config"
	internal_agentprofile "github.com/aurix-ai/voice-gateway/internal/agentprofile"
	internal_cache "github.com/aurix-ai/voice-gateway/internal/cache"
	channel_websocket "github.com/aurix-ai/voice-gateway/internal/channel/websocket"
	internal_session "github.com/aurix-ai/voice-gateway/internal/session"
	internal_transformer "github.com/aurix-ai/voice-gateway/internal/transformer"
	internal_transformer_deepgram "github.com/aurix-ai/voice-gateway/internal/transformer/deepgram"
	internal_transformer_elevenlabs "github.com/aurix-ai/voice-gateway/internal/transformer/elevenlabs"
	internal_transformer_openai "github.com/aurix-ai/voice-gateway/internal/transformer/openai"
	"github.com/aurix-ai/voice-gateway/pkg/commons"
)

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("config init failed: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("config invalid: %v", err)
	}

	loggerOpts := []commons.LoggerOption{commons.WithLogLevel(cfg.LogLevel)}
	if cfg.LogFile != "" {
		loggerOpts = append(loggerOpts, commons.WithRotatingFile(cfg.LogFile))
	}
	logger, err := commons.NewApplicationLogger(loggerOpts...)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	logger.Infow("starting voice gateway",
		"name", cfg.Name, "version", cfg.Version, "port", cfg.Port)

	stt, err := internal_transformer_deepgram.NewDeepgramSpeechToText(logger, cfg.DeepgramApiKey)
	if err != nil {
		logger.Errorf("speech-to-text init failed: %v", err)
		os.Exit(1)
	}
	tts, err := internal_transformer_elevenlabs.NewElevenLabsTextToSpeech(logger, cfg.ElevenLabsApiKey)
	if err != nil {
		logger.Errorf("text-to-speech init failed: %v", err)
		os.Exit(1)
	}
	llm, err := internal_transformer_openai.NewOpenAILanguageModel(logger, cfg.OpenAIApiKey)
	if err != nil {
		logger.Errorf("language model init failed: %v", err)
		os.Exit(1)
	}
	transformers := internal_session.Transformers{
		SpeechToText:  stt,
		LanguageModel: llm,
		TextToSpeech:  tts,
	}

	cache := internal_cache.NewResponseCache(cfg.CacheCapacity)
	warmCache(logger, cfg, cache, tts)

	var profiles internal_agentprofile.Provider
	if cfg.ProfileHost != "" {
		profiles = internal_agentprofile.NewHTTPProvider(logger, cfg.ProfileHost)
	} else {
		fallback := &internal_agentprofile.AgentProfile{
			SystemPrompt: "You are a helpful voice assistant. Keep replies short and conversational.",
			VoiceID:      cfg.DefaultVoiceID,
			MaxTokens:    150,
			Voice:        internal_agentprofile.DefaultVoiceSettings(),
		}
		profiles = internal_agentprofile.NewStaticProvider(fallback)
		logger.Warn("no profile host configured, serving the static default agent profile")
	}

	registry := internal_session.NewRegistry(logger)
	gateway := channel_websocket.NewGateway(logger, registry, profiles, transformers, cache,
		channel_websocket.WithTurnCompleted(func(turn internal_session.Turn) {
			logger.Infow("turn completed",
				"speaker", turn.Speaker, "text", turn.Text, "spokenMs", turn.SpokenMs)
		}),
		channel_websocket.WithCallEnded(func(summary internal_session.CallSummary) {
			logger.Infow("call ended",
				"callId", summary.CallID, "reason", summary.EndReason,
				"userTurns", summary.UserTurns, "aiTurns", summary.AITurns,
				"durationMs", summary.EndedAt.Sub(summary.StartedAt).Milliseconds())
		}),
	)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	gateway.RegisterRoutes(engine)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server failed: %v", err)
			os.Exit(1)
		}
	}()
	logger.Infof("listening on %s", server.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	registry.CloseAll()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warnf("shutdown incomplete: %v", err)
	}
}

// warmCache pre-synthesizes the canonical short phrases, apology fallback
// included, so the first calls hit the cache and the failure path never
// depends on a live synthesizer.
func warmCache(logger commons.Logger, cfg *config.AppConfig, cache *internal_cache.ResponseCache, tts internal_transformer.TextToSpeech) {
	phrases := []string{internal_session.ApologyPhrase}
	for _, phrase := range strings.Split(cfg.WarmPhrases, ",") {
		if phrase = strings.TrimSpace(phrase); phrase != "" {
			phrases = append(phrases, phrase)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	warmed := 0
	for _, phrase := range phrases {
		audio, err := tts.Synthesize(ctx, phrase, cfg.DefaultVoiceID)
		if err != nil {
			logger.Warnw("cache warm-up synthesis failed", "phrase", phrase, "error", err)
			continue
		}
		cache.Put(phrase, audio)
		warmed++
	}
	logger.Infow("response cache warmed", "phrases", warmed, "capacity", cfg.CacheCapacity)
}
