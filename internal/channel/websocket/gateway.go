// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package channel_websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	internal_agentprofile "github.com/aurix-ai/voice-gateway/internal/agentprofile"
	internal_cache "github.com/aurix-ai/voice-gateway/internal/cache"
	internal_session "github.com/aurix-ai/voice-gateway/internal/session"
	"github.com/aurix-ai/voice-gateway/pkg/commons"
)

const profileResolveTimeout = 5 * time.Second

// Gateway hosts the media-stream websocket endpoint. Each accepted
// connection becomes one call session: start creates and registers it,
// media feeds it, stop (or a transport failure) tears it down.
type Gateway struct {
	logger       commons.Logger
	registry     *internal_session.Registry
	profiles     internal_agentprofile.Provider
	transformers internal_session.Transformers
	cache        *internal_cache.ResponseCache

	onTurnCompleted internal_session.TurnCompletedFunc
	onCallEnded     internal_session.CallEndedFunc

	upgrader websocket.Upgrader
}

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

// WithTurnCompleted forwards finalized turns to the persistence collaborator.
func WithTurnCompleted(fn internal_session.TurnCompletedFunc) GatewayOption {
	return func(g *Gateway) { g.onTurnCompleted = fn }
}

// WithCallEnded forwards call summaries on teardown.
func WithCallEnded(fn internal_session.CallEndedFunc) GatewayOption {
	return func(g *Gateway) { g.onCallEnded = fn }
}

// NewGateway wires the websocket endpoint to the session machinery.
func NewGateway(
	logger commons.Logger,
	registry *internal_session.Registry,
	profiles internal_agentprofile.Provider,
	transformers internal_session.Transformers,
	cache *internal_cache.ResponseCache,
	opts ...GatewayOption,
) *Gateway {
	g := &Gateway{
		logger:       logger,
		registry:     registry,
		profiles:     profiles,
		transformers: transformers,
		cache:        cache,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Telephony collaborators connect server-to-server.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RegisterRoutes mounts the media stream and health endpoints.
func (g *Gateway) RegisterRoutes(router gin.IRouter) {
	router.GET("/v1/media-stream", g.handleMediaStream)
	router.GET("/health", g.handleHealth)
}

func (g *Gateway) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"liveSessions": g.registry.Len(),
	})
}

// handleMediaStream runs one connection's read loop. A malformed frame is
// dropped with a warning; a broken transport terminates the session.
func (g *Gateway) handleMediaStream(c *gin.Context) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	s := newStreamer(g.logger, conn)
	defer s.teardown(g.registry)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if session := s.boundSession(); session != nil && isUnexpectedClose(err) {
				session.Fail(err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.logger.Warnw("malformed frame dropped", "error", err)
			continue
		}

		switch env.Event {
		case EventStart:
			g.handleStart(s, env)
		case EventMedia:
			g.handleMedia(s, env)
		case EventStop:
			g.logger.Infow("stop event received", "streamId", env.StreamID)
			return
		default:
			g.logger.Warnw("unknown event dropped", "event", env.Event, "streamId", env.StreamID)
		}
	}
}

// handleStart resolves the agent profile, creates the call session and
// registers it under the stream id.
func (g *Gateway) handleStart(s *streamer, env Envelope) {
	if s.boundSession() != nil {
		g.logger.Warnw("duplicate start event dropped", "streamId", env.StreamID)
		return
	}
	if env.Start == nil {
		g.logger.Warnw("start event without payload dropped", "streamId", env.StreamID)
		return
	}
	streamID := env.StreamID
	if streamID == "" {
		streamID = uuid.NewString()
	}

	cfg, err := wireConfig(env.Start.MediaFormat)
	if err != nil {
		g.logger.Errorw("stream rejected", "streamId", streamID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), profileResolveTimeout)
	profile, err := g.profiles.Resolve(ctx, env.Start.AgentID)
	cancel()
	if err != nil {
		g.logger.Errorw("agent profile resolution failed",
			"streamId", streamID, "agentId", env.Start.AgentID, "error", err)
		return
	}

	opts := []internal_session.Option{}
	if g.onTurnCompleted != nil {
		opts = append(opts, internal_session.WithTurnCompleted(g.onTurnCompleted))
	}
	if g.onCallEnded != nil {
		opts = append(opts, internal_session.WithCallEnded(g.onCallEnded))
	}
	session := internal_session.NewCallSession(
		g.logger, streamID, profile, cfg, g.transformers, g.cache, s, opts...)

	if replaced := g.registry.Add(streamID, session); replaced != nil {
		replaced.OnStreamClosed()
	}
	s.bind(streamID, cfg, session)
	session.Start()
	g.logger.Infow("stream started",
		"streamId", streamID, "agentId", env.Start.AgentID,
		"encoding", cfg.Format, "sampleRate", cfg.SampleRate)
}

// handleMedia decodes one inbound audio payload and feeds the session.
func (g *Gateway) handleMedia(s *streamer, env Envelope) {
	session := s.boundSession()
	if session == nil {
		g.logger.Warnw("media before start dropped", "streamId", env.StreamID)
		return
	}
	if env.Media == nil || env.Media.Payload == "" {
		g.logger.Warnw("empty media frame dropped", "streamId", env.StreamID)
		return
	}
	payload, err := base64.StdEncoding.DecodeString(env.Media.Payload)
	if err != nil {
		g.logger.Warnw("undecodable media frame dropped",
			"streamId", env.StreamID, "error", err)
		return
	}
	if err := session.OnAudioFrame(payload); err != nil {
		if errors.Is(err, internal_session.ErrProtocol) {
			g.logger.Warnw("malformed audio frame dropped",
				"streamId", env.StreamID, "error", err)
			return
		}
		g.logger.Errorw("audio frame handling failed",
			"streamId", env.StreamID, "error", err)
	}
}

// isUnexpectedClose separates an orderly far-end close from a transport
// failure.
func isUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
