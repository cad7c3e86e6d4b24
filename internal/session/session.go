// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	internal_agentprofile "github.com/aurix-ai/voice-gateway/internal/agentprofile"
	internal_audio "github.com/aurix-ai/voice-gateway/internal/audio"
	internal_cache "github.com/aurix-ai/voice-gateway/internal/cache"
	internal_transformer "github.com/aurix-ai/voice-gateway/internal/transformer"
	internal_vad "github.com/aurix-ai/voice-gateway/internal/vad"
	"github.com/aurix-ai/voice-gateway/pkg/commons"
	"github.com/aurix-ai/voice-gateway/pkg/utils"
)

// ============================================================================
// CallSession — per-call orchestrating state machine
// ============================================================================

// OutboundSink is the outbound half of the media stream. SendAudio carries
// linear16 PCM at the engine rate; Clear tells the far end to drop any
// buffered playback immediately (barge-in flush).
type OutboundSink interface {
	SendAudio(audio []byte) error
	Clear() error
}

// Transformers bundles the three external capabilities a session
// orchestrates per turn.
type Transformers struct {
	SpeechToText  internal_transformer.SpeechToText
	LanguageModel internal_transformer.LanguageModel
	TextToSpeech  internal_transformer.TextToSpeech
}

// TurnCompletedFunc receives each finalized Turn for persistence.
// Invoked asynchronously; it must not assume the session is still live.
type TurnCompletedFunc func(turn Turn)

// CallEndedFunc receives the call summary exactly once, on teardown.
type CallEndedFunc func(summary CallSummary)

// preRollCapMs bounds how much idle audio the utterance buffer may hold
// while LISTENING. Audio inside the start-confirmation window survives the
// cap so the head of an utterance is never clipped.
const preRollCapMs = 1000

// CallSession owns one live call: its audio buffers, VAD run-state,
// conversation history and pipeline. All mutable state is session-local;
// the only shared structures are the injected ResponseCache and the
// registry holding the session.
//
// OnAudioFrame is driven by the single connection goroutine. The pipeline
// runs on its own goroutine and never blocks ingestion.
type CallSession struct {
	logger  commons.Logger
	callID  string
	profile *internal_agentprofile.AgentProfile

	ctx    context.Context
	cancel context.CancelFunc
	clock  func() time.Time

	wireCfg internal_audio.AudioConfig
	pcmCfg  internal_audio.AudioConfig

	transformers Transformers
	cache        *internal_cache.ResponseCache
	outbound     OutboundSink

	buffer   *internal_audio.UtteranceBuffer
	detector *internal_vad.Detector
	monitor  *InterruptionMonitor

	// interrupted is the cooperative cancellation flag polled by the
	// streaming loop at sentence boundaries. Cleared only after the
	// abandoned pipeline run has fully unwound.
	interrupted atomic.Bool

	// aiSpeechNotify signals an AI-speech edge (playback started or
	// ended) from the pipeline goroutine. The ingest goroutine consumes
	// it before dispatching the next frame; the detector and monitor are
	// only ever touched on the ingest goroutine.
	aiSpeechNotify atomic.Bool

	// pipelineMu serializes pipeline runs: one utterance's pipeline
	// completes or is abandoned before the next may start.
	pipelineMu      sync.Mutex
	pipelinePending atomic.Int32

	mu             sync.Mutex
	state          State
	history        []Turn
	closed         bool
	startedAt      time.Time
	utteranceStart time.Time

	// turnCh feeds finalized turns to the persistence hook through a
	// single drain goroutine, preserving chronological order without the
	// pipeline ever blocking on the collaborator.
	turnCh chan Turn

	onTurnCompleted TurnCompletedFunc
	onCallEnded     CallEndedFunc
}

// Option customizes a CallSession.
type Option func(*CallSession)

// WithClock injects a deterministic time source.
func WithClock(clock func() time.Time) Option {
	return func(s *CallSession) { s.clock = clock }
}

// WithTurnCompleted registers the persistence hand-off hook.
func WithTurnCompleted(fn TurnCompletedFunc) Option {
	return func(s *CallSession) { s.onTurnCompleted = fn }
}

// WithCallEnded registers the teardown hook.
func WithCallEnded(fn CallEndedFunc) Option {
	return func(s *CallSession) { s.onCallEnded = fn }
}

// NewCallSession wires a session for one call. The profile is resolved by
// the caller before the first media frame and is immutable for the call.
func NewCallSession(
	logger commons.Logger,
	callID string,
	profile *internal_agentprofile.AgentProfile,
	wireCfg internal_audio.AudioConfig,
	transformers Transformers,
	cache *internal_cache.ResponseCache,
	outbound OutboundSink,
	opts ...Option,
) *CallSession {
	ctx, cancel := context.WithCancel(context.Background())
	pcmCfg := internal_audio.AudioConfig{
		SampleRate: wireCfg.SampleRate,
		Format:     internal_audio.FormatLinear16,
		Channels:   wireCfg.Channels,
	}
	s := &CallSession{
		logger:       logger,
		callID:       callID,
		profile:      profile,
		ctx:          ctx,
		cancel:       cancel,
		clock:        time.Now,
		wireCfg:      wireCfg,
		pcmCfg:       pcmCfg,
		transformers: transformers,
		cache:        cache,
		outbound:     outbound,
		buffer:       internal_audio.NewUtteranceBuffer(pcmCfg),
		detector:     internal_vad.NewDetector(profile.Voice),
		state:        StateListening,
	}
	s.monitor = NewInterruptionMonitor(logger, s.detector, profile.Voice, s.handleBargeIn)
	for _, opt := range opts {
		opt(s)
	}
	if s.onTurnCompleted != nil {
		s.turnCh = make(chan Turn, 32)
		go s.drainTurns()
	}
	return s
}

// drainTurns delivers finalized turns to the persistence hook in order.
// After teardown it flushes whatever is still queued, then exits.
func (s *CallSession) drainTurns() {
	for {
		select {
		case turn := <-s.turnCh:
			s.onTurnCompleted(turn)
		case <-s.ctx.Done():
			for {
				select {
				case turn := <-s.turnCh:
					s.onTurnCompleted(turn)
				default:
					return
				}
			}
		}
	}
}

// CallID returns the stream identifier this session is keyed by.
func (s *CallSession) CallID() string {
	return s.callID
}

// State returns the current conversation state.
func (s *CallSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation so far.
func (s *CallSession) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Interrupted reports whether the current AI turn has been barged in on.
func (s *CallSession) Interrupted() bool {
	return s.interrupted.Load()
}

// Start marks the session live and speaks the agent greeting, if any,
// through the normal synthesis/cache path.
func (s *CallSession) Start() {
	s.mu.Lock()
	s.startedAt = s.clock()
	s.mu.Unlock()
	s.logger.Infow("call session started",
		"callId", s.callID, "agentId", s.profile.AgentID)

	if s.profile.Greeting == "" {
		return
	}
	s.pipelinePending.Add(1)
	utils.Go(s.ctx, s.logger, func() {
		defer s.pipelinePending.Add(-1)
		s.pipelineMu.Lock()
		defer s.pipelineMu.Unlock()
		s.interrupted.Store(false)
		s.speakReply(s.ctx, s.profile.Greeting)
	})
}

// OnAudioFrame ingests one inbound media payload in the wire format.
// A malformed payload is reported as ErrProtocol; the caller drops the
// frame and the session continues.
func (s *CallSession) OnAudioFrame(payload []byte) error {
	s.mu.Lock()
	closed := s.closed
	state := s.state
	s.mu.Unlock()
	if closed {
		return nil
	}

	if s.aiSpeechNotify.Swap(false) {
		s.detector.NotifyAISpeech()
		s.monitor.Arm()
	}

	pcm, err := internal_audio.Decode(payload, s.wireCfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	samples := internal_audio.Samples(pcm)

	if state == StateAISpeaking {
		s.monitor.Feed(samples)
		return nil
	}
	s.ingestFrame(pcm, samples)
	return nil
}

// ingestFrame runs the normal turn-taking path: buffer the frame, tick
// the VAD, and react to boundary events.
func (s *CallSession) ingestFrame(pcm []byte, samples []int16) {
	// Idle pre-roll is capped so LISTENING through a long silence does
	// not grow the buffer without bound.
	if s.State() == StateListening && !s.detector.Speaking() &&
		s.detector.SpeechFraction() == 0 &&
		s.buffer.DurationMs() >= preRollCapMs {
		s.buffer.Reset()
	}
	s.buffer.Append(pcm)

	switch s.detector.ProcessFrame(samples) {
	case internal_vad.EventSpeechStart:
		s.onSpeechStart()
	case internal_vad.EventSpeechEnd:
		s.onSpeechEnd()
	default:
		s.checkSpeakingCeiling()
	}
}

func (s *CallSession) onSpeechStart() {
	s.mu.Lock()
	s.utteranceStart = s.clock()
	s.mu.Unlock()
	if s.transition(StateUserSpeaking) {
		s.logger.Debugw("speech started", "callId", s.callID)
	}
}

func (s *CallSession) onSpeechEnd() {
	if s.State() != StateUserSpeaking {
		return
	}
	durationMs := s.buffer.DurationMs()
	if durationMs < s.profile.Voice.MinUtteranceMs {
		s.logger.Debugw("utterance below minimum duration, discarded",
			"callId", s.callID, "durationMs", durationMs)
		s.buffer.Reset()
		s.detector.Reset()
		s.transition(StateListening)
		return
	}
	s.triggerPipeline(false)
}

// checkSpeakingCeiling forces the pipeline once buffered speech exceeds
// the hard ceiling, so an unbroken monologue is still answered.
func (s *CallSession) checkSpeakingCeiling() {
	if s.State() != StateUserSpeaking {
		return
	}
	if s.buffer.DurationMs() < s.profile.Voice.MaxUtteranceMs {
		return
	}
	if s.pipelinePending.Load() > 0 {
		return
	}
	s.logger.Warnw("speaking ceiling reached, forcing pipeline",
		"callId", s.callID, "ceilingMs", s.profile.Voice.MaxUtteranceMs)
	s.triggerPipeline(true)
}

// triggerPipeline snapshots the utterance synchronously on the ingest
// goroutine, then runs the pipeline on its own goroutine. Runs for the
// same session never overlap; a queued run waits for the previous one to
// complete or be abandoned.
func (s *CallSession) triggerPipeline(forced bool) {
	audio := s.buffer.Snapshot()
	s.detector.Reset()
	if len(audio) == 0 {
		s.transition(StateListening)
		return
	}
	utteranceMs := s.pcmCfg.DurationMs(len(audio))
	s.pipelinePending.Add(1)
	utils.Go(s.ctx, s.logger, func() {
		defer s.pipelinePending.Add(-1)
		s.pipelineMu.Lock()
		defer s.pipelineMu.Unlock()
		s.interrupted.Store(false)
		s.runPipeline(s.ctx, audio, utteranceMs, forced)
	})
}

// handleBargeIn is invoked by the interruption monitor on the ingest
// goroutine once genuine user speech is confirmed during AI playback.
func (s *CallSession) handleBargeIn() {
	s.interrupted.Store(true)
	if err := s.outbound.Clear(); err != nil {
		s.logger.Warnw("outbound clear failed on barge-in",
			"callId", s.callID, "error", err)
	}
	s.buffer.Reset()
	s.detector.Reset()
	s.mu.Lock()
	s.utteranceStart = s.clock()
	s.mu.Unlock()
	s.transition(StateUserSpeaking)
	s.logger.Infow("barge-in confirmed, AI playback abandoned", "callId", s.callID)
}

// OnStreamClosed tears the session down. Idempotent: a duplicate stop for
// an already-closed session is a no-op and the call-ended hook fires
// exactly once.
func (s *CallSession) OnStreamClosed() {
	s.closeWithReason("stream_closed")
}

// Fail tears the session down after an unrecoverable transport error.
func (s *CallSession) Fail(err error) {
	s.logger.Errorw("session terminated by transport failure",
		"callId", s.callID, "error", err)
	s.closeWithReason("transport_error")
}

func (s *CallSession) closeWithReason(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	summary := s.summaryLocked(reason)
	cb := s.onCallEnded
	s.mu.Unlock()

	s.interrupted.Store(true)
	s.cancel()
	s.logger.Infow("call session ended",
		"callId", s.callID, "reason", reason,
		"userTurns", summary.UserTurns, "aiTurns", summary.AITurns)
	if cb != nil {
		cb(summary)
	}
}

func (s *CallSession) summaryLocked(reason string) CallSummary {
	summary := CallSummary{
		CallID:    s.callID,
		AgentID:   s.profile.AgentID,
		StartedAt: s.startedAt,
		EndedAt:   s.clock(),
		EndReason: reason,
	}
	for _, turn := range s.history {
		if turn.Speaker == SpeakerUser {
			summary.UserTurns++
			summary.UserSpeechMs += turn.SpokenMs
		} else {
			summary.AITurns++
			summary.AISpeechMs += turn.SpokenMs
		}
	}
	return summary
}

// transition moves the state machine along a legal edge. Illegal edges
// are rejected and logged, never applied.
func (s *CallSession) transition(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == to {
		return true
	}
	if !canTransition(s.state, to) {
		s.logger.Warnw("illegal state transition rejected",
			"callId", s.callID, "from", s.state.String(), "to", to.String())
		return false
	}
	s.state = to
	return true
}

// appendTurn finalizes a turn into history and hands it off to the
// persistence hook asynchronously.
func (s *CallSession) appendTurn(speaker Speaker, text string, spokenMs int) Turn {
	turn := Turn{
		Speaker:   speaker,
		Text:      text,
		Timestamp: s.clock(),
		SpokenMs:  spokenMs,
	}
	s.mu.Lock()
	s.history = append(s.history, turn)
	s.mu.Unlock()
	if s.turnCh != nil {
		select {
		case s.turnCh <- turn:
		default:
			s.logger.Warnw("turn hand-off queue full, dropping turn",
				"callId", s.callID, "speaker", turn.Speaker)
		}
	}
	return turn
}

// outboundPCMConfig is the format synthesized audio arrives in before
// wire encoding: linear16 at the engine rate.
func (s *CallSession) outboundPCMConfig() internal_audio.AudioConfig {
	return internal_audio.NewLinear16khzMonoAudioConfig()
}

// conversationMessages renders history in language-model form.
func (s *CallSession) conversationMessages() []internal_transformer.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := make([]internal_transformer.Message, 0, len(s.history))
	for _, turn := range s.history {
		role := internal_transformer.RoleUser
		if turn.Speaker == SpeakerAI {
			role = internal_transformer.RoleAssistant
		}
		messages = append(messages, internal_transformer.Message{Role: role, Content: turn.Text})
	}
	return messages
}
