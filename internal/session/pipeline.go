// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_session

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	internal_sentence_assembler "github.com/aurix-ai/voice-gateway/internal/assembler/text"
)

// ============================================================================
// TURN PIPELINE — transcription → generation → synthesis
// ============================================================================

// Per-stage timeouts. Every external call carries one; a timeout is a
// stage failure, recovered locally, never retried indefinitely.
const (
	transcribeTimeout = 10 * time.Second
	generateTimeout   = 15 * time.Second
	synthesizeTimeout = 10 * time.Second
)

// ApologyPhrase is the spoken fallback for unrecoverable mid-turn stage
// failures. It is pre-warmed into the shared cache at boot so the fallback
// path never depends on the synthesizer being healthy.
const ApologyPhrase = "sorry, could you repeat that?"

// cacheMaxWords is the short-phrase cutoff: only sentences at or below
// this word count are cached after synthesis.
const cacheMaxWords = 4

// runPipeline answers one buffered utterance. Stage failures are local to
// the turn: the session falls back to the cached apology or returns to
// LISTENING, and keeps taking frames either way.
func (s *CallSession) runPipeline(ctx context.Context, audio []byte, utteranceMs int, forced bool) {
	if ctx.Err() != nil {
		return
	}
	started := s.clock()

	transcript, err := s.transcribe(ctx, audio)
	if err != nil {
		s.logger.Warnw("transcription failed, speaking fallback",
			"callId", s.callID, "error", err)
		s.speakFallback(ctx)
		return
	}
	if transcript == "" {
		s.logger.Debugw("no speech in utterance, turn dropped",
			"callId", s.callID, "utteranceMs", utteranceMs, "forced", forced)
		s.transition(StateListening)
		return
	}

	s.appendTurn(SpeakerUser, transcript, utteranceMs)
	messages := s.conversationMessages()

	genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	reply, err := s.transformers.LanguageModel.Generate(
		genCtx, messages, s.profile.SystemPrompt, s.profile.MaxTokens)
	cancel()
	if err != nil {
		s.logger.Warnw("generation failed, speaking fallback",
			"callId", s.callID, "error", err)
		s.speakFallback(ctx)
		return
	}
	if reply == "" {
		s.transition(StateListening)
		return
	}

	s.logger.Debugw("turn generated",
		"callId", s.callID, "transcript", transcript,
		"latencyMs", s.clock().Sub(started).Milliseconds())
	s.speakReply(ctx, reply)
}

func (s *CallSession) transcribe(ctx context.Context, audio []byte) (string, error) {
	sttCtx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()
	return s.transformers.SpeechToText.Transcribe(sttCtx, audio, s.pcmCfg.SampleRate)
}

// speakReply segments reply text and streams it sentence by sentence.
// On full completion the AI turn is appended and the session returns to
// LISTENING; on barge-in the remaining sentences are discarded and the
// barge-in handler has already moved the state.
func (s *CallSession) speakReply(ctx context.Context, reply string) {
	sentences := internal_sentence_assembler.Segment(reply)
	if len(sentences) == 0 {
		s.transition(StateListening)
		return
	}

	spoken, sentMs, err := s.streamSentences(ctx, sentences)
	if err != nil && len(spoken) == 0 {
		s.logger.Warnw("synthesis failed before first sentence, speaking fallback",
			"callId", s.callID, "error", err)
		s.speakFallback(ctx)
		return
	}
	if err != nil {
		s.logger.Warnw("synthesis failed mid-reply, turn truncated",
			"callId", s.callID, "error", err, "sentSentences", len(spoken))
	}

	if len(spoken) > 0 {
		s.appendTurn(SpeakerAI, strings.Join(spoken, " "), sentMs)
	}
	s.finishAISpeech(len(spoken) > 0)
}

// streamSentences synthesizes and sends sentences with one-ahead
// pipelining: sentence n+1 synthesizes while sentence n streams. The
// interruption flag is checked before every synthesis and before every
// send; once set, remaining work is discarded.
func (s *CallSession) streamSentences(ctx context.Context, sentences []string) ([]string, int, error) {
	type sentenceAudio struct {
		text  string
		audio []byte
	}

	var (
		spoken []string
		sentMs int
	)
	results := make(chan sentenceAudio, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(results)
		for _, sentence := range sentences {
			if s.interrupted.Load() {
				return nil
			}
			audio, err := s.sentenceAudio(gctx, sentence)
			if err != nil {
				return err
			}
			select {
			case results <- sentenceAudio{text: sentence, audio: audio}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for item := range results {
			if s.interrupted.Load() {
				continue // drain; an abandoned sentence is discarded, not sent
			}
			if len(spoken) == 0 {
				s.beginAISpeech()
			}
			if err := s.outbound.SendAudio(item.audio); err != nil {
				s.logger.Errorw("outbound send failed",
					"callId", s.callID, "error", err)
				return err
			}
			spoken = append(spoken, item.text)
			sentMs += s.outboundPCMConfig().DurationMs(len(item.audio))
		}
		return nil
	})

	err := g.Wait()
	return spoken, sentMs, err
}

// sentenceAudio resolves one sentence to audio: cache hit first, then
// synthesis. Short phrases are cached after a successful synthesis so the
// next session says them for free.
func (s *CallSession) sentenceAudio(ctx context.Context, sentence string) ([]byte, error) {
	if audio, ok := s.cache.Get(sentence); ok {
		s.logger.Debugw("cache hit", "callId", s.callID, "sentence", sentence)
		return audio, nil
	}
	ttsCtx, cancel := context.WithTimeout(ctx, synthesizeTimeout)
	defer cancel()
	audio, err := s.transformers.TextToSpeech.Synthesize(ttsCtx, sentence, s.profile.VoiceID)
	if err != nil {
		return nil, err
	}
	if internal_sentence_assembler.WordCount(sentence) <= cacheMaxWords {
		s.cache.Put(sentence, audio)
	}
	return audio, nil
}

// speakFallback plays the cached apology so a stage failure never leaves
// the caller with dead air.
func (s *CallSession) speakFallback(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	audio, ok := s.cache.Get(ApologyPhrase)
	if !ok {
		var err error
		audio, err = s.sentenceAudio(ctx, ApologyPhrase)
		if err != nil {
			s.logger.Errorw("apology fallback unavailable",
				"callId", s.callID, "error", err)
			s.transition(StateListening)
			return
		}
	}
	s.beginAISpeech()
	if err := s.outbound.SendAudio(audio); err != nil {
		s.logger.Errorw("outbound send failed for fallback",
			"callId", s.callID, "error", err)
		s.finishAISpeech(false)
		return
	}
	s.appendTurn(SpeakerAI, ApologyPhrase, s.outboundPCMConfig().DurationMs(len(audio)))
	s.finishAISpeech(true)
}

// beginAISpeech runs right before the first outbound chunk of a turn. It
// raises the AI-speech edge flag — the ingest goroutine arms the
// echo-ignore window and the interruption monitor when it consumes the
// next frame, so playback bleeding back down the line is not mistaken
// for the user.
func (s *CallSession) beginAISpeech() {
	s.aiSpeechNotify.Store(true)
	s.transition(StateAISpeaking)
}

// finishAISpeech runs once playback of the turn has drained. If the turn
// was barged in on, the barge-in handler already moved the session to
// USER_SPEAKING and the state is left alone. The edge flag is raised
// again so the echo window re-arms for the trailing echo of the reply.
func (s *CallSession) finishAISpeech(spoke bool) {
	if s.interrupted.Load() {
		return
	}
	if spoke {
		s.aiSpeechNotify.Store(true)
	}
	s.transition(StateListening)
}
