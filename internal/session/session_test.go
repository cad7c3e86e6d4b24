// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_session

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_agentprofile "github.com/aurix-ai/voice-gateway/internal/agentprofile"
	internal_audio "github.com/aurix-ai/voice-gateway/internal/audio"
	internal_cache "github.com/aurix-ai/voice-gateway/internal/cache"
	internal_transformer "github.com/aurix-ai/voice-gateway/internal/transformer"
	"github.com/aurix-ai/voice-gateway/pkg/commons"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeSTT struct {
	mu         sync.Mutex
	calls      int
	transcript string
	err        error
}

func (f *fakeSTT) Name() string { return "fake-stt" }

func (f *fakeSTT) Transcribe(_ context.Context, _ []byte, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.transcript, f.err
}

func (f *fakeSTT) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLLM struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
}

func (f *fakeLLM) Name() string { return "fake-llm" }

func (f *fakeLLM) Generate(_ context.Context, _ []internal_transformer.Message, _ string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply, f.err
}

type fakeTTS struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func newFakeTTS() *fakeTTS {
	return &fakeTTS{calls: make(map[string]int)}
}

func (f *fakeTTS) Name() string { return "fake-tts" }

func (f *fakeTTS) Synthesize(_ context.Context, text string, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[text]++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("AUDIO:" + text), nil
}

func (f *fakeTTS) Calls(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

func (f *fakeTTS) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type fakeSink struct {
	mu        sync.Mutex
	sends     [][]byte
	clears    int
	sendDelay time.Duration
}

func (f *fakeSink) SendAudio(audio []byte) error {
	if f.sendDelay > 0 {
		time.Sleep(f.sendDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(audio))
	copy(buf, audio)
	f.sends = append(f.sends, buf)
	return nil
}

func (f *fakeSink) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeSink) Sends() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sends))
	copy(out, f.sends)
	return out
}

func (f *fakeSink) Clears() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

// ============================================================================
// FIXTURE
// ============================================================================

// Tight windows keep the tests fast: 5 frames to confirm speech start,
// 5 silence frames to end a clean-line utterance, 3 to confirm barge-in.
func testVoiceSettings() internal_agentprofile.VoiceSettings {
	return internal_agentprofile.VoiceSettings{
		SpeechRatio:            2.5,
		MinSpeechEnergy:        350,
		SilenceEndCleanMs:      100,
		SilenceEndNoisyMs:      200,
		NoiseVarianceThreshold: 1e12,
		SpeechStartMs:          100,
		MinUtteranceMs:         40,
		MaxUtteranceMs:         2000,
		EchoIgnoreMs:           100,
		BargeInEnergyFactor:    2.0,
		BargeInConfirmMs:       60,
	}
}

type fixture struct {
	session *CallSession
	stt     *fakeSTT
	llm     *fakeLLM
	tts     *fakeTTS
	sink    *fakeSink
	cache   *internal_cache.ResponseCache
}

func newFixture(t *testing.T, mutate func(*internal_agentprofile.AgentProfile)) *fixture {
	t.Helper()
	profile := &internal_agentprofile.AgentProfile{
		AgentID:      "agent-1",
		SystemPrompt: "be brief",
		VoiceID:      "voice-1",
		MaxTokens:    100,
		Voice:        testVoiceSettings(),
	}
	if mutate != nil {
		mutate(profile)
	}
	f := &fixture{
		stt:   &fakeSTT{transcript: "yes"},
		llm:   &fakeLLM{reply: "okay."},
		tts:   newFakeTTS(),
		sink:  &fakeSink{},
		cache: internal_cache.NewResponseCache(16),
	}
	f.session = NewCallSession(
		commons.NewNopLogger(),
		"stream-1",
		profile,
		internal_audio.NewLinear16khzMonoAudioConfig(),
		Transformers{SpeechToText: f.stt, LanguageModel: f.llm, TextToSpeech: f.tts},
		f.cache,
		f.sink,
	)
	t.Cleanup(f.session.OnStreamClosed)
	return f
}

// pcmFrame builds one 20ms linear16 frame of constant amplitude. RMS of
// the frame equals the amplitude.
func pcmFrame(amplitude int16) []byte {
	const samples = 16000 / 1000 * internal_audio.FrameDurationMs
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(amplitude))
	}
	return buf
}

func feedFrames(t *testing.T, s *CallSession, frame []byte, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.OnAudioFrame(frame))
	}
}

// speakUtterance drives one full utterance through the VAD: enough speech
// to confirm speech_start, then enough silence to fire speech_end.
func speakUtterance(t *testing.T, s *CallSession) {
	t.Helper()
	feedFrames(t, s, pcmFrame(4000), 10)
	feedFrames(t, s, pcmFrame(0), 5)
}

func waitListening(t *testing.T, s *CallSession, wantTurns int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.State() == StateListening && len(s.History()) == wantTurns
	}, 2*time.Second, 2*time.Millisecond)
}

// ============================================================================
// TURN FLOW
// ============================================================================

func TestSession_FullTurn_CachedReply(t *testing.T) {
	f := newFixture(t, nil)
	cached := []byte("CACHED-OKAY")
	f.cache.Put("okay.", cached)

	speakUtterance(t, f.session)
	waitListening(t, f.session, 2)

	// Exactly one transcription, zero synthesis calls, cached bytes out.
	assert.Equal(t, 1, f.stt.Calls())
	assert.Equal(t, 0, f.tts.TotalCalls())
	sends := f.sink.Sends()
	require.Len(t, sends, 1)
	assert.Equal(t, cached, sends[0])

	history := f.session.History()
	require.Len(t, history, 2)
	assert.Equal(t, SpeakerUser, history[0].Speaker)
	assert.Equal(t, "yes", history[0].Text)
	assert.Equal(t, SpeakerAI, history[1].Speaker)
	assert.Equal(t, "okay.", history[1].Text)
}

func TestSession_SpeechStartTransitions(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, StateListening, f.session.State())

	feedFrames(t, f.session, pcmFrame(4000), 4)
	assert.Equal(t, StateListening, f.session.State())

	feedFrames(t, f.session, pcmFrame(4000), 1)
	assert.Equal(t, StateUserSpeaking, f.session.State())
}

func TestSession_ShortBlipDiscarded(t *testing.T) {
	f := newFixture(t, func(p *internal_agentprofile.AgentProfile) {
		p.Voice.MinUtteranceMs = 10000
	})

	speakUtterance(t, f.session)

	assert.Equal(t, StateListening, f.session.State())
	assert.Equal(t, 0, f.stt.Calls())
	assert.Empty(t, f.session.History())
}

func TestSession_SynthesizedOnceThenCached(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.reply = "got it."

	speakUtterance(t, f.session)
	waitListening(t, f.session, 2)
	require.Equal(t, 1, f.tts.Calls("got it."))

	speakUtterance(t, f.session)
	waitListening(t, f.session, 4)

	// Second reply is a cache hit: synthesizer still invoked exactly once,
	// outbound bytes identical.
	assert.Equal(t, 1, f.tts.Calls("got it."))
	sends := f.sink.Sends()
	require.Len(t, sends, 2)
	assert.Equal(t, sends[0], sends[1])
}

func TestSession_EmptyTranscription_NoAITurn(t *testing.T) {
	f := newFixture(t, nil)
	f.stt.transcript = ""

	speakUtterance(t, f.session)
	require.Eventually(t, func() bool { return f.stt.Calls() == 1 }, 2*time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool { return f.session.State() == StateListening }, 2*time.Second, 2*time.Millisecond)

	assert.Empty(t, f.session.History())
	assert.Empty(t, f.sink.Sends())
}

// ============================================================================
// FORCED PROCESSING (speaking ceiling)
// ============================================================================

func TestSession_SpeakingCeilingForcesPipeline(t *testing.T) {
	f := newFixture(t, func(p *internal_agentprofile.AgentProfile) {
		p.Voice.MaxUtteranceMs = 400
	})
	f.stt.transcript = "a long monologue"
	f.llm.reply = ""

	// Continuous speech, no silence: the ceiling (20 frames) forces the run.
	feedFrames(t, f.session, pcmFrame(4000), 20)

	require.Eventually(t, func() bool { return f.stt.Calls() == 1 }, 2*time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(f.session.History()) == 1
	}, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, "a long monologue", f.session.History()[0].Text)
}

// ============================================================================
// FALLBACK
// ============================================================================

func TestSession_GenerationFailure_SpeaksCachedApology(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.err = internal_transformer.ErrGeneration
	apology := []byte("APOLOGY-AUDIO")
	f.cache.Put(ApologyPhrase, apology)

	speakUtterance(t, f.session)
	waitListening(t, f.session, 2)

	sends := f.sink.Sends()
	require.Len(t, sends, 1)
	assert.Equal(t, apology, sends[0])
	history := f.session.History()
	assert.Equal(t, ApologyPhrase, history[1].Text)
	assert.Equal(t, SpeakerAI, history[1].Speaker)
	assert.Equal(t, 0, f.tts.TotalCalls())
}

// ============================================================================
// BARGE-IN
// ============================================================================

func TestSession_BargeInSuppressesRemainingSentences(t *testing.T) {
	f := newFixture(t, func(p *internal_agentprofile.AgentProfile) {
		p.Greeting = "hello there. i can help with scheduling today."
	})
	f.sink.sendDelay = 150 * time.Millisecond

	f.session.Start()
	require.Eventually(t, func() bool {
		return f.session.State() == StateAISpeaking
	}, 2*time.Second, time.Millisecond)

	// Loud sustained speech over the AI: confirmed after 3 frames.
	loud := pcmFrame(8000)
	require.Eventually(t, func() bool {
		require.NoError(t, f.session.OnAudioFrame(loud))
		return f.session.Interrupted()
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, StateUserSpeaking, f.session.State())
	require.Eventually(t, func() bool { return f.sink.Clears() == 1 }, 2*time.Second, 2*time.Millisecond)

	// The second sentence is discarded, never sent.
	time.Sleep(400 * time.Millisecond)
	assert.LessOrEqual(t, len(f.sink.Sends()), 1)
}

func TestSession_GreetingSpokenOnStart(t *testing.T) {
	f := newFixture(t, func(p *internal_agentprofile.AgentProfile) {
		p.Greeting = "hello there."
	})
	f.session.Start()

	waitListening(t, f.session, 1)
	history := f.session.History()
	assert.Equal(t, SpeakerAI, history[0].Speaker)
	assert.Equal(t, "hello there.", history[0].Text)
	require.Len(t, f.sink.Sends(), 1)
	assert.Equal(t, []byte("AUDIO:hello there."), f.sink.Sends()[0])
}

// ============================================================================
// LIFECYCLE
// ============================================================================

func TestSession_DuplicateCloseFiresCallEndedOnce(t *testing.T) {
	var ended atomic.Int32
	var summary CallSummary
	f := newFixture(t, nil)
	// Re-wire the hook through an option on a fresh session.
	profile := &internal_agentprofile.AgentProfile{AgentID: "agent-1", Voice: testVoiceSettings()}
	s := NewCallSession(commons.NewNopLogger(), "stream-close", profile,
		internal_audio.NewLinear16khzMonoAudioConfig(),
		Transformers{SpeechToText: f.stt, LanguageModel: f.llm, TextToSpeech: f.tts},
		f.cache, f.sink,
		WithCallEnded(func(cs CallSummary) {
			ended.Add(1)
			summary = cs
		}),
	)
	s.Start()

	s.OnStreamClosed()
	s.OnStreamClosed()

	assert.Equal(t, int32(1), ended.Load())
	assert.Equal(t, "stream-close", summary.CallID)
	assert.Equal(t, "stream_closed", summary.EndReason)
}

func TestSession_TurnCompletedHookReceivesTurns(t *testing.T) {
	var mu sync.Mutex
	var turns []Turn
	profile := &internal_agentprofile.AgentProfile{
		AgentID: "agent-1", VoiceID: "v", Voice: testVoiceSettings(),
	}
	stt := &fakeSTT{transcript: "yes"}
	llm := &fakeLLM{reply: "okay."}
	tts := newFakeTTS()
	sink := &fakeSink{}
	s := NewCallSession(commons.NewNopLogger(), "stream-hook", profile,
		internal_audio.NewLinear16khzMonoAudioConfig(),
		Transformers{SpeechToText: stt, LanguageModel: llm, TextToSpeech: tts},
		internal_cache.NewResponseCache(16), sink,
		WithTurnCompleted(func(turn Turn) {
			mu.Lock()
			turns = append(turns, turn)
			mu.Unlock()
		}),
	)
	t.Cleanup(s.OnStreamClosed)

	speakUtterance(t, s)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(turns) == 2
	}, 2*time.Second, 2*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, SpeakerUser, turns[0].Speaker)
	assert.Equal(t, SpeakerAI, turns[1].Speaker)
}

// A dedicated feeder goroutine keeps frames flowing while replies
// complete on the pipeline goroutines, exercising the ingest/pipeline
// boundary: detector and monitor arming must stay on the ingest side.
// Run with the race detector.
func TestSession_ContinuousIngestAcrossTurns(t *testing.T) {
	f := newFixture(t, nil)
	stop := make(chan struct{})
	var feeder sync.WaitGroup
	feeder.Add(1)
	go func() {
		defer feeder.Done()
		speech := pcmFrame(4000)
		silence := pcmFrame(0)
		for {
			select {
			case <-stop:
				return
			default:
			}
			for i := 0; i < 10; i++ {
				_ = f.session.OnAudioFrame(speech)
			}
			for i := 0; i < 8; i++ {
				_ = f.session.OnAudioFrame(silence)
			}
			time.Sleep(time.Millisecond)
		}
	}()

	require.Eventually(t, func() bool {
		return len(f.session.History()) >= 6
	}, 5*time.Second, 5*time.Millisecond)
	close(stop)
	feeder.Wait()
}

func TestSession_MalformedFrameReportsProtocolError(t *testing.T) {
	profile := &internal_agentprofile.AgentProfile{AgentID: "a", Voice: testVoiceSettings()}
	s := NewCallSession(commons.NewNopLogger(), "stream-bad", profile,
		internal_audio.AudioConfig{SampleRate: 8000, Format: "opus", Channels: 1},
		Transformers{SpeechToText: &fakeSTT{}, LanguageModel: &fakeLLM{}, TextToSpeech: newFakeTTS()},
		internal_cache.NewResponseCache(4), &fakeSink{})
	t.Cleanup(s.OnStreamClosed)

	err := s.OnAudioFrame([]byte{1, 2, 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, StateListening, s.State())
}
