// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_agentprofile "github.com/aurix-ai/voice-gateway/internal/agentprofile"
	internal_audio "github.com/aurix-ai/voice-gateway/internal/audio"
	internal_cache "github.com/aurix-ai/voice-gateway/internal/cache"
	"github.com/aurix-ai/voice-gateway/pkg/commons"
)

func newRegistrySession(id string) *CallSession {
	profile := &internal_agentprofile.AgentProfile{AgentID: "agent", Voice: testVoiceSettings()}
	return NewCallSession(commons.NewNopLogger(), id, profile,
		internal_audio.NewLinear16khzMonoAudioConfig(),
		Transformers{SpeechToText: &fakeSTT{}, LanguageModel: &fakeLLM{}, TextToSpeech: newFakeTTS()},
		internal_cache.NewResponseCache(4), &fakeSink{})
}

func TestRegistry_AddResolveRemove(t *testing.T) {
	r := NewRegistry(commons.NewNopLogger())
	s := newRegistrySession("stream-a")

	assert.Nil(t, r.Add("stream-a", s))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Resolve("stream-a")
	require.True(t, ok)
	assert.Same(t, s, got)

	assert.Same(t, s, r.Remove("stream-a"))
	assert.Equal(t, 0, r.Len())
	_, ok = r.Resolve("stream-a")
	assert.False(t, ok)
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := NewRegistry(commons.NewNopLogger())
	r.Add("stream-a", newRegistrySession("stream-a"))

	require.NotNil(t, r.Remove("stream-a"))
	assert.Nil(t, r.Remove("stream-a"))
	assert.Nil(t, r.Remove("never-existed"))
}

func TestRegistry_DuplicateStartReturnsReplacedSession(t *testing.T) {
	r := NewRegistry(commons.NewNopLogger())
	first := newRegistrySession("stream-a")
	second := newRegistrySession("stream-a")

	assert.Nil(t, r.Add("stream-a", first))
	assert.Same(t, first, r.Add("stream-a", second))
	assert.Equal(t, 1, r.Len())

	got, _ := r.Resolve("stream-a")
	assert.Same(t, second, got)
}

func TestRegistry_CloseAllEndsEverySession(t *testing.T) {
	r := NewRegistry(commons.NewNopLogger())
	ended := make(map[string]int)
	var mu sync.Mutex
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("stream-%d", i)
		profile := &internal_agentprofile.AgentProfile{AgentID: "agent", Voice: testVoiceSettings()}
		s := NewCallSession(commons.NewNopLogger(), id, profile,
			internal_audio.NewLinear16khzMonoAudioConfig(),
			Transformers{SpeechToText: &fakeSTT{}, LanguageModel: &fakeLLM{}, TextToSpeech: newFakeTTS()},
			internal_cache.NewResponseCache(4), &fakeSink{},
			WithCallEnded(func(summary CallSummary) {
				mu.Lock()
				ended[summary.CallID]++
				mu.Unlock()
			}))
		s.Start()
		r.Add(id, s)
	}

	r.CloseAll()

	assert.Equal(t, 0, r.Len())
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, ended, 3)
	for id, n := range ended {
		assert.Equal(t, 1, n, "session %s", id)
	}
}

func TestRegistry_ConcurrentAddRemove(t *testing.T) {
	r := NewRegistry(commons.NewNopLogger())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("stream-%d", i)
			r.Add(id, newRegistrySession(id))
			_, _ = r.Resolve(id)
			r.Remove(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}
