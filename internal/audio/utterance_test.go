// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_audio

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUtteranceBuffer_AppendAndDuration(t *testing.T) {
	u := NewUtteranceBuffer(NewLinear16khzMonoAudioConfig())
	assert.Equal(t, 0, u.DurationMs())

	u.Append(make([]byte, 640))
	u.Append(make([]byte, 640))
	assert.Equal(t, 1280, u.Len())
	assert.Equal(t, 40, u.DurationMs())
}

func TestUtteranceBuffer_SnapshotTakesAndClears(t *testing.T) {
	u := NewUtteranceBuffer(NewLinear16khzMonoAudioConfig())
	u.Append([]byte{1, 2, 3, 4})

	snap := u.Snapshot()
	assert.Equal(t, []byte{1, 2, 3, 4}, snap)
	assert.Equal(t, 0, u.Len())

	// Appends after the snapshot never mutate the returned slice.
	u.Append([]byte{9, 9, 9, 9})
	assert.Equal(t, []byte{1, 2, 3, 4}, snap)
}

func TestUtteranceBuffer_EmptySnapshotIsNil(t *testing.T) {
	u := NewUtteranceBuffer(NewLinear16khzMonoAudioConfig())
	assert.Nil(t, u.Snapshot())
}

func TestUtteranceBuffer_Reset(t *testing.T) {
	u := NewUtteranceBuffer(NewLinear16khzMonoAudioConfig())
	u.Append(make([]byte, 640))
	u.Reset()
	assert.Equal(t, 0, u.Len())
}

func TestUtteranceBuffer_ConcurrentAppendAndSnapshot(t *testing.T) {
	u := NewUtteranceBuffer(NewLinear16khzMonoAudioConfig())
	var wg sync.WaitGroup
	total := 0
	var mu sync.Mutex

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			u.Append(make([]byte, 64))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			snap := u.Snapshot()
			mu.Lock()
			total += len(snap)
			mu.Unlock()
		}
	}()
	wg.Wait()

	total += u.Len()
	require.Equal(t, 500*64, total, "no byte lost or duplicated across snapshots")
}
