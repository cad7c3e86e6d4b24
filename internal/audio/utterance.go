// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_audio

import (
	"bytes"
	"sync"
)

// UtteranceBuffer accumulates the PCM of the utterance currently being
// spoken. It is owned by exactly one session; the lock exists because the
// ingest path appends while the pipeline snapshots from its own goroutine.
type UtteranceBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
	cfg AudioConfig
}

// NewUtteranceBuffer creates a buffer pre-allocated for a few seconds of
// audio in the given config so steady-state appends never re-grow it.
func NewUtteranceBuffer(cfg AudioConfig) *UtteranceBuffer {
	capacity := BytesPerMs(cfg) * 4000
	if capacity <= 0 {
		capacity = 64 * 1024
	}
	b := &UtteranceBuffer{cfg: cfg}
	b.buf = bytes.NewBuffer(make([]byte, 0, capacity))
	return b
}

// Append adds decoded PCM to the active utterance.
func (u *UtteranceBuffer) Append(pcm []byte) {
	u.mu.Lock()
	u.buf.Write(pcm)
	u.mu.Unlock()
}

// Len returns the buffered byte count.
func (u *UtteranceBuffer) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.buf.Len()
}

// DurationMs returns the buffered audio duration.
func (u *UtteranceBuffer) DurationMs() int {
	return u.cfg.DurationMs(u.Len())
}

// Snapshot atomically takes the buffered audio and resets the buffer by
// swapping in a fresh pre-allocated one, so the returned slice is never
// mutated by subsequent appends.
func (u *UtteranceBuffer) Snapshot() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.buf.Len() == 0 {
		return nil
	}
	data := u.buf.Bytes()
	out := make([]byte, len(data))
	copy(out, data)
	u.buf.Reset()
	return out
}

// Reset discards any buffered audio.
func (u *UtteranceBuffer) Reset() {
	u.mu.Lock()
	u.buf.Reset()
	u.mu.Unlock()
}
