// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package channel_websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_audio "github.com/aurix-ai/voice-gateway/internal/audio"
	internal_session "github.com/aurix-ai/voice-gateway/internal/session"
	"github.com/aurix-ai/voice-gateway/pkg/commons"
)

// newTestStreamer dials a discard-everything websocket server and wraps
// the client side of the connection, so output pacing can be observed
// without a session attached.
func newTestStreamer(t *testing.T) *streamer {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	s := newStreamer(commons.NewNopLogger(), conn)
	s.bind("stream-test", internal_audio.NewLinear16khzMonoAudioConfig(), nil)
	t.Cleanup(func() {
		s.teardown(internal_session.NewRegistry(commons.NewNopLogger()))
	})
	return s
}

func TestStreamer_SendAudioDrainsAtFrameRate(t *testing.T) {
	s := newTestStreamer(t)
	cfg := internal_audio.NewLinear16khzMonoAudioConfig()

	// Five 20ms frames: SendAudio must not return before the paced writer
	// has spent roughly that long draining them.
	audio := make([]byte, 5*cfg.FrameBytes())
	started := time.Now()
	require.NoError(t, s.SendAudio(audio))
	assert.GreaterOrEqual(t, time.Since(started), 60*time.Millisecond)
}

func TestStreamer_ClearUnblocksInFlightSend(t *testing.T) {
	s := newTestStreamer(t)
	cfg := internal_audio.NewLinear16khzMonoAudioConfig()

	// Four seconds of audio; without the flush this send would pace for
	// the full duration.
	audio := make([]byte, 200*cfg.FrameBytes())
	result := make(chan error, 1)
	go func() { result <- s.SendAudio(audio) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Clear())

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("send did not unblock after clear")
	}
}

func TestStreamer_TeardownUnblocksInFlightSend(t *testing.T) {
	s := newTestStreamer(t)
	cfg := internal_audio.NewLinear16khzMonoAudioConfig()

	audio := make([]byte, 200*cfg.FrameBytes())
	result := make(chan error, 1)
	go func() { result <- s.SendAudio(audio) }()

	time.Sleep(50 * time.Millisecond)
	s.teardown(internal_session.NewRegistry(commons.NewNopLogger()))

	select {
	case err := <-result:
		assert.ErrorIs(t, err, internal_session.ErrTransport)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("send did not unblock after teardown")
	}
}
