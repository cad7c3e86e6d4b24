// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package channel_websocket

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	internal_audio "github.com/aurix-ai/voice-gateway/internal/audio"
	internal_session "github.com/aurix-ai/voice-gateway/internal/session"
	"github.com/aurix-ai/voice-gateway/pkg/commons"
)

// outputQueueFrames bounds the outbound frame queue (~20s of audio).
const outputQueueFrames = 1024

// outFrame is one outbound queue entry: a wire frame, or a drain marker
// whose done channel closes once every frame enqueued before it has been
// written or flushed.
type outFrame struct {
	payload []byte
	done    chan struct{}
}

// streamer owns one websocket connection: the read loop feeds the session,
// the single paced writer drains the outbound queue at 20ms real time so
// synthesis bursts reach the far end as a steady stream. It implements
// internal_session.OutboundSink.
type streamer struct {
	logger commons.Logger
	conn   *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	streamID string
	wireCfg  internal_audio.AudioConfig
	session  *internal_session.CallSession

	// outCh: sentence audio chunked into wire frames, consumed by the
	// paced writer. flushAudioCh tells the writer to discard its pending
	// queue on interruption.
	outCh        chan outFrame
	flushAudioCh chan struct{}

	// writeMu serializes websocket writes; gorilla allows one writer.
	writeMu sync.Mutex
}

func newStreamer(logger commons.Logger, conn *websocket.Conn) *streamer {
	ctx, cancel := context.WithCancel(context.Background())
	return &streamer{
		logger:       logger,
		conn:         conn,
		ctx:          ctx,
		cancel:       cancel,
		outCh:        make(chan outFrame, outputQueueFrames),
		flushAudioCh: make(chan struct{}, 1),
	}
}

// bind attaches the started session and its wire format, then starts the
// paced output writer.
func (s *streamer) bind(streamID string, cfg internal_audio.AudioConfig, session *internal_session.CallSession) {
	s.mu.Lock()
	s.streamID = streamID
	s.wireCfg = cfg
	s.session = session
	s.mu.Unlock()
	go s.runOutputWriter()
}

func (s *streamer) boundSession() *internal_session.CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// ============================================================================
// OutboundSink
// ============================================================================

// SendAudio streams one sentence of linear16 16kHz PCM, converted to the
// stream's wire format and chunked into 20ms frames. It returns only once
// the paced writer has drained the frames (or a barge-in flush discarded
// them), so the session observes AI speech ending when playback ends, not
// when synthesis ends.
func (s *streamer) SendAudio(audio []byte) error {
	s.mu.Lock()
	closed := s.closed
	cfg := s.wireCfg
	s.mu.Unlock()
	if closed {
		return internal_session.ErrTransport
	}

	pcm := audio
	if cfg.SampleRate == 8000 {
		pcm = internal_audio.DownsampleHalf(pcm)
	}
	wire, err := internal_audio.EncodeOutbound(pcm, cfg)
	if err != nil {
		return err
	}

	frameBytes := cfg.FrameBytes()
	for off := 0; off < len(wire); off += frameBytes {
		end := off + frameBytes
		if end > len(wire) {
			end = len(wire)
		}
		select {
		case s.outCh <- outFrame{payload: wire[off:end]}:
		case <-s.ctx.Done():
			return internal_session.ErrTransport
		}
	}

	done := make(chan struct{})
	select {
	case s.outCh <- outFrame{done: done}:
	case <-s.ctx.Done():
		return internal_session.ErrTransport
	}
	select {
	case <-done:
		return nil
	case <-s.ctx.Done():
		return internal_session.ErrTransport
	}
}

// Clear flushes all queued playback and tells the far end to do the same.
// Drain markers caught in the flush are released so an in-flight SendAudio
// unblocks immediately.
func (s *streamer) Clear() error {
	select {
	case s.flushAudioCh <- struct{}{}:
	default:
	}
	for {
		select {
		case item := <-s.outCh:
			if item.done != nil {
				close(item.done)
			}
			continue
		default:
		}
		break
	}
	return s.writeEnvelope(Envelope{Event: EventClear, StreamID: s.streamID})
}

// ============================================================================
// Paced output writer
// ============================================================================

// runOutputWriter is the single outbound loop: one frame per 20ms tick,
// media-framed and base64-encoded. Exits when the streamer context is
// cancelled.
func (s *streamer) runOutputWriter() {
	ticker := time.NewTicker(internal_audio.FrameDurationMs * time.Millisecond)
	defer ticker.Stop()

	var pending []outFrame
	for {
		select {
		case <-s.ctx.Done():
			return

		case <-s.flushAudioCh:
			pending = releaseMarkers(pending)

		case item := <-s.outCh:
			pending = append(pending, item)

		case <-ticker.C:
			pending = popMarkers(pending)
			if len(pending) == 0 {
				continue
			}
			s.writeMediaFrame(pending[0].payload)
			pending = popMarkers(pending[1:])
		}
	}
}

// popMarkers closes leading drain markers: every frame enqueued before
// them has been written or flushed.
func popMarkers(pending []outFrame) []outFrame {
	for len(pending) > 0 && pending[0].done != nil {
		close(pending[0].done)
		pending = pending[1:]
	}
	return pending
}

// releaseMarkers drops all pending frames and releases their markers.
func releaseMarkers(pending []outFrame) []outFrame {
	for _, item := range pending {
		if item.done != nil {
			close(item.done)
		}
	}
	return pending[:0]
}

func (s *streamer) writeMediaFrame(frame []byte) {
	err := s.writeEnvelope(Envelope{
		Event:    EventMedia,
		StreamID: s.streamID,
		Media:    &MediaPayload{Payload: base64.StdEncoding.EncodeToString(frame)},
	})
	if err != nil {
		s.logger.Debugw("media frame write failed", "streamId", s.streamID, "error", err)
	}
}

func (s *streamer) writeEnvelope(env Envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(env)
}

// ============================================================================
// Teardown
// ============================================================================

// teardown closes the session, deregisters it, and releases the
// connection. Idempotent; every exit path of the read loop funnels here.
func (s *streamer) teardown(registry *internal_session.Registry) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	streamID := s.streamID
	session := s.session
	s.mu.Unlock()

	if streamID != "" {
		registry.Remove(streamID)
	}
	if session != nil {
		session.OnStreamClosed()
	}
	s.cancel()
	if err := s.conn.Close(); err != nil {
		s.logger.Debugw("websocket close failed", "streamId", streamID, "error", err)
	}
}
