// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_session

import (
	"sync"

	"github.com/aurix-ai/voice-gateway/pkg/commons"
)

// Registry is the process-wide map from stream identifier to live
// CallSession. Insertions happen on stream start, removals on stream
// close; both are synchronized and removal is idempotent.
type Registry struct {
	logger commons.Logger

	mu       sync.RWMutex
	sessions map[string]*CallSession
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger commons.Logger) *Registry {
	return &Registry{
		logger:   logger,
		sessions: make(map[string]*CallSession),
	}
}

// Add registers a session under its stream id. A session already present
// under the same id is replaced and returned so the caller can close it;
// a duplicate start event must not leak the old session.
func (r *Registry) Add(id string, session *CallSession) *CallSession {
	r.mu.Lock()
	previous := r.sessions[id]
	r.sessions[id] = session
	r.mu.Unlock()
	if previous != nil {
		r.logger.Warnw("registry: duplicate stream id, replacing session", "streamId", id)
	}
	return previous
}

// Resolve looks up the session for a stream id.
func (r *Registry) Resolve(id string) (*CallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Remove deletes and returns the session for a stream id. Removing an
// unknown or already-removed id returns nil.
func (r *Registry) Remove(id string) *CallSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	return session
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll tears down every live session, used on process shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*CallSession, 0, len(r.sessions))
	for id, session := range r.sessions {
		sessions = append(sessions, session)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, session := range sessions {
		session.OnStreamClosed()
	}
}
