// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_session

import (
	"errors"
	"time"
)

// ============================================================================
// CONVERSATION STATE MACHINE
// ============================================================================

// State is the conversation phase of one call session.
type State int32

const (
	// StateListening — idle, tracking the noise floor, waiting for speech.
	StateListening State = iota
	// StateUserSpeaking — an utterance is being buffered.
	StateUserSpeaking
	// StateAISpeaking — synthesized audio is streaming outbound; the
	// interruption monitor owns the inbound path.
	StateAISpeaking
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "LISTENING"
	case StateUserSpeaking:
		return "USER_SPEAKING"
	case StateAISpeaking:
		return "AI_SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// legalTransitions is the complete transition relation. LISTENING may move
// straight to AI_SPEAKING for the call-start greeting; every other edge
// follows the turn-taking cycle plus the barge-in edge back to
// USER_SPEAKING.
var legalTransitions = map[State][]State{
	StateListening:    {StateUserSpeaking, StateAISpeaking},
	StateUserSpeaking: {StateAISpeaking, StateListening},
	StateAISpeaking:   {StateListening, StateUserSpeaking},
}

func canTransition(from, to State) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ============================================================================
// ERROR TAXONOMY (session level)
// ============================================================================

var (
	// ErrTransport — the underlying stream broke or closed unexpectedly.
	// Terminates the session.
	ErrTransport = errors.New("transport failed")
	// ErrProtocol — a single malformed inbound frame. The frame is dropped
	// with a warning and the session continues.
	ErrProtocol = errors.New("malformed frame")
)

// ============================================================================
// TURNS & SUMMARY
// ============================================================================

// Speaker tags one side of the conversation.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerAI   Speaker = "ai"
)

// Turn is one finalized utterance in the conversation history. Immutable
// once appended.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	SpokenMs  int       `json:"spokenMs"`
}

// CallSummary is handed to the call-ended hook exactly once per call.
type CallSummary struct {
	CallID       string    `json:"callId"`
	AgentID      string    `json:"agentId"`
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      time.Time `json:"endedAt"`
	UserTurns    int       `json:"userTurns"`
	AITurns      int       `json:"aiTurns"`
	UserSpeechMs int       `json:"userSpeechMs"`
	AISpeechMs   int       `json:"aiSpeechMs"`
	EndReason    string    `json:"endReason"`
}
