// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_agentprofile

import (
	"context"
	"fmt"
	"sync"
)

// StaticProvider serves profiles from an in-memory map. Used when the
// gateway runs without a profile service, and by tests.
type StaticProvider struct {
	mu       sync.RWMutex
	profiles map[string]*AgentProfile
	fallback *AgentProfile
}

// NewStaticProvider creates a provider with an optional fallback profile
// returned for unknown agent ids. Pass nil to make unknown ids an error.
func NewStaticProvider(fallback *AgentProfile) *StaticProvider {
	return &StaticProvider{
		profiles: make(map[string]*AgentProfile),
		fallback: fallback,
	}
}

// Register adds or replaces a profile.
func (p *StaticProvider) Register(profile *AgentProfile) {
	p.mu.Lock()
	p.profiles[profile.AgentID] = profile
	p.mu.Unlock()
}

func (p *StaticProvider) Resolve(_ context.Context, agentID string) (*AgentProfile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if profile, ok := p.profiles[agentID]; ok {
		return profile, nil
	}
	if p.fallback != nil {
		out := *p.fallback
		out.AgentID = agentID
		return &out, nil
	}
	return nil, fmt.Errorf("agent profile not found: %s", agentID)
}
