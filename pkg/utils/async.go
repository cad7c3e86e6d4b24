// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package utils

import (
	"context"
	"runtime/debug"

	"github.com/aurix-ai/voice-gateway/pkg/commons"
)

// Go runs fn on its own goroutine with panic recovery. A panicking
// fire-and-forget task must never take the whole gateway down with it.
func Go(ctx context.Context, logger commons.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("recovered panic in background task",
					"panic", r, "stack", string(debug.Stack()))
			}
		}()
		select {
		case <-ctx.Done():
			return
		default:
		}
		fn()
	}()
}
