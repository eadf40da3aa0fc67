package services

import (
	"log/slog"
	"sync"
	"time"
)

// Autopilot is the emergency kill-switch for automated replies. While
// paused, inbound messages are still recorded and deduplicated, but no AI
// call is made and no reply is sent.
type Autopilot struct {
	mu       sync.RWMutex
	paused   bool
	pausedBy string
	pausedAt time.Time
	reason   string
}

// NewAutopilot starts in the running (not paused) state.
func NewAutopilot() *Autopilot {
	return &Autopilot{}
}

// IsPaused reports whether automated replies are currently suspended.
func (a *Autopilot) IsPaused() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.paused
}

// Pause suspends automated replies.
func (a *Autopilot) Pause(reason, pausedBy string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.paused = true
	a.reason = reason
	a.pausedBy = pausedBy
	a.pausedAt = time.Now()

	slog.Warn("autopilot paused",
		"reason", reason,
		"paused_by", pausedBy,
	)
}

// Resume re-enables automated replies.
func (a *Autopilot) Resume(resumedBy string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	duration := time.Since(a.pausedAt)
	a.paused = false

	slog.Info("autopilot resumed",
		"resumed_by", resumedBy,
		"paused_for", duration,
	)
}

// Status returns the current state for the dashboard.
func (a *Autopilot) Status() map[string]interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return map[string]interface{}{
		"paused":    a.paused,
		"reason":    a.reason,
		"paused_by": a.pausedBy,
		"paused_at": a.pausedAt,
	}
}
