package interfaces

import (
	"context"
	"time"
)

// MailboxPoller owns one account's connect-check-extract cycle.
type MailboxPoller interface {
	// Start launches the background polling loop. Idempotent: calling it
	// on a running poller is a logged no-op.
	Start(ctx context.Context, interval time.Duration)
	// Stop signals the loop to exit; safe to call when not running. An
	// in-flight network call is allowed to complete before the loop
	// observes the stop.
	Stop()
	Running() bool
	Stats() PollerStats
}

// PollerStats is a point-in-time snapshot of one polling session.
type PollerStats struct {
	Running        bool      `json:"running"`
	ProcessedCount int       `json:"processedCount"`
	AllowedSenders []string  `json:"allowedSenders"`
	LastCycleAt    time.Time `json:"lastCycleAt"`
	LastError      string    `json:"lastError,omitempty"`
}
