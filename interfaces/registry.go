package interfaces

import (
	"context"

	"github.com/docrelay/docrelay/internal/enum"
	"github.com/docrelay/docrelay/internal/models"
)

// SessionRegistry coordinates per-account pollers and dispatchers. All
// state behind it is volatile: a process restart forgets every account.
type SessionRegistry interface {
	// TestAndConfigure runs one-shot connect+auth checks against both
	// mail endpoints and, on success, stores the config for later
	// StartPolling calls.
	TestAndConfigure(ctx context.Context, config *models.AccountConfig) error
	// SetNotificationEmail updates the default notification target,
	// rewiring a live dispatcher if one exists.
	SetNotificationEmail(ctx context.Context, account, target string) error
	// StartPolling launches a session. ErrAccountNotConfigured when the
	// account is unknown; ErrSessionActive when already polling.
	StartPolling(ctx context.Context, account string) error
	// StopPolling stops a session. ErrNoActiveSession when none exists.
	StopPolling(ctx context.Context, account string) error
	// Status reports configured/polling without side effects.
	Status(ctx context.Context, account string) AccountStatus
	// Stats returns a snapshot across all accounts.
	Stats(ctx context.Context) RegistryStats
	// StopAll stops every active session; used during shutdown.
	StopAll(ctx context.Context)
}

type AccountStatus struct {
	Configured bool              `json:"configured"`
	Polling    bool              `json:"polling"`
	State      enum.SessionState `json:"state"`
}

type RegistryStats struct {
	ConfiguredAccounts int                    `json:"configuredAccounts"`
	ActiveSessions     int                    `json:"activeSessions"`
	Accounts           []string               `json:"accounts"`
	Sessions           map[string]PollerStats `json:"sessions"`
}
