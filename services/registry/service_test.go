package registry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrelay/docrelay/config"
	"github.com/docrelay/docrelay/interfaces"
	"github.com/docrelay/docrelay/internal/enum"
	ers "github.com/docrelay/docrelay/internal/errors"
	"github.com/docrelay/docrelay/internal/logger"
	"github.com/docrelay/docrelay/internal/models"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type fakePoller struct {
	running bool
	starts  int
	stops   int
}

func (f *fakePoller) Start(ctx context.Context, interval time.Duration) {
	f.starts++
	f.running = true
}

func (f *fakePoller) Stop() {
	f.stops++
	f.running = false
}

func (f *fakePoller) Running() bool { return f.running }

func (f *fakePoller) Stats() interfaces.PollerStats {
	return interfaces.PollerStats{Running: f.running}
}

type fakeDispatcher struct {
	recipient string
}

func (f *fakeDispatcher) Deliver(ctx context.Context, result *models.OCRResult, original []byte, recipient string) error {
	return nil
}

func (f *fakeDispatcher) SetRecipient(address string) { f.recipient = address }

func testAccount() *models.AccountConfig {
	return &models.AccountConfig{
		EmailAddress:      "Inbox@Example.com",
		Password:          "secret",
		IMAPHost:          "imap.example.com",
		IMAPPort:          993,
		SMTPHost:          "smtp.example.com",
		SMTPPort:          587,
		AllowedSenders:    []string{"alice@example.com"},
		NotificationEmail: "notify@example.com",
	}
}

func testConfig() *config.Config {
	return &config.Config{
		AppConfig: &config.AppConfig{
			DefaultPollInterval: 30 * time.Second,
			DedupCacheSize:      100,
		},
		OCRConfig:          &config.OCRConfig{},
		NotificationConfig: &config.NotificationConfig{MaxRetries: 3, RetryBaseDelay: 5 * time.Second},
	}
}

func newTestRegistry() (*Registry, *fakePoller, *fakeDispatcher) {
	r := NewRegistry(context.Background(), testConfig(), getLogger())

	poller := &fakePoller{}
	dispatcher := &fakeDispatcher{}

	r.checkIMAP = func(ctx context.Context, account *models.AccountConfig) error { return nil }
	r.checkSMTP = func(ctx context.Context, account *models.AccountConfig) error { return nil }
	r.newDispatcher = func(account *models.AccountConfig) interfaces.NotificationDispatcher { return dispatcher }
	r.newPoller = func(account *models.AccountConfig, d interfaces.NotificationDispatcher) interfaces.MailboxPoller {
		return poller
	}

	return r, poller, dispatcher
}

func TestTestAndConfigure(t *testing.T) {
	// Arrange
	r, _, _ := newTestRegistry()

	// Act
	err := r.TestAndConfigure(context.Background(), testAccount())

	// Assert
	require.NoError(t, err)
	status := r.Status(context.Background(), "inbox@example.com")
	assert.True(t, status.Configured)
	assert.False(t, status.Polling)
	assert.Equal(t, enum.SessionStopped, status.State)
}

func TestTestAndConfigure_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.AccountConfig)
		want   error
	}{
		{"invalid address", func(a *models.AccountConfig) { a.EmailAddress = "not-an-email" }, ers.ErrInvalidAddress},
		{"missing password", func(a *models.AccountConfig) { a.Password = "" }, ers.ErrMissingCredentials},
		{"empty whitelist", func(a *models.AccountConfig) { a.AllowedSenders = nil }, ers.ErrEmptyWhitelist},
		{"bad port", func(a *models.AccountConfig) { a.IMAPPort = 0 }, ers.ErrInvalidPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			r, _, _ := newTestRegistry()
			account := testAccount()
			tt.mutate(account)

			// Act
			err := r.TestAndConfigure(context.Background(), account)

			// Assert
			assert.True(t, errors.Is(err, tt.want))
			assert.False(t, r.Status(context.Background(), account.EmailAddress).Configured)
		})
	}
}

func TestTestAndConfigure_ConnectionFailure(t *testing.T) {
	// Arrange
	r, _, _ := newTestRegistry()
	r.checkIMAP = func(ctx context.Context, account *models.AccountConfig) error {
		return ers.ErrConnection
	}

	// Act
	err := r.TestAndConfigure(context.Background(), testAccount())

	// Assert
	assert.True(t, errors.Is(err, ers.ErrConnection))
	assert.False(t, r.Status(context.Background(), "inbox@example.com").Configured)
}

func TestTestAndConfigure_StartDuringChecksNotOrphaned(t *testing.T) {
	// Arrange: account configured and idle
	r, poller, _ := newTestRegistry()
	require.NoError(t, r.TestAndConfigure(context.Background(), testAccount()))

	// a StartPolling lands while the reconfigure is mid network check
	r.checkIMAP = func(ctx context.Context, account *models.AccountConfig) error {
		return r.StartPolling(ctx, "inbox@example.com")
	}

	// Act
	err := r.TestAndConfigure(context.Background(), testAccount())

	// Assert: the reconfigure loses, the running session stays reachable
	assert.True(t, errors.Is(err, ers.ErrSessionActive))
	assert.True(t, poller.Running())
	require.NoError(t, r.StopPolling(context.Background(), "inbox@example.com"))
	assert.Equal(t, 1, poller.stops)
}

func TestStartPolling(t *testing.T) {
	// Arrange
	r, poller, _ := newTestRegistry()
	require.NoError(t, r.TestAndConfigure(context.Background(), testAccount()))

	// Act
	err := r.StartPolling(context.Background(), "inbox@example.com")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, poller.starts)
	status := r.Status(context.Background(), "INBOX@example.com")
	assert.True(t, status.Polling)
	assert.Equal(t, enum.SessionPolling, status.State)
}

func TestStartPolling_NotConfigured(t *testing.T) {
	// Arrange
	r, _, _ := newTestRegistry()

	// Act
	err := r.StartPolling(context.Background(), "unknown@example.com")

	// Assert
	assert.True(t, errors.Is(err, ers.ErrAccountNotConfigured))
}

func TestStartPolling_AlreadyActive(t *testing.T) {
	// Arrange
	r, poller, _ := newTestRegistry()
	require.NoError(t, r.TestAndConfigure(context.Background(), testAccount()))
	require.NoError(t, r.StartPolling(context.Background(), "inbox@example.com"))

	// Act
	err := r.StartPolling(context.Background(), "inbox@example.com")

	// Assert
	assert.True(t, errors.Is(err, ers.ErrSessionActive))
	assert.Equal(t, 1, poller.starts)
}

func TestStopPolling(t *testing.T) {
	// Arrange
	r, poller, _ := newTestRegistry()
	require.NoError(t, r.TestAndConfigure(context.Background(), testAccount()))
	require.NoError(t, r.StartPolling(context.Background(), "inbox@example.com"))

	// Act
	err := r.StopPolling(context.Background(), "inbox@example.com")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, poller.stops)
	assert.False(t, r.Status(context.Background(), "inbox@example.com").Polling)
}

func TestStopPolling_NoActiveSession(t *testing.T) {
	// Arrange
	r, _, _ := newTestRegistry()
	require.NoError(t, r.TestAndConfigure(context.Background(), testAccount()))

	// Act
	err := r.StopPolling(context.Background(), "inbox@example.com")

	// Assert
	assert.True(t, errors.Is(err, ers.ErrNoActiveSession))
}

func TestSetNotificationEmail(t *testing.T) {
	// Arrange
	r, _, dispatcher := newTestRegistry()
	require.NoError(t, r.TestAndConfigure(context.Background(), testAccount()))
	require.NoError(t, r.StartPolling(context.Background(), "inbox@example.com"))

	// Act
	err := r.SetNotificationEmail(context.Background(), "inbox@example.com", "new@example.com")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", dispatcher.recipient)
}

func TestSetNotificationEmail_InvalidTarget(t *testing.T) {
	// Arrange
	r, _, _ := newTestRegistry()
	require.NoError(t, r.TestAndConfigure(context.Background(), testAccount()))

	// Act
	err := r.SetNotificationEmail(context.Background(), "inbox@example.com", "not-an-email")

	// Assert
	assert.True(t, errors.Is(err, ers.ErrInvalidAddress))
}

func TestStats(t *testing.T) {
	// Arrange
	r, _, _ := newTestRegistry()
	require.NoError(t, r.TestAndConfigure(context.Background(), testAccount()))
	require.NoError(t, r.StartPolling(context.Background(), "inbox@example.com"))

	// Act
	stats := r.Stats(context.Background())

	// Assert
	assert.Equal(t, 1, stats.ConfiguredAccounts)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Contains(t, stats.Accounts, "inbox@example.com")
	assert.True(t, stats.Sessions["inbox@example.com"].Running)
}

func TestStopAll(t *testing.T) {
	// Arrange
	r, poller, _ := newTestRegistry()
	require.NoError(t, r.TestAndConfigure(context.Background(), testAccount()))
	require.NoError(t, r.StartPolling(context.Background(), "inbox@example.com"))

	// Act
	r.StopAll(context.Background())

	// Assert
	assert.Equal(t, 1, poller.stops)
	assert.Zero(t, r.Stats(context.Background()).ActiveSessions)
}
