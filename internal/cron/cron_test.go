package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docrelay/docrelay/config"
	"github.com/docrelay/docrelay/interfaces"
	"github.com/docrelay/docrelay/internal/logger"
	"github.com/docrelay/docrelay/internal/models"
)

type stubRegistry struct {
	stats      interfaces.RegistryStats
	statsCalls int
}

func (s *stubRegistry) TestAndConfigure(ctx context.Context, cfg *models.AccountConfig) error {
	return nil
}

func (s *stubRegistry) SetNotificationEmail(ctx context.Context, account, target string) error {
	return nil
}

func (s *stubRegistry) StartPolling(ctx context.Context, account string) error { return nil }

func (s *stubRegistry) StopPolling(ctx context.Context, account string) error { return nil }

func (s *stubRegistry) Status(ctx context.Context, account string) interfaces.AccountStatus {
	return interfaces.AccountStatus{}
}

func (s *stubRegistry) Stats(ctx context.Context) interfaces.RegistryStats {
	s.statsCalls++
	return s.stats
}

func (s *stubRegistry) StopAll(ctx context.Context) {}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func getConfig() *config.Config {
	return &config.Config{
		AppConfig: &config.AppConfig{
			StatsReportSchedule: "@every 5m",
		},
	}
}

func TestNewCronManager(t *testing.T) {
	// Arrange
	cfg := getConfig()
	log := getLogger()
	registry := &stubRegistry{}

	// Act
	cm := NewCronManager(cfg, log, registry)

	// Assert
	assert.NotNil(t, cm)
	assert.Equal(t, cfg, cm.cfg)
	assert.Equal(t, log, cm.log)
	assert.NotNil(t, cm.cron)
	assert.NotNil(t, cm.jobIDs)
	assert.Empty(t, cm.jobIDs)
}

func TestCronManager_Start(t *testing.T) {
	// Arrange
	cm := NewCronManager(getConfig(), getLogger(), &stubRegistry{})
	defer cm.Stop()

	// Act
	err := cm.Start()

	// Assert
	assert.NoError(t, err)
	assert.Len(t, cm.jobIDs, 1)
	assert.Contains(t, cm.jobIDs, jobStatsReport)
}

func TestCronManager_StartRejectsBadSchedule(t *testing.T) {
	// Arrange
	cfg := getConfig()
	cfg.AppConfig.StatsReportSchedule = "not a schedule"
	cm := NewCronManager(cfg, getLogger(), &stubRegistry{})

	// Act
	err := cm.Start()

	// Assert
	assert.Error(t, err)
	assert.Empty(t, cm.jobIDs)
}

func TestCronManager_ReportStats(t *testing.T) {
	// Arrange
	registry := &stubRegistry{
		stats: interfaces.RegistryStats{
			ConfiguredAccounts: 2,
			ActiveSessions:     1,
			Sessions: map[string]interfaces.PollerStats{
				"inbox@example.com": {Running: true, LastError: "connection reset"},
			},
		},
	}
	cm := NewCronManager(getConfig(), getLogger(), registry)

	// Act
	cm.reportStats()

	// Assert
	assert.Equal(t, 1, registry.statsCalls)
}

func TestCronManager_Stop(t *testing.T) {
	// Arrange
	cm := NewCronManager(getConfig(), getLogger(), &stubRegistry{})
	err := cm.Start()
	assert.NoError(t, err)

	// Act / Assert: Stop blocks until the scheduler drains and returns
	assert.NotPanics(t, func() { cm.Stop() })
}
