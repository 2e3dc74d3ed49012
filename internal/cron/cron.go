package cron

import (
	"context"
	"sync"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/docrelay/docrelay/config"
	"github.com/docrelay/docrelay/interfaces"
	"github.com/docrelay/docrelay/internal/logger"
	"github.com/docrelay/docrelay/internal/tracing"
)

const jobStatsReport = "statsReport"

// CronManager runs periodic background jobs. Currently a single job that
// logs a polling stats snapshot, so a stuck session is visible in the logs
// without hitting the API.
type CronManager struct {
	cfg      *config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	registry interfaces.SessionRegistry
	jobIDs   map[string]cronv3.EntryID
	mu       sync.Mutex
}

func NewCronManager(cfg *config.Config, log logger.Logger, sessionRegistry interfaces.SessionRegistry) *CronManager {
	return &CronManager{
		cfg:      cfg,
		log:      log,
		cron:     cronv3.New(),
		registry: sessionRegistry,
		jobIDs:   make(map[string]cronv3.EntryID),
	}
}

func (cm *CronManager) Start() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	id, err := cm.cron.AddFunc(cm.cfg.AppConfig.StatsReportSchedule, cm.reportStats)
	if err != nil {
		return err
	}
	cm.jobIDs[jobStatsReport] = id

	cm.cron.Start()
	cm.log.Infof("Cron manager started with %d job(s)", len(cm.jobIDs))
	return nil
}

func (cm *CronManager) Stop() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	ctx := cm.cron.Stop()
	<-ctx.Done()
	cm.log.Info("Cron manager stopped")
}

func (cm *CronManager) reportStats() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.reportStats")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	stats := cm.registry.Stats(ctx)
	tracing.LogObjectAsJson(span, "stats", stats)

	cm.log.Infof("Polling stats: %d account(s) configured, %d session(s) active",
		stats.ConfiguredAccounts, stats.ActiveSessions)
	for account, session := range stats.Sessions {
		if session.LastError != "" {
			cm.log.Warnf("[%s] Last cycle error: %s", account, session.LastError)
		}
	}
}
