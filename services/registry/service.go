package registry

import (
	"context"
	"sync"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/docrelay/docrelay/config"
	"github.com/docrelay/docrelay/interfaces"
	"github.com/docrelay/docrelay/internal/enum"
	ers "github.com/docrelay/docrelay/internal/errors"
	"github.com/docrelay/docrelay/internal/logger"
	"github.com/docrelay/docrelay/internal/models"
	"github.com/docrelay/docrelay/internal/tracing"
	"github.com/docrelay/docrelay/internal/utils"
	imapsvc "github.com/docrelay/docrelay/services/imap"
	"github.com/docrelay/docrelay/services/notification"
	"github.com/docrelay/docrelay/services/ocr"
	"github.com/docrelay/docrelay/services/smtp"
)

// session bundles everything owned by one configured account.
type session struct {
	config     *models.AccountConfig
	poller     interfaces.MailboxPoller
	dispatcher interfaces.NotificationDispatcher
}

// Registry is the in-memory session coordinator. Pollers launched from it
// run on the registry's root context, not the caller's, so an API request
// finishing does not tear the session down.
type Registry struct {
	cfg     *config.Config
	log     logger.Logger
	rootCtx context.Context

	mu       sync.RWMutex
	sessions map[string]*session

	// overridable in tests
	checkIMAP     func(ctx context.Context, account *models.AccountConfig) error
	checkSMTP     func(ctx context.Context, account *models.AccountConfig) error
	newDispatcher func(account *models.AccountConfig) interfaces.NotificationDispatcher
	newPoller     func(account *models.AccountConfig, dispatcher interfaces.NotificationDispatcher) interfaces.MailboxPoller
}

func NewRegistry(rootCtx context.Context, cfg *config.Config, log logger.Logger) *Registry {
	r := &Registry{
		cfg:      cfg,
		log:      log,
		rootCtx:  rootCtx,
		sessions: make(map[string]*session),
	}

	r.checkIMAP = func(ctx context.Context, account *models.AccountConfig) error {
		return imapsvc.CheckConnection(ctx, account, log)
	}
	r.checkSMTP = func(ctx context.Context, account *models.AccountConfig) error {
		return smtp.NewSMTPSender(account, log).TestConnection(ctx)
	}
	r.newDispatcher = func(account *models.AccountConfig) interfaces.NotificationDispatcher {
		sender := smtp.NewSMTPSender(account, log)
		return notification.NewDispatcher(cfg.NotificationConfig, sender, account.NotificationEmail, log)
	}
	r.newPoller = func(account *models.AccountConfig, dispatcher interfaces.NotificationDispatcher) interfaces.MailboxPoller {
		extractor := ocr.NewOCRService(cfg.OCRConfig, account.OCRAPIKey, log)
		return imapsvc.NewPoller(account, extractor, dispatcher, cfg.AppConfig.DedupCacheSize, log)
	}

	return r
}

// TestAndConfigure validates the account, verifies both mail endpoints and
// stores the configuration. Reconfiguring an account with a live session is
// rejected; stop it first.
func (r *Registry) TestAndConfigure(ctx context.Context, account *models.AccountConfig) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Registry.TestAndConfigure")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.EmailAddress)

	if err := account.Validate(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	key := utils.NormalizeAddress(account.EmailAddress)

	r.mu.RLock()
	existing, exists := r.sessions[key]
	r.mu.RUnlock()
	if exists && existing.poller != nil && existing.poller.Running() {
		tracing.TraceErr(span, ers.ErrSessionActive)
		return ers.ErrSessionActive
	}

	if err := r.checkIMAP(ctx, account); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := r.checkSMTP(ctx, account); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	r.mu.Lock()
	// A StartPolling may have landed while the lock was dropped for the
	// network checks; overwriting its session would orphan a live poller.
	if current, ok := r.sessions[key]; ok && current.poller != nil && current.poller.Running() {
		r.mu.Unlock()
		tracing.TraceErr(span, ers.ErrSessionActive)
		return ers.ErrSessionActive
	}
	r.sessions[key] = &session{config: account}
	r.mu.Unlock()

	r.log.Infof("Account %s configured with %d allowed sender(s)", key, len(account.AllowedSenders))
	return nil
}

// SetNotificationEmail updates the default notification target, rewiring a
// live dispatcher when one exists.
func (r *Registry) SetNotificationEmail(ctx context.Context, account, target string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Registry.SetNotificationEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account)

	syntax := mailvalidate.ValidateEmailSyntax(target)
	if !syntax.IsValid {
		tracing.TraceErr(span, ers.ErrInvalidAddress)
		return ers.ErrInvalidAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[utils.NormalizeAddress(account)]
	if !exists {
		tracing.TraceErr(span, ers.ErrAccountNotConfigured)
		return ers.ErrAccountNotConfigured
	}

	s.config.NotificationEmail = target
	if s.dispatcher != nil {
		s.dispatcher.SetRecipient(target)
	}

	return nil
}

// StartPolling launches a polling session for a configured account.
func (r *Registry) StartPolling(ctx context.Context, account string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Registry.StartPolling")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account)

	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[utils.NormalizeAddress(account)]
	if !exists {
		tracing.TraceErr(span, ers.ErrAccountNotConfigured)
		return ers.ErrAccountNotConfigured
	}

	if s.poller != nil && s.poller.Running() {
		tracing.TraceErr(span, ers.ErrSessionActive)
		return ers.ErrSessionActive
	}

	if s.dispatcher == nil {
		s.dispatcher = r.newDispatcher(s.config)
	}
	s.poller = r.newPoller(s.config, s.dispatcher)

	interval := s.config.PollInterval
	if interval <= 0 {
		interval = r.cfg.AppConfig.DefaultPollInterval
	}
	span.LogFields(tracingLog.String("interval", interval.String()))

	s.poller.Start(r.rootCtx, interval)
	return nil
}

// StopPolling stops the account's active session.
func (r *Registry) StopPolling(ctx context.Context, account string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Registry.StopPolling")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account)

	r.mu.Lock()
	s, exists := r.sessions[utils.NormalizeAddress(account)]
	var poller interfaces.MailboxPoller
	if exists && s.poller != nil && s.poller.Running() {
		poller = s.poller
	}
	r.mu.Unlock()

	if poller == nil {
		tracing.TraceErr(span, ers.ErrNoActiveSession)
		return ers.ErrNoActiveSession
	}

	// Stop outside the lock; it waits for an in-flight cycle to finish.
	poller.Stop()
	return nil
}

// Status reports configured/polling flags without side effects.
func (r *Registry) Status(ctx context.Context, account string) interfaces.AccountStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[utils.NormalizeAddress(account)]
	status := interfaces.AccountStatus{Configured: exists, State: enum.SessionStopped}
	if exists && s.poller != nil && s.poller.Running() {
		status.Polling = true
		status.State = enum.SessionPolling
	}
	return status
}

// Stats snapshots every configured account and active session.
func (r *Registry) Stats(ctx context.Context) interfaces.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := interfaces.RegistryStats{
		ConfiguredAccounts: len(r.sessions),
		Accounts:           make([]string, 0, len(r.sessions)),
		Sessions:           make(map[string]interfaces.PollerStats),
	}

	for key, s := range r.sessions {
		stats.Accounts = append(stats.Accounts, key)
		if s.poller == nil {
			continue
		}
		pollerStats := s.poller.Stats()
		stats.Sessions[key] = pollerStats
		if pollerStats.Running {
			stats.ActiveSessions++
		}
	}

	return stats
}

// StopAll stops every active session. Used during shutdown.
func (r *Registry) StopAll(ctx context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Registry.StopAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	r.mu.RLock()
	pollers := make([]interfaces.MailboxPoller, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.poller != nil && s.poller.Running() {
			pollers = append(pollers, s.poller)
		}
	}
	r.mu.RUnlock()

	for _, poller := range pollers {
		poller.Stop()
	}

	r.log.Infof("Stopped %d polling session(s)", len(pollers))
}
