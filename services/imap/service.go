package imap

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/docrelay/docrelay/interfaces"
	"github.com/docrelay/docrelay/internal/logger"
	"github.com/docrelay/docrelay/internal/models"
	"github.com/docrelay/docrelay/internal/tracing"
)

// Poller runs the connect-check-extract-notify cycle for one account.
type Poller struct {
	account    *models.AccountConfig
	fetch      fetcher
	ocr        interfaces.OCRService
	dispatcher interfaces.NotificationDispatcher
	seen       *lru.Cache[string, struct{}]
	log        logger.Logger

	mu             sync.Mutex
	running        bool
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	processedCount int
	lastCycleAt    time.Time
	lastError      string
}

func NewPoller(
	account *models.AccountConfig,
	ocr interfaces.OCRService,
	dispatcher interfaces.NotificationDispatcher,
	dedupSize int,
	log logger.Logger,
) *Poller {
	seen, _ := lru.New[string, struct{}](dedupSize)
	return &Poller{
		account:    account,
		fetch:      newIMAPFetcher(account, log),
		ocr:        ocr,
		dispatcher: dispatcher,
		seen:       seen,
		log:        log,
	}
}

// Start launches the polling loop. Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.log.Warnf("[%s] Polling already active, ignoring start request", p.account.EmailAddress)
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.run(pollCtx, interval)

	p.log.Infof("[%s] Started polling every %v", p.account.EmailAddress, interval)
}

// Stop signals the loop to exit and waits for it to finish. Safe to call on
// a stopped poller.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.log.Infof("[%s] Polling stopped", p.account.EmailAddress)
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) Stats() interfaces.PollerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return interfaces.PollerStats{
		Running:        p.running,
		ProcessedCount: p.processedCount,
		AllowedSenders: append([]string(nil), p.account.AllowedSenders...),
		LastCycleAt:    p.lastCycleAt,
		LastError:      p.lastError,
	}
}

// run drives cycles until the context is cancelled. A failed cycle doubles
// the sleep before the next attempt so a flapping server is not hammered.
func (p *Poller) run(ctx context.Context, interval time.Duration) {
	defer p.wg.Done()

	for {
		err := p.cycle(ctx)

		p.mu.Lock()
		p.lastCycleAt = time.Now()
		if err != nil {
			p.lastError = err.Error()
		} else {
			p.lastError = ""
		}
		p.mu.Unlock()

		sleep := interval
		if err != nil && ctx.Err() == nil {
			p.log.Errorf("[%s] Polling cycle failed: %v", p.account.EmailAddress, err)
			sleep = 2 * interval
		}

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return
		}
	}
}

// cycle fetches unseen messages and processes each one.
func (p *Poller) cycle(ctx context.Context) error {
	span, ctx := tracing.StartTracerSpan(ctx, "Poller.cycle")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, p.account.EmailAddress)

	messages, err := p.fetch.FetchUnseen(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.LogFields(tracingLog.Int("message_count", len(messages)))

	for _, msg := range messages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		p.processMessage(ctx, msg)
	}

	return nil
}

// processMessage handles one inbound message end to end. The message is
// marked attempted once the whitelist and attachment checks pass, before
// extraction starts, so a failure partway through never causes a second
// attempt in this session. A message skipped by those checks is not marked
// and gets re-evaluated if the server redelivers it as unseen.
func (p *Poller) processMessage(ctx context.Context, msg *models.InboundMessage) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Poller.processMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("message_id", msg.MessageID)

	if p.seen.Contains(msg.MessageID) {
		p.log.Debugf("[%s] Skipping already processed message %s", p.account.EmailAddress, msg.MessageID)
		return
	}

	if !senderAllowed(msg.Sender, p.account.AllowedSenders) {
		p.log.Infof("[%s] Ignoring message %s from unlisted sender %s", p.account.EmailAddress, msg.MessageID, msg.Sender)
		return
	}

	attachments := msg.ValidAttachments()
	if len(attachments) == 0 {
		p.log.Debugf("[%s] Message %s has no processable attachments", p.account.EmailAddress, msg.MessageID)
		return
	}

	p.seen.Add(msg.MessageID, struct{}{})

	p.log.Infof("[%s] Processing message %s from %s with %d attachment(s)",
		p.account.EmailAddress, msg.MessageID, msg.Sender, len(attachments))

	for _, attachment := range attachments {
		result := p.ocr.ProcessAttachment(ctx, attachment.Filename, attachment.Data)

		err := p.dispatcher.Deliver(ctx, result, attachment.Data, "")
		if err != nil {
			p.log.Errorf("[%s] Failed to deliver result for %s: %v", p.account.EmailAddress, attachment.Filename, err)
			tracing.TraceErr(span, err)
			continue
		}

		p.mu.Lock()
		p.processedCount++
		p.mu.Unlock()
	}
}
