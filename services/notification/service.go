package notification

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/docrelay/docrelay/config"
	"github.com/docrelay/docrelay/interfaces"
	ers "github.com/docrelay/docrelay/internal/errors"
	"github.com/docrelay/docrelay/internal/logger"
	"github.com/docrelay/docrelay/internal/models"
	"github.com/docrelay/docrelay/internal/tracing"
)

type Dispatcher struct {
	sender     interfaces.MailSender
	maxRetries int
	delay      *backoff.Backoff
	sleep      func(time.Duration)
	log        logger.Logger

	mu        sync.RWMutex
	recipient string
}

func NewDispatcher(cfg *config.NotificationConfig, sender interfaces.MailSender, recipient string, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		sender:     sender,
		recipient:  recipient,
		maxRetries: cfg.MaxRetries,
		delay: &backoff.Backoff{
			Min:    cfg.RetryBaseDelay,
			Max:    5 * time.Minute,
			Factor: 2,
		},
		sleep: time.Sleep,
		log:   log,
	}
}

// SetRecipient replaces the default notification address.
func (d *Dispatcher) SetRecipient(address string) {
	d.mu.Lock()
	d.recipient = address
	d.mu.Unlock()
	d.log.Infof("Notification email updated to: %s", address)
}

func (d *Dispatcher) defaultRecipient() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.recipient
}

// Deliver sends one extraction result as a two-part email, re-attaching the
// original file when provided. An explicit recipient overrides the default.
// Transient send failures are retried with exponentially growing delays;
// exhausting every attempt returns ErrDeliveryExhausted.
func (d *Dispatcher) Deliver(ctx context.Context, result *models.OCRResult, original []byte, recipient string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Dispatcher.Deliver")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("filename", result.Filename)
	span.SetTag("confidence", result.Confidence.String())

	target := recipient
	if target == "" {
		target = d.defaultRecipient()
	}
	if target == "" {
		tracing.TraceErr(span, ers.ErrNoRecipient)
		return ers.ErrNoRecipient
	}

	if !result.Success {
		d.log.Warnf("Delivering failed OCR result for %s: %s", result.Filename, result.Error)
	}

	email := &models.OutboundEmail{
		To:       target,
		Subject:  formatSubject(result),
		BodyText: formatTextBody(result),
		BodyHTML: formatHTMLBody(result),
	}

	if len(original) > 0 {
		email.Attachment = &models.Attachment{
			Filename:    result.Filename,
			ContentType: result.ContentType,
			Size:        len(original),
			Data:        original,
			Disposition: "attachment",
		}
	}

	return d.sendWithRetry(ctx, email)
}

// sendWithRetry attempts delivery up to maxRetries times. The delay before
// retry n is a pure function of n, so concurrent deliveries never observe
// each other's backoff state.
func (d *Dispatcher) sendWithRetry(ctx context.Context, email *models.OutboundEmail) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Dispatcher.sendWithRetry")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	var lastErr error
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		lastErr = d.sender.Send(ctx, email)
		if lastErr == nil {
			d.log.Infof("Notification sent to %s", email.To)
			return nil
		}

		d.log.Errorf("Attempt %d/%d to send notification failed: %v", attempt+1, d.maxRetries, lastErr)
		tracing.TraceErr(span, lastErr)

		if attempt < d.maxRetries-1 {
			d.sleep(d.delay.ForAttempt(float64(attempt)))
		}
	}

	err := errors.Wrapf(ers.ErrDeliveryExhausted, "after %d attempts: %v", d.maxRetries, lastErr)
	tracing.TraceErr(span, err)
	return err
}
