package imap

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrelay/docrelay/internal/enum"
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

type stubFetcher struct {
	messages []*models.InboundMessage
	err      error
	calls    int
}

func (s *stubFetcher) FetchUnseen(ctx context.Context) ([]*models.InboundMessage, error) {
	s.calls++
	return s.messages, s.err
}

type stubOCR struct {
	processed []string
	fail      bool
}

func (s *stubOCR) ProcessAttachment(ctx context.Context, filename string, data []byte) *models.OCRResult {
	s.processed = append(s.processed, filename)
	result := &models.OCRResult{
		Filename:   filename,
		Text:       "extracted",
		Confidence: enum.ConfidenceLow,
		Success:    !s.fail,
	}
	if s.fail {
		result.Confidence = enum.ConfidenceFailed
		result.Error = "boom"
	}
	return result
}

type stubDispatcher struct {
	delivered []*models.OCRResult
	err       error
}

func (s *stubDispatcher) Deliver(ctx context.Context, result *models.OCRResult, original []byte, recipient string) error {
	s.delivered = append(s.delivered, result)
	return s.err
}

func (s *stubDispatcher) SetRecipient(address string) {}

func testAccount() *models.AccountConfig {
	return &models.AccountConfig{
		EmailAddress:   "inbox@example.com",
		Password:       "secret",
		IMAPHost:       "imap.example.com",
		IMAPPort:       993,
		SMTPHost:       "smtp.example.com",
		SMTPPort:       587,
		AllowedSenders: []string{"alice@example.com"},
	}
}

func pdfAttachment(name string) models.Attachment {
	return models.Attachment{
		Filename:    name,
		ContentType: "application/pdf",
		Size:        8,
		Data:        []byte("%PDF-1.4"),
		Disposition: "attachment",
	}
}

func newTestPoller(fetch *stubFetcher, extractor *stubOCR, dispatcher *stubDispatcher) *Poller {
	p := NewPoller(testAccount(), extractor, dispatcher, 100, getLogger())
	p.fetch = fetch
	return p
}

func TestCycle_ProcessesAllowedMessage(t *testing.T) {
	// Arrange
	fetch := &stubFetcher{messages: []*models.InboundMessage{
		{
			MessageID:   "msg-1@example.com",
			Sender:      "Alice Smith <alice@example.com>",
			Attachments: []models.Attachment{pdfAttachment("notes.pdf")},
		},
	}}
	extractor := &stubOCR{}
	dispatcher := &stubDispatcher{}
	poller := newTestPoller(fetch, extractor, dispatcher)

	// Act
	err := poller.cycle(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.pdf"}, extractor.processed)
	require.Len(t, dispatcher.delivered, 1)
	assert.Equal(t, 1, poller.Stats().ProcessedCount)
}

func TestCycle_MessageAttemptedAtMostOnce(t *testing.T) {
	// Arrange
	fetch := &stubFetcher{messages: []*models.InboundMessage{
		{
			MessageID:   "msg-1@example.com",
			Sender:      "alice@example.com",
			Attachments: []models.Attachment{pdfAttachment("notes.pdf")},
		},
	}}
	extractor := &stubOCR{}
	dispatcher := &stubDispatcher{}
	poller := newTestPoller(fetch, extractor, dispatcher)

	// Act: the same message shows up in two consecutive cycles
	require.NoError(t, poller.cycle(context.Background()))
	require.NoError(t, poller.cycle(context.Background()))

	// Assert
	assert.Len(t, extractor.processed, 1, "redelivered message must not be reprocessed")
	assert.Len(t, dispatcher.delivered, 1)
}

func TestCycle_FailedProcessingIsNotRetried(t *testing.T) {
	// Arrange
	fetch := &stubFetcher{messages: []*models.InboundMessage{
		{
			MessageID:   "msg-1@example.com",
			Sender:      "alice@example.com",
			Attachments: []models.Attachment{pdfAttachment("notes.pdf")},
		},
	}}
	extractor := &stubOCR{}
	dispatcher := &stubDispatcher{err: errors.New("delivery exhausted")}
	poller := newTestPoller(fetch, extractor, dispatcher)

	// Act
	require.NoError(t, poller.cycle(context.Background()))
	require.NoError(t, poller.cycle(context.Background()))

	// Assert: marked attempted before the failed delivery, so one attempt only
	assert.Len(t, extractor.processed, 1)
	assert.Zero(t, poller.Stats().ProcessedCount)
}

func TestCycle_UnlistedSenderSkipped(t *testing.T) {
	// Arrange
	fetch := &stubFetcher{messages: []*models.InboundMessage{
		{
			MessageID:   "msg-2@example.com",
			Sender:      "mallory@evil.example",
			Attachments: []models.Attachment{pdfAttachment("notes.pdf")},
		},
	}}
	extractor := &stubOCR{}
	dispatcher := &stubDispatcher{}
	poller := newTestPoller(fetch, extractor, dispatcher)

	// Act
	require.NoError(t, poller.cycle(context.Background()))

	// Assert
	assert.Empty(t, extractor.processed)
	assert.Empty(t, dispatcher.delivered)
}

func TestCycle_SkippedSenderReevaluatedOnRedelivery(t *testing.T) {
	// Arrange
	fetch := &stubFetcher{messages: []*models.InboundMessage{
		{
			MessageID:   "msg-2@example.com",
			Sender:      "mallory@evil.example",
			Attachments: []models.Attachment{pdfAttachment("notes.pdf")},
		},
	}}
	extractor := &stubOCR{}
	dispatcher := &stubDispatcher{}
	poller := newTestPoller(fetch, extractor, dispatcher)

	// Act: first cycle skips the unlisted sender without marking it
	require.NoError(t, poller.cycle(context.Background()))
	assert.False(t, poller.seen.Contains("msg-2@example.com"))

	// the sender gets whitelisted between cycles and the server redelivers
	poller.account.AllowedSenders = append(poller.account.AllowedSenders, "mallory@evil.example")
	require.NoError(t, poller.cycle(context.Background()))

	// Assert
	assert.Equal(t, []string{"notes.pdf"}, extractor.processed)
	assert.True(t, poller.seen.Contains("msg-2@example.com"))
}

func TestCycle_InvalidAttachmentsFiltered(t *testing.T) {
	// Arrange
	fetch := &stubFetcher{messages: []*models.InboundMessage{
		{
			MessageID: "msg-3@example.com",
			Sender:    "alice@example.com",
			Attachments: []models.Attachment{
				{Filename: "readme.txt", ContentType: "text/plain", Data: []byte("hi"), Disposition: "attachment"},
				{Filename: "logo.png", ContentType: "image/png", Data: []byte("png"), Disposition: "inline"},
				pdfAttachment("scan.pdf"),
			},
		},
	}}
	extractor := &stubOCR{}
	dispatcher := &stubDispatcher{}
	poller := newTestPoller(fetch, extractor, dispatcher)

	// Act
	require.NoError(t, poller.cycle(context.Background()))

	// Assert
	assert.Equal(t, []string{"scan.pdf"}, extractor.processed)
}

func TestStartStop(t *testing.T) {
	// Arrange
	fetch := &stubFetcher{}
	poller := newTestPoller(fetch, &stubOCR{}, &stubDispatcher{})

	// Act
	poller.Start(context.Background(), 50*time.Millisecond)
	assert.True(t, poller.Running())

	// second start is a no-op
	poller.Start(context.Background(), 50*time.Millisecond)

	time.Sleep(120 * time.Millisecond)
	poller.Stop()

	// Assert
	assert.False(t, poller.Running())
	assert.GreaterOrEqual(t, fetch.calls, 1)

	// Stop on a stopped poller is safe
	poller.Stop()
}

func TestCycle_FetchErrorRecorded(t *testing.T) {
	// Arrange
	fetch := &stubFetcher{err: errors.New("connection refused")}
	poller := newTestPoller(fetch, &stubOCR{}, &stubDispatcher{})

	// Act
	err := poller.cycle(context.Background())

	// Assert
	require.Error(t, err)
}
