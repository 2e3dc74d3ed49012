package imap

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	ers "github.com/docrelay/docrelay/internal/errors"
	"github.com/docrelay/docrelay/internal/logger"
	"github.com/docrelay/docrelay/internal/models"
	"github.com/docrelay/docrelay/internal/tracing"
	"github.com/docrelay/docrelay/internal/utils"
)

const inboxFolder = "INBOX"

// fetcher pulls unseen messages from a mailbox. The poller depends on this
// rather than a live IMAP connection so cycles can be driven in tests.
type fetcher interface {
	FetchUnseen(ctx context.Context) ([]*models.InboundMessage, error)
}

type imapFetcher struct {
	account *models.AccountConfig
	log     logger.Logger
}

func newIMAPFetcher(account *models.AccountConfig, log logger.Logger) *imapFetcher {
	return &imapFetcher{
		account: account,
		log:     log,
	}
}

// CheckConnection verifies the IMAP server is reachable and the account
// credentials authenticate.
func CheckConnection(ctx context.Context, account *models.AccountConfig, log logger.Logger) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "imap.CheckConnection")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.EmailAddress)

	c, err := connect(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	defer c.Logout()

	log.Infof("IMAP connection verified for %s", account.EmailAddress)
	return nil
}

// connect dials the IMAP server over TLS and logs in.
func connect(ctx context.Context, account *models.AccountConfig) (*client.Client, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "imap.connect")
	defer span.Finish()
	span.SetTag("server", account.IMAPHost)
	span.SetTag("port", account.IMAPPort)

	serverAddr := fmt.Sprintf("%s:%d", account.IMAPHost, account.IMAPPort)

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	tlsConfig := &tls.Config{
		ServerName: account.IMAPHost,
	}

	c, err := client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	if err != nil {
		err = fmt.Errorf("%w: failed to connect to %s: %v", ers.ErrConnection, serverAddr, err)
		tracing.TraceErr(span, err)
		return nil, err
	}

	c.Timeout = 30 * time.Second
	caps, err := c.Capability()
	if err != nil {
		c.Logout()
		err = fmt.Errorf("%w: capability error: %v", ers.ErrConnection, err)
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogFields(tracingLog.String("server.capabilities", fmt.Sprintf("%v", caps)))

	err = c.Login(account.EmailAddress, account.Password)
	if err != nil {
		c.Logout()
		err = fmt.Errorf("%w: login failed for %s: %v", ers.ErrAuthentication, account.EmailAddress, err)
		tracing.TraceErr(span, err)
		return nil, err
	}

	// Reset timeout for normal operations
	c.Timeout = 0

	return c, nil
}

// FetchUnseen opens a fresh connection, pulls every unseen message from
// INBOX with its full body, and logs out. Fetching without PEEK marks the
// messages seen on the server, so the cache only has to cover redelivery.
func (f *imapFetcher) FetchUnseen(ctx context.Context) ([]*models.InboundMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "imapFetcher.FetchUnseen")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, f.account.EmailAddress)

	c, err := connect(ctx, f.account)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer c.Logout()

	c.Timeout = 30 * time.Second
	mbox, err := c.Select(inboxFolder, false)
	c.Timeout = 0
	if err != nil {
		err = fmt.Errorf("error selecting folder: %w", err)
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogFields(tracingLog.Int("mailbox.messages", int(mbox.Messages)))

	criteria := goimap.NewSearchCriteria()
	criteria.WithoutFlags = []string{goimap.SeenFlag}

	c.Timeout = 30 * time.Second
	ids, err := c.Search(criteria)
	c.Timeout = 0
	if err != nil {
		err = fmt.Errorf("error searching for unseen messages: %w", err)
		tracing.TraceErr(span, err)
		return nil, err
	}

	if len(ids) == 0 {
		return nil, nil
	}

	f.log.Infof("[%s] Found %d unseen message(s)", f.account.EmailAddress, len(ids))

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(ids...)

	section := &goimap.BodySectionName{}
	items := []goimap.FetchItem{section.FetchItem(), goimap.FetchEnvelope, goimap.FetchUid}

	messages := make(chan *goimap.Message, 10)
	done := make(chan error, 1)

	c.Timeout = 60 * time.Second
	go func() {
		done <- c.Fetch(seqSet, items, messages)
	}()

	var result []*models.InboundMessage
	for msg := range messages {
		parsed, err := f.parseMessage(msg, section)
		if err != nil {
			f.log.Errorf("[%s] Failed to parse message %d: %v", f.account.EmailAddress, msg.SeqNum, err)
			tracing.TraceErr(span, err)
			continue
		}
		result = append(result, parsed)
	}
	c.Timeout = 0

	if err := <-done; err != nil {
		err = fmt.Errorf("error fetching messages: %w", err)
		tracing.TraceErr(span, err)
		return result, err
	}

	return result, nil
}

// parseMessage turns a raw IMAP message into an InboundMessage, extracting
// attachments with enmime.
func (f *imapFetcher) parseMessage(msg *goimap.Message, section *goimap.BodySectionName) (*models.InboundMessage, error) {
	literal := msg.GetBody(section)
	if literal == nil {
		return nil, fmt.Errorf("message %d has no body section", msg.SeqNum)
	}

	raw, err := io.ReadAll(literal)
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	messageID := strings.Trim(envelope.GetHeader("Message-ID"), "<> ")
	if messageID == "" {
		// Some senders omit Message-ID; the UID is stable per mailbox
		messageID = fmt.Sprintf("uid-%d@%s", msg.Uid, f.account.IMAPHost)
	}

	receivedAt := time.Now()
	if msg.Envelope != nil && !msg.Envelope.Date.IsZero() {
		receivedAt = msg.Envelope.Date
	}

	inbound := &models.InboundMessage{
		MessageID:  messageID,
		Sender:     utils.ExtractEmailAddress(envelope.GetHeader("From")),
		Subject:    envelope.GetHeader("Subject"),
		ReceivedAt: receivedAt,
	}

	for _, part := range envelope.Attachments {
		inbound.Attachments = append(inbound.Attachments, models.Attachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        len(part.Content),
			Data:        part.Content,
			Disposition: "attachment",
		})
	}
	for _, part := range envelope.Inlines {
		inbound.Attachments = append(inbound.Attachments, models.Attachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        len(part.Content),
			Data:        part.Content,
			Disposition: "inline",
		})
	}

	return inbound, nil
}
