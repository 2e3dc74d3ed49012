package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"

	"github.com/docrelay/docrelay/interfaces"
	"github.com/docrelay/docrelay/internal/enum"
	ers "github.com/docrelay/docrelay/internal/errors"
	"github.com/docrelay/docrelay/internal/logger"
	"github.com/docrelay/docrelay/internal/models"
	"github.com/docrelay/docrelay/internal/tracing"
	"github.com/docrelay/docrelay/internal/utils"
)

const base64LineLength = 76

type SMTPSender struct {
	account *models.AccountConfig
	log     logger.Logger
}

func NewSMTPSender(account *models.AccountConfig, log logger.Logger) interfaces.MailSender {
	return &SMTPSender{
		account: account,
		log:     log,
	}
}

func (s *SMTPSender) Send(ctx context.Context, email *models.OutboundEmail) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPSender.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, s.account.EmailAddress)

	err := s.validateEmail(ctx, email)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	buffer := bytes.NewBuffer(nil)
	err = s.buildMessage(ctx, email, buffer)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	err = s.sendToServer(ctx, email.From, []string{email.To}, buffer)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	s.log.Infof("Email %s sent to %s", email.MessageID, email.To)
	return nil
}

// TestConnection verifies the SMTP server is reachable and the account
// credentials authenticate, without sending anything.
func (s *SMTPSender) TestConnection(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPSender.TestConnection")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, s.account.EmailAddress)

	client, err := s.connect()
	if err != nil {
		tracing.TraceErr(span, err)
		return ers.ErrConnection
	}
	defer client.Close()

	auth := smtp.PlainAuth("", s.account.EmailAddress, s.account.Password, s.account.SMTPHost)
	if err = client.Auth(auth); err != nil {
		err = fmt.Errorf("SMTP authentication failed: %w", err)
		tracing.TraceErr(span, err)
		return ers.ErrAuthentication
	}

	return client.Quit()
}

func (s *SMTPSender) validateEmail(ctx context.Context, email *models.OutboundEmail) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SMTPSender.validateEmail")
	defer span.Finish()

	if email == nil {
		err := fmt.Errorf("email cannot be nil")
		tracing.TraceErr(span, err)
		return err
	}

	if email.To == "" {
		tracing.TraceErr(span, ers.ErrNoRecipient)
		return ers.ErrNoRecipient
	}

	validation := mailvalidate.ValidateEmailSyntax(email.To)
	if !validation.IsValid {
		err := fmt.Errorf("recipient address is not valid: %s", email.To)
		tracing.TraceErr(span, err)
		return err
	}

	if email.From == "" {
		email.From = s.account.EmailAddress
	}

	if email.BodyText == "" && email.BodyHTML == "" {
		err := fmt.Errorf("email must have either text or HTML content")
		tracing.TraceErr(span, err)
		return err
	}

	if email.MessageID == "" {
		email.MessageID = utils.GenerateMessageID(utils.ExtractDomainFromEmail(email.From), email.Subject)
	}

	return nil
}

// buildMessage assembles the full RFC 2045 message: a multipart/mixed
// envelope holding a multipart/alternative text+HTML pair and, when
// present, the base64-encoded source attachment.
func (s *SMTPSender) buildMessage(ctx context.Context, email *models.OutboundEmail, buffer *bytes.Buffer) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPSender.buildMessage")
	defer span.Finish()

	writer := multipart.NewWriter(buffer)

	messageID := email.MessageID
	if !strings.HasPrefix(messageID, "<") {
		messageID = fmt.Sprintf("<%s>", messageID)
	}

	headers := map[string]string{
		"From":         email.From,
		"To":           email.To,
		"Subject":      email.Subject,
		"Message-ID":   messageID,
		"Date":         time.Now().Format(time.RFC1123Z),
		"MIME-Version": "1.0",
		"Content-Type": "multipart/mixed; boundary=" + writer.Boundary(),
	}
	writeHeaders(headers, buffer)

	if err := s.addBodyParts(ctx, writer, email); err != nil {
		return err
	}

	if email.Attachment != nil {
		if err := s.addAttachment(ctx, writer, email.Attachment); err != nil {
			return err
		}
	}

	return writer.Close()
}

// addBodyParts nests a multipart/alternative part carrying the plain text
// and HTML renditions of the notification body.
func (s *SMTPSender) addBodyParts(ctx context.Context, writer *multipart.Writer, email *models.OutboundEmail) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SMTPSender.addBodyParts")
	defer span.Finish()

	altBuffer := bytes.NewBuffer(nil)
	altWriter := multipart.NewWriter(altBuffer)

	if email.BodyText != "" {
		textPart, err := altWriter.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"text/plain; charset=UTF-8"},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			err = fmt.Errorf("failed to create text part: %w", err)
			tracing.TraceErr(span, err)
			return err
		}
		if _, err = textPart.Write([]byte(email.BodyText)); err != nil {
			err = fmt.Errorf("failed to write text content: %w", err)
			tracing.TraceErr(span, err)
			return err
		}
	}

	if email.BodyHTML != "" {
		htmlPart, err := altWriter.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"text/html; charset=UTF-8"},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			err = fmt.Errorf("failed to create HTML part: %w", err)
			tracing.TraceErr(span, err)
			return err
		}
		if _, err = htmlPart.Write([]byte(email.BodyHTML)); err != nil {
			err = fmt.Errorf("failed to write HTML content: %w", err)
			tracing.TraceErr(span, err)
			return err
		}
	}

	if err := altWriter.Close(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	bodyPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"multipart/alternative; boundary=" + altWriter.Boundary()},
	})
	if err != nil {
		err = fmt.Errorf("failed to create body part: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	_, err = bodyPart.Write(altBuffer.Bytes())
	if err != nil {
		err = fmt.Errorf("failed to write body content: %w", err)
		tracing.TraceErr(span, err)
	}
	return err
}

func (s *SMTPSender) addAttachment(ctx context.Context, writer *multipart.Writer, attachment *models.Attachment) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SMTPSender.addAttachment")
	defer span.Finish()
	span.SetTag("filename", attachment.Filename)

	attachmentPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {fmt.Sprintf("%s; name=%q", attachment.ContentType, attachment.Filename)},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", attachment.Filename)},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		err = fmt.Errorf("failed to create attachment part: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	_, err = attachmentPart.Write(wrapBase64(attachment.Data))
	if err != nil {
		err = fmt.Errorf("failed to write attachment content: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (s *SMTPSender) sendToServer(ctx context.Context, from string, recipients []string, buffer *bytes.Buffer) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPSender.sendToServer")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("smtp_host", s.account.SMTPHost)
	span.LogKV("smtp_port", s.account.SMTPPort)
	span.LogKV("from_address", from)

	auth := smtp.PlainAuth("", s.account.EmailAddress, s.account.Password, s.account.SMTPHost)

	return s.sendMail(ctx, auth, from, recipients, buffer)
}

// securityMode resolves the account's transport choice, defaulting to
// opportunistic STARTTLS.
func (s *SMTPSender) securityMode() enum.EmailSecurity {
	if s.account.SMTPSecurity == "" {
		return enum.EmailSecurityStartTLS
	}
	return s.account.SMTPSecurity
}

// connect dials the SMTP endpoint according to the account's security mode:
// implicit TLS, plaintext upgraded via STARTTLS when the server offers it,
// or plaintext throughout.
func (s *SMTPSender) connect() (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", s.account.SMTPHost, s.account.SMTPPort)
	tlsConfig := &tls.Config{
		ServerName: s.account.SMTPHost,
	}

	if s.securityMode() == enum.EmailSecurityTLS {
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 30 * time.Second}, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		client, err := smtp.NewClient(conn, s.account.SMTPHost)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create SMTP client: %w", err)
		}
		return client, nil
	}

	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	client, err := smtp.NewClient(conn, s.account.SMTPHost)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if s.securityMode() == enum.EmailSecurityStartTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err = client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	return client, nil
}

func (s *SMTPSender) sendMail(ctx context.Context, auth smtp.Auth, from string, recipients []string, buffer *bytes.Buffer) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SMTPSender.sendMail")
	defer span.Finish()

	client, err := s.connect()
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	// Authenticate after TLS is established
	if err = client.Auth(auth); err != nil {
		err = fmt.Errorf("SMTP authentication failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err = client.Mail(from); err != nil {
		err = fmt.Errorf("SMTP MAIL command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	for _, recipient := range recipients {
		if err = client.Rcpt(recipient); err != nil {
			err = fmt.Errorf("SMTP RCPT command failed for %s: %w", recipient, err)
			tracing.TraceErr(span, err)
			return err
		}
	}

	dataWriter, err := client.Data()
	if err != nil {
		err = fmt.Errorf("SMTP DATA command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	_, err = dataWriter.Write(buffer.Bytes())
	if err != nil {
		err = fmt.Errorf("failed to write email data: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	err = dataWriter.Close()
	if err != nil {
		err = fmt.Errorf("failed to close data writer: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return client.Quit()
}

// writeHeaders writes email headers to the buffer
func writeHeaders(headers map[string]string, buffer *bytes.Buffer) {
	for k, v := range headers {
		buffer.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	buffer.WriteString("\r\n")
}

// wrapBase64 encodes data and folds it at the RFC 2045 line limit.
func wrapBase64(data []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(data)
	buffer := bytes.NewBuffer(nil)
	for len(encoded) > base64LineLength {
		buffer.WriteString(encoded[:base64LineLength])
		buffer.WriteString("\r\n")
		encoded = encoded[base64LineLength:]
	}
	buffer.WriteString(encoded)
	buffer.WriteString("\r\n")
	return buffer.Bytes()
}
