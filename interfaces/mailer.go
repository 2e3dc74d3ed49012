package interfaces

import (
	"context"

	"github.com/docrelay/docrelay/internal/models"
)

// MailSender is the outbound mail transport. One call delivers one fully
// formed message to one recipient, synchronously.
type MailSender interface {
	Send(ctx context.Context, email *models.OutboundEmail) error
	// TestConnection performs a one-shot connect+auth check against the
	// SMTP endpoint without sending anything.
	TestConnection(ctx context.Context) error
}

// NotificationDispatcher formats an extraction result and delivers it by
// email with bounded retry.
type NotificationDispatcher interface {
	// Deliver resolves the recipient (explicit argument wins over the
	// configured default), builds a two-part message with the original
	// attachment re-attached, and sends it with retry/backoff.
	Deliver(ctx context.Context, result *models.OCRResult, original []byte, recipient string) error
	// SetRecipient replaces the default notification target.
	SetRecipient(address string)
}
