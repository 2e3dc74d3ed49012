package models

import (
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"

	"github.com/docrelay/docrelay/internal/enum"
	ers "github.com/docrelay/docrelay/internal/errors"
)

// AccountConfig holds the credentials and policy for one watched mailbox.
// It is immutable once a polling session starts; the poller created from it
// is its sole owner.
type AccountConfig struct {
	EmailAddress string `json:"emailAddress"`
	Password     string `json:"password"`
	// IMAP endpoint
	IMAPHost string `json:"imapHost"`
	IMAPPort int    `json:"imapPort"`
	// SMTP endpoint
	SMTPHost string `json:"smtpHost"`
	SMTPPort int    `json:"smtpPort"`
	// SMTPSecurity selects the transport for outbound mail. Empty means
	// opportunistic STARTTLS.
	SMTPSecurity enum.EmailSecurity `json:"smtpSecurity,omitempty"`
	// AllowedSenders is the sender whitelist. Matching is case-insensitive
	// substring containment against the bare sender address.
	AllowedSenders []string `json:"allowedSenders"`
	// Optional per-account recognition service key; the process-wide key is
	// used when empty.
	OCRAPIKey string `json:"ocrApiKey,omitempty"`
	// Optional default target for result notifications.
	NotificationEmail string `json:"notificationEmail,omitempty"`
	// PollInterval between mailbox checks. Zero means the application
	// default.
	PollInterval time.Duration `json:"pollInterval,omitempty"`
}

// Validate checks required fields at construction time.
func (c *AccountConfig) Validate() error {
	syntax := mailvalidate.ValidateEmailSyntax(c.EmailAddress)
	if !syntax.IsValid {
		return ers.ErrInvalidAddress
	}
	if c.Password == "" {
		return ers.ErrMissingCredentials
	}
	if len(c.AllowedSenders) == 0 {
		return ers.ErrEmptyWhitelist
	}
	if c.IMAPPort < 1 || c.IMAPPort > 65535 || c.SMTPPort < 1 || c.SMTPPort > 65535 {
		return ers.ErrInvalidPort
	}
	switch c.SMTPSecurity {
	case "", enum.EmailSecurityTLS, enum.EmailSecurityStartTLS, enum.EmailSecurityNone:
	default:
		return ers.ErrInvalidSecurity
	}
	return nil
}
