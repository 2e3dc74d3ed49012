package errors

import "github.com/pkg/errors"

var (
	// configuration errors
	ErrAccountNotConfigured = errors.New("account is not configured")
	ErrEmptyWhitelist       = errors.New("at least one allowed sender is required")
	ErrInvalidAddress       = errors.New("invalid email address")
	ErrMissingCredentials   = errors.New("password is required")
	ErrInvalidPort          = errors.New("port must be between 1 and 65535")
	ErrInvalidSecurity      = errors.New("smtp security must be tls, starttls or none")

	// session errors
	ErrSessionActive   = errors.New("polling session already active")
	ErrNoActiveSession = errors.New("no active polling session")

	// transport errors
	ErrConnection     = errors.New("connection failed")
	ErrAuthentication = errors.New("authentication failed")

	// pipeline errors
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrNoRecipient         = errors.New("no notification recipient configured")
	ErrDeliveryExhausted   = errors.New("delivery failed after all retry attempts")
)
