package models

import (
	"time"

	"github.com/docrelay/docrelay/internal/enum"
)

// OCRResult is the outcome of extracting text from one attachment. Produced
// once per attachment and immutable after creation.
type OCRResult struct {
	Filename     string
	FileType     string
	FileSize     int
	ContentType  string
	Text         string
	Confidence   enum.ConfidenceTier
	ModelUsed    string
	PageCount    int
	ProcessingID string
	Success      bool
	Error        string
	CompletedAt  time.Time
}

// OutboundEmail is a fully specified notification message handed to the
// outbound transport.
type OutboundEmail struct {
	MessageID  string
	From       string
	To         string
	Subject    string
	BodyText   string
	BodyHTML   string
	Attachment *Attachment
}
