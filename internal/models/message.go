package models

import (
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// expected content type per accepted extension
var attachmentContentTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// Attachment is one file pulled out of an inbound message.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int
	Data        []byte
	Disposition string
}

// Extension returns the lowercased filename extension.
func (a *Attachment) Extension() string {
	return strings.ToLower(filepath.Ext(a.Filename))
}

// IsValid reports whether the attachment is processable: the extension must
// be one of .pdf/.png/.jpg/.jpeg, the declared content type must agree with
// the extension, and the part must be marked as an attachment. Inline parts
// that merely happen to have a matching extension are rejected.
func (a *Attachment) IsValid() bool {
	expected, ok := attachmentContentTypes[a.Extension()]
	if !ok {
		return false
	}
	if !strings.EqualFold(a.Disposition, "attachment") {
		return false
	}

	declared, _, err := mime.ParseMediaType(a.ContentType)
	if err != nil {
		declared = strings.ToLower(strings.TrimSpace(a.ContentType))
	}
	return strings.EqualFold(declared, expected)
}

// InboundMessage is one unread mailbox item, fetched fresh each poll cycle
// and discarded after processing.
type InboundMessage struct {
	MessageID   string
	Sender      string
	Subject     string
	ReceivedAt  time.Time
	Attachments []Attachment
}

// ValidAttachments filters the message's attachments down to processable
// ones.
func (m *InboundMessage) ValidAttachments() []Attachment {
	valid := make([]Attachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		if a.IsValid() {
			valid = append(valid, a)
		}
	}
	return valid
}
