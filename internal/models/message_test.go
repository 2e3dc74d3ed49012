package models

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/docrelay/docrelay/internal/enum"
	ers "github.com/docrelay/docrelay/internal/errors"
)

func TestAttachmentIsValid(t *testing.T) {
	tests := []struct {
		name       string
		attachment Attachment
		want       bool
	}{
		{
			"pdf attachment",
			Attachment{Filename: "notes.pdf", ContentType: "application/pdf", Disposition: "attachment"},
			true,
		},
		{
			"png attachment",
			Attachment{Filename: "scan.PNG", ContentType: "image/png", Disposition: "attachment"},
			true,
		},
		{
			"jpg attachment",
			Attachment{Filename: "photo.jpg", ContentType: "image/jpeg", Disposition: "attachment"},
			true,
		},
		{
			"jpeg attachment",
			Attachment{Filename: "photo.jpeg", ContentType: "image/jpeg", Disposition: "attachment"},
			true,
		},
		{
			"content type with charset parameter",
			Attachment{Filename: "notes.pdf", ContentType: "application/pdf; name=notes.pdf", Disposition: "attachment"},
			true,
		},
		{
			"unsupported extension",
			Attachment{Filename: "notes.txt", ContentType: "text/plain", Disposition: "attachment"},
			false,
		},
		{
			"extension and content type disagree",
			Attachment{Filename: "notes.pdf", ContentType: "image/png", Disposition: "attachment"},
			false,
		},
		{
			"inline disposition rejected",
			Attachment{Filename: "logo.png", ContentType: "image/png", Disposition: "inline"},
			false,
		},
		{
			"no extension",
			Attachment{Filename: "README", ContentType: "application/pdf", Disposition: "attachment"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.attachment.IsValid())
		})
	}
}

func TestInboundMessageValidAttachments(t *testing.T) {
	// Arrange
	msg := &InboundMessage{
		MessageID: "msg-1@example.com",
		Sender:    "alice@example.com",
		Attachments: []Attachment{
			{Filename: "notes.pdf", ContentType: "application/pdf", Disposition: "attachment"},
			{Filename: "readme.txt", ContentType: "text/plain", Disposition: "attachment"},
			{Filename: "logo.png", ContentType: "image/png", Disposition: "inline"},
			{Filename: "scan.png", ContentType: "image/png", Disposition: "attachment"},
		},
	}

	// Act
	valid := msg.ValidAttachments()

	// Assert
	assert.Len(t, valid, 2)
	assert.Equal(t, "notes.pdf", valid[0].Filename)
	assert.Equal(t, "scan.png", valid[1].Filename)
}

func TestAccountConfigValidate(t *testing.T) {
	account := AccountConfig{
		EmailAddress:   "inbox@example.com",
		Password:       "secret",
		IMAPHost:       "imap.example.com",
		IMAPPort:       993,
		SMTPHost:       "smtp.example.com",
		SMTPPort:       587,
		AllowedSenders: []string{"alice@example.com"},
	}

	assert.NoError(t, account.Validate())

	secured := account
	secured.SMTPSecurity = enum.EmailSecurityTLS
	assert.NoError(t, secured.Validate())

	secured.SMTPSecurity = "ssl3"
	assert.True(t, errors.Is(secured.Validate(), ers.ErrInvalidSecurity))
}
