package dto

// TestConnectionRequest carries a candidate account configuration from the
// form-handling collaborator.
type TestConnectionRequest struct {
	EmailAddress      string   `json:"emailAddress" binding:"required"`
	Password          string   `json:"password" binding:"required"`
	IMAPHost          string   `json:"imapHost" binding:"required"`
	IMAPPort          int      `json:"imapPort"`
	SMTPHost          string   `json:"smtpHost" binding:"required"`
	SMTPPort          int      `json:"smtpPort"`
	SMTPSecurity      string   `json:"smtpSecurity"`
	AllowedSenders    []string `json:"allowedSenders" binding:"required"`
	OCRAPIKey         string   `json:"ocrApiKey"`
	NotificationEmail string   `json:"notificationEmail"`
}

// SetNotificationEmailRequest updates the default notification target for a
// configured account.
type SetNotificationEmailRequest struct {
	NotificationEmail string `json:"notificationEmail" binding:"required"`
}
