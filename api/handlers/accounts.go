package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/docrelay/docrelay/dto"
	"github.com/docrelay/docrelay/interfaces"
	"github.com/docrelay/docrelay/internal/enum"
	ers "github.com/docrelay/docrelay/internal/errors"
	"github.com/docrelay/docrelay/internal/models"
)

const (
	defaultIMAPPort = 993
	defaultSMTPPort = 587
)

// TestConnection validates a candidate account configuration against both
// mail endpoints and registers it on success.
func TestConnection(sessionRegistry interfaces.SessionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request dto.TestConnectionRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, dto.Error("Invalid request body", err.Error()))
			return
		}

		account := &models.AccountConfig{
			EmailAddress:      request.EmailAddress,
			Password:          request.Password,
			IMAPHost:          request.IMAPHost,
			IMAPPort:          request.IMAPPort,
			SMTPHost:          request.SMTPHost,
			SMTPPort:          request.SMTPPort,
			SMTPSecurity:      enum.EmailSecurity(request.SMTPSecurity),
			AllowedSenders:    request.AllowedSenders,
			OCRAPIKey:         request.OCRAPIKey,
			NotificationEmail: request.NotificationEmail,
		}
		if account.IMAPPort == 0 {
			account.IMAPPort = defaultIMAPPort
		}
		if account.SMTPPort == 0 {
			account.SMTPPort = defaultSMTPPort
		}

		err := sessionRegistry.TestAndConfigure(c.Request.Context(), account)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, dto.Success("Connection successful", "Account configured"))
		case errors.Is(err, ers.ErrSessionActive):
			c.JSON(http.StatusConflict, dto.Warning("Polling already active", "Stop the session before reconfiguring"))
		case errors.Is(err, ers.ErrInvalidAddress),
			errors.Is(err, ers.ErrMissingCredentials),
			errors.Is(err, ers.ErrEmptyWhitelist),
			errors.Is(err, ers.ErrInvalidPort),
			errors.Is(err, ers.ErrInvalidSecurity):
			c.JSON(http.StatusBadRequest, dto.Error("Invalid account configuration", err.Error()))
		case errors.Is(err, ers.ErrAuthentication):
			c.JSON(http.StatusUnauthorized, dto.Error("Authentication failed", err.Error()))
		default:
			c.JSON(http.StatusBadGateway, dto.Error("Connection failed", err.Error()))
		}
	}
}

// StartPolling launches a polling session for a configured account.
func StartPolling(sessionRegistry interfaces.SessionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")

		err := sessionRegistry.StartPolling(c.Request.Context(), address)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, dto.Success("Polling started", address))
		case errors.Is(err, ers.ErrSessionActive):
			c.JSON(http.StatusOK, dto.Warning("Polling already active", address))
		case errors.Is(err, ers.ErrAccountNotConfigured):
			c.JSON(http.StatusNotFound, dto.Error("Account not configured", address))
		default:
			c.JSON(http.StatusInternalServerError, dto.Error("Failed to start polling", err.Error()))
		}
	}
}

// StopPolling stops the account's active session.
func StopPolling(sessionRegistry interfaces.SessionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")

		err := sessionRegistry.StopPolling(c.Request.Context(), address)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, dto.Success("Polling stopped", address))
		case errors.Is(err, ers.ErrNoActiveSession):
			c.JSON(http.StatusOK, dto.Warning("No active polling session", address))
		default:
			c.JSON(http.StatusInternalServerError, dto.Error("Failed to stop polling", err.Error()))
		}
	}
}

// AccountStatus reports whether the account is configured and polling.
func AccountStatus(sessionRegistry interfaces.SessionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")
		status := sessionRegistry.Status(c.Request.Context(), address)
		c.JSON(http.StatusOK, status)
	}
}

// SetNotificationEmail updates the default notification target.
func SetNotificationEmail(sessionRegistry interfaces.SessionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")

		var request dto.SetNotificationEmailRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, dto.Error("Invalid request body", err.Error()))
			return
		}

		err := sessionRegistry.SetNotificationEmail(c.Request.Context(), address, request.NotificationEmail)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, dto.Success("Notification email updated", request.NotificationEmail))
		case errors.Is(err, ers.ErrInvalidAddress):
			c.JSON(http.StatusBadRequest, dto.Error("Invalid notification email", request.NotificationEmail))
		case errors.Is(err, ers.ErrAccountNotConfigured):
			c.JSON(http.StatusNotFound, dto.Error("Account not configured", address))
		default:
			c.JSON(http.StatusInternalServerError, dto.Error("Failed to update notification email", err.Error()))
		}
	}
}

// DebugPolling exposes the full per-session stats snapshot.
func DebugPolling(sessionRegistry interfaces.SessionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sessionRegistry.Stats(c.Request.Context())
		c.JSON(http.StatusOK, stats.Sessions)
	}
}
