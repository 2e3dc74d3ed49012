package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docrelay/docrelay/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status returns a snapshot of every configured account and session
func Status(sessionRegistry interfaces.SessionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sessionRegistry.Stats(c.Request.Context())
		c.JSON(http.StatusOK, stats)
	}
}
