// Package messages mounts the message send API.
package messages

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chirino/solace-bridge/internal/bridge"
	"github.com/chirino/solace-bridge/internal/model"
)

// MountRoutes mounts the send endpoint and its liveness probe.
func MountRoutes(r *gin.Engine, b *bridge.Bridge) {
	g := r.Group("/api/messages")

	g.POST("", func(c *gin.Context) {
		sendMessage(c, b)
	})
	g.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func sendMessage(c *gin.Context, b *bridge.Bridge) {
	var req bridge.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := b.Send(c.Request.Context(), req)
	body := gin.H{
		"messageId":   result.MessageID,
		"status":      result.Status,
		"destination": req.Destination,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	if result.Error != "" {
		body["error"] = result.Error
	}
	switch result.Status {
	case model.StatusExcluded:
		c.JSON(http.StatusAccepted, body)
	case model.StatusFailed:
		c.JSON(http.StatusInternalServerError, body)
	default:
		c.JSON(http.StatusOK, body)
	}
}
