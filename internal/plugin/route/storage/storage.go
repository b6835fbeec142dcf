// Package storage mounts the stored-message retrieval API.
package storage

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chirino/solace-bridge/internal/bridge"
	"github.com/chirino/solace-bridge/internal/model"
	"github.com/chirino/solace-bridge/internal/store"
)

const defaultListLimit = 100

// MountRoutes mounts the storage endpoints.
func MountRoutes(r *gin.Engine, records *store.Records, b *bridge.Bridge) {
	g := r.Group("/api/storage")

	g.GET("/messages", func(c *gin.Context) {
		listMessages(c, records)
	})
	g.GET("/messages/:id", func(c *gin.Context) {
		getMessage(c, records)
	})
	g.POST("/messages/:id/republish", func(c *gin.Context) {
		republishMessage(c, b)
	})
	g.DELETE("/messages/:id", func(c *gin.Context) {
		deleteMessage(c, records)
	})
	g.GET("/status", func(c *gin.Context) {
		status := "Storage enabled (plaintext)"
		if records.Encrypted() {
			status = "Storage enabled (encrypted)"
		}
		c.JSON(http.StatusOK, gin.H{"status": status, "encrypted": records.Encrypted()})
	})
}

func listMessages(c *gin.Context, records *store.Records) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	msgs, err := records.ListMessages(c.Request.Context(), limit)
	if err != nil {
		log.Error("listing stored messages failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// getMessage returns the record with its payload decrypted. Any decryption
// failure, tampering included, is reported as a generic server error so no
// cryptographic detail leaks to the client.
func getMessage(c *gin.Context, records *store.Records) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	rec, err := records.GetMessage(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		log.Error("retrieving stored message failed", "messageId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve message"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func republishMessage(c *gin.Context, b *bridge.Bridge) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	result, err := b.Republish(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		log.Error("republishing message failed", "messageId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to republish message"})
		return
	}
	body := gin.H{
		"messageId":  result.MessageID,
		"originalId": id,
		"status":     result.Status,
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

func deleteMessage(c *gin.Context, records *store.Records) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if err := records.DeleteMessage(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		log.Error("deleting stored message failed", "messageId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
