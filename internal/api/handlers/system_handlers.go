package handlers

import (
	"net/http"
	"strconv"

	"facegate/internal/utils"

	"github.com/gin-gonic/gin"
)

// GetStatus gibt den Systemstatus zurück
func (h *APIHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"system":      utils.GetSystemStats(h.controller, h.users.Len()),
		"session":     h.controller.State(),
		"sse_clients": h.hub.ClientCount(),
	})
}

// ListVerifications liefert die neuesten Einträge des Verifikationsprotokolls
func (h *APIHandler) ListVerifications(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive number"})
			return
		}
		limit = n
	}

	events, err := h.audit.ListVerifications(limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"verifications": events,
		"count":         len(events),
	})
}
