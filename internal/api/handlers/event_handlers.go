package handlers

import (
	"io"
	"net/http"

	"facegate/internal/api/middleware"
	"facegate/internal/core/session"
	"facegate/internal/server/sse"

	"github.com/gin-gonic/gin"
)

// FrameView ist ein Frame-Ereignis mit übersetzter Statuszeile
type FrameView struct {
	*session.FrameEvent
	Text string `json:"text"`
}

// StreamEvents behandelt SSE-Verbindungen für Echtzeit-Updates
func (h *APIHandler) StreamEvents(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	lang := middleware.Language(c)
	ctx := c.Request.Context()

	client := make(sse.Client, 10) // Puffer für 10 Nachrichten
	if !h.hub.Register(ctx, client) {
		return
	}
	defer h.hub.Unregister(client)

	// Zustand beim Verbindungsaufbau, damit der Client nicht auf den nächsten Frame warten muss
	c.SSEvent("state", h.controller.State())
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false // Hub beendet oder Client zu langsam
			}
			if msg.Frame != nil {
				c.SSEvent(msg.Event, FrameView{
					FrameEvent: msg.Frame,
					Text:       h.translator.StatusText(lang, msg.Frame.Status),
				})
			} else {
				c.SSEvent(msg.Event, h.controller.State())
			}
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// GetPreview liefert den zuletzt annotierten Frame als JPEG
func (h *APIHandler) GetPreview(c *gin.Context) {
	latest := h.previews.Latest()
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no preview available"})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("X-Frame-ID", latest.ID)
	c.Data(http.StatusOK, "image/jpeg", latest.ImageData)
}
