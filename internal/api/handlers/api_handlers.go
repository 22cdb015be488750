package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"facegate/internal/api/middleware"
	"facegate/internal/core/errdefs"
	"facegate/internal/core/models"
	"facegate/internal/core/processor"
	"facegate/internal/core/session"
	"facegate/internal/render"
	"facegate/internal/server/sse"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Users ist die Sicht der API auf die Identitäts-Registry
type Users interface {
	Len() int
	Get(id int) (models.Identity, error)
	Search(query string) []models.Identity
	Rename(id int, name string) (models.Identity, error)
	Delete(id int) error
}

// Controller steuert den Capture-Worker
type Controller interface {
	StartEnroll(name string) (session.State, error)
	StartRecapture(id int) (session.State, error)
	StartVerify() (session.State, error)
	Stop() session.State
	State() session.State
	Stats() processor.Stats
}

// VerificationLog liefert das Verifikationsprotokoll
type VerificationLog interface {
	ListVerifications(limit int) ([]models.VerificationEvent, error)
}

// APIHandler behandelt API-Anfragen für das System
type APIHandler struct {
	users      Users
	controller Controller
	previews   *render.PreviewStore
	hub        *sse.Hub
	translator *middleware.Translator
	audit      VerificationLog
}

// NewAPIHandler erstellt einen neuen API-Handler
func NewAPIHandler(users Users, controller Controller, previews *render.PreviewStore, hub *sse.Hub,
	translator *middleware.Translator, audit VerificationLog) *APIHandler {
	return &APIHandler{
		users:      users,
		controller: controller,
		previews:   previews,
		hub:        hub,
		translator: translator,
		audit:      audit,
	}
}

// RegisterRoutes registriert alle API-Routen
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Session-Endpunkte
	router.GET("/session", h.GetSession)
	router.POST("/session/enroll", h.StartEnroll)
	router.POST("/session/recapture/:id", h.StartRecapture)
	router.POST("/session/verify", h.StartVerify)
	router.POST("/session/stop", h.StopSession)

	// Identitäts-Endpunkte
	router.GET("/users", h.ListUsers)
	router.GET("/users/:id", h.GetUser)
	router.PUT("/users/:id", h.RenameUser)
	router.DELETE("/users/:id", h.DeleteUser)

	// Live-Ansicht
	router.GET("/events", h.StreamEvents)
	router.GET("/preview.jpg", h.GetPreview)

	// System-Endpunkte
	router.GET("/status", h.GetStatus)
	router.GET("/verifications", h.ListVerifications)
}

type nameRequest struct {
	Name string `json:"name"`
}

// StatusFor ordnet einen Domänenfehler einem HTTP-Status zu
func StatusFor(err error) int {
	switch {
	case errdefs.IsValidation(err):
		return http.StatusBadRequest
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, errdefs.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, errdefs.ErrModelEmpty):
		return http.StatusPreconditionFailed
	case errors.Is(err, errdefs.ErrCameraUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid id %q", c.Param("id"))})
		return 0, false
	}
	return id, true
}

// GetSession gibt den aktuellen Zustand der Session zurück
func (h *APIHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.State())
}

// StartEnroll startet die Registrierung einer neuen Person
func (h *APIHandler) StartEnroll(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}

	st, err := h.controller.StartEnroll(req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, st)
}

// StartRecapture startet die Neuaufnahme einer bestehenden Identität
func (h *APIHandler) StartRecapture(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	st, err := h.controller.StartRecapture(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, st)
}

// StartVerify startet die Verifikation
func (h *APIHandler) StartVerify(c *gin.Context) {
	st, err := h.controller.StartVerify()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, st)
}

// StopSession beendet die aktive Session; ohne aktive Session passiert nichts
func (h *APIHandler) StopSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Stop())
}

// ListUsers liefert alle Identitäten, optional gefiltert über ?q=
func (h *APIHandler) ListUsers(c *gin.Context) {
	users := h.users.Search(c.Query("q"))
	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"count": len(users),
	})
}

// GetUser gibt eine einzelne Identität zurück
func (h *APIHandler) GetUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	identity, err := h.users.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, identity)
}

// RenameUser benennt eine Identität um
func (h *APIHandler) RenameUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}

	identity, err := h.users.Rename(id, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, identity)
}

// DeleteUser löscht eine Identität
func (h *APIHandler) DeleteUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.users.Delete(id); err != nil {
		respondError(c, err)
		return
	}
	log.Infof("Identity %d deleted via API", id)
	c.JSON(http.StatusOK, gin.H{"message": "Identity deleted successfully"})
}
