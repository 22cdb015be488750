// Package server verbindet gin, Middleware und API-Handler zu einem HTTP-Server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"facegate/config"
	"facegate/internal/api/handlers"
	"facegate/internal/api/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// sessionCookie ist der Name des Cookies, in dem die Sprache gespeichert wird
const sessionCookie = "facegate"

// NewRouter erstellt den gin-Router mit allen Middlewares und API-Routen
func NewRouter(cfg config.ServerConfig, api *handlers.APIHandler, translator *middleware.Translator) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 || (len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	router.Use(cors.New(corsConfig))

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(sessionCookie, store))
	router.Use(middleware.I18n(translator))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api.RegisterRoutes(router.Group("/api"))
	return router
}

// Server ist der HTTP-Server der Anwendung
type Server struct {
	httpServer *http.Server
}

// New erstellt einen Server für handler
func New(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Addr liefert die Adresse, auf der der Server lauscht
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run startet den Server und fährt ihn herunter, sobald ctx beendet wird
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("Server stopped.")
	return nil
}
