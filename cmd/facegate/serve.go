package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"facegate/internal/api/handlers"
	"facegate/internal/api/middleware"
	"facegate/internal/integrations/homeassistant"
	"facegate/internal/integrations/mqtt"
	"facegate/internal/render"
	"facegate/internal/server"
	"facegate/internal/server/sse"
	"facegate/internal/services"
	"facegate/internal/services/cleanup"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	servePort         int
	servePreviewCount int
	servePreviewQual  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service with live preview and MQTT integration",
	Long: `Start the HTTP service. Sessions are started and stopped through the API
(or the MQTT command topic); annotated frames are streamed via server-sent
events and the latest frame is served as JPEG.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Override the configured HTTP port")
	serveCmd.Flags().IntVar(&servePreviewCount, "preview-buffer", 10, "Number of annotated frames kept in memory")
	serveCmd.Flags().IntVar(&servePreviewQual, "preview-quality", 80, "JPEG quality of preview frames")
}

func runServe(cmd *cobra.Command, args []string) error {
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	translator, err := middleware.NewTranslator(cfg.I18n.DefaultLanguage)
	if err != nil {
		return fmt.Errorf("failed to load translations: %w", err)
	}

	previews := render.NewPreviewStore(servePreviewCount, servePreviewQual)
	hub := sse.NewHub()

	a, err := openCapture(previews, hub)
	if err != nil {
		return err
	}
	defer a.close()

	audit := services.NewAuditService(a.repo)
	a.runner.AddSink(audit)

	mqttClient := mqtt.NewClient(cfg.MQTT)
	if cfg.MQTT.Enabled {
		a.runner.AddSink(homeassistant.NewPublisher(mqttClient))
		mqttClient.RegisterHandler(homeassistant.NewCommandHandler(a.runner))
		if err := mqttClient.Start(); err != nil {
			// auto-reconnect keeps trying; serve HTTP regardless
			log.Warnf("MQTT unavailable at startup: %v", err)
		} else if err := homeassistant.NewDiscoveryManager(mqttClient, cfg.MQTT.HomeAssistant).Register(); err != nil {
			log.Warnf("Home Assistant discovery failed: %v", err)
		}
		defer mqttClient.Stop()
	}

	go hub.Run(ctx)
	go cleanup.NewCleanupService(a.repo, cfg.Cleanup).Start(ctx)

	api := handlers.NewAPIHandler(a.registry, a.runner, previews, hub, translator, a.repo)
	srv := server.New(cfg.Server, server.NewRouter(cfg.Server, api, translator))

	err = srv.Run(ctx)
	a.runner.Stop()
	return err
}
