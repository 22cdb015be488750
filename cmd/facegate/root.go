package main

import (
	"fmt"
	"io"
	"os"

	"facegate/config"
	"facegate/internal/logger"
	"facegate/internal/util/timezone"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "facegate",
	Short: "Webcam face enrollment and verification",
	Long: `facegate enrolls people from a webcam into a local LBPH face model and
verifies faces in the live stream against it. It runs headless from the
command line or as an HTTP service with a live preview and MQTT integration.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logCloser, err = logger.Init(cfg.Log)
	if err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	timezone.Initialize(cfg.Server.Timezone)
}
