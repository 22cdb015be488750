package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Camera     CameraConfig     `mapstructure:"camera"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Recognizer RecognizerConfig `mapstructure:"recognizer"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host          string   `mapstructure:"host"`
	Port          int      `mapstructure:"port"`
	DataDir       string   `mapstructure:"data_dir"`
	Timezone      string   `mapstructure:"timezone"`
	SessionSecret string   `mapstructure:"session_secret"`
	CORSOrigins   []string `mapstructure:"cors_origins"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen (SQLite)
type DBConfig struct {
	File string `mapstructure:"file"`
}

// CameraConfig beschreibt die Videoquelle
type CameraConfig struct {
	Device      int           `mapstructure:"device"`       // Index des Aufnahmegeräts
	Width       int           `mapstructure:"width"`        // gewünschte Aufnahmebreite
	Height      int           `mapstructure:"height"`       // gewünschte Aufnahmehöhe
	StopTimeout time.Duration `mapstructure:"stop_timeout"` // maximale Wartezeit auf den Worker beim Stoppen
}

// DetectorConfig enthält die Parameter des Haar-Cascade-Gesichtsdetektors
type DetectorConfig struct {
	CascadeFile  string  `mapstructure:"cascade_file"`
	ScaleFactor  float64 `mapstructure:"scale_factor"`
	MinNeighbors int     `mapstructure:"min_neighbors"`
	MinSize      int     `mapstructure:"min_size"` // minimale Gesichtsgröße in Pixeln (quadratisch)
}

// RecognizerConfig enthält die Parameter des LBPH-Erkenners
type RecognizerConfig struct {
	ModelFile       string  `mapstructure:"model_file"`
	Threshold       float64 `mapstructure:"threshold"`        // Distanz unterhalb dieses Werts gilt als Treffer
	SampleSize      int     `mapstructure:"sample_size"`      // Kantenlänge der normalisierten Gesichtsausschnitte
	SamplesRequired int     `mapstructure:"samples_required"` // Anzahl Samples pro Aufnahme-Sitzung
	Radius          int     `mapstructure:"radius"`
	Neighbors       int     `mapstructure:"neighbors"`
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	Broker        string              `mapstructure:"broker"`
	Port          int                 `mapstructure:"port"`
	Username      string              `mapstructure:"username"`
	Password      string              `mapstructure:"password"`
	ClientID      string              `mapstructure:"client_id"`
	TopicPrefix   string              `mapstructure:"topic_prefix"`
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant"`
}

// HomeAssistantConfig enthält die Konfiguration für die Home Assistant Integration
type HomeAssistantConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

// CleanupConfig enthält Bereinigungseinstellungen für das Verifikationsprotokoll
type CleanupConfig struct {
	RetentionDays int           `mapstructure:"retention_days"`
	Interval      time.Duration `mapstructure:"interval"`
}

// I18nConfig enthält die Spracheinstellungen der Statusmeldungen
type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Standardwerte festlegen
	setDefaults(v)

	// Konfigurationsdatei laden, wenn vorhanden
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.SetEnvPrefix("FACEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// Server-Standardwerte
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "face_data")
	v.SetDefault("server.timezone", "Local")
	v.SetDefault("server.session_secret", "facegate")
	v.SetDefault("server.cors_origins", []string{"*"})

	// Log-Standardwerte
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	// DB-Standardwerte
	v.SetDefault("db.file", "face_data/users.db")

	// Kamera-Standardwerte
	v.SetDefault("camera.device", 0)
	v.SetDefault("camera.width", 840)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.stop_timeout", time.Second)

	// Detektor-Standardwerte
	v.SetDefault("detector.cascade_file", "haarcascade_frontalface_default.xml")
	v.SetDefault("detector.scale_factor", 1.1)
	v.SetDefault("detector.min_neighbors", 5)
	v.SetDefault("detector.min_size", 60)

	// Erkenner-Standardwerte
	v.SetDefault("recognizer.model_file", "face_model.yml")
	v.SetDefault("recognizer.threshold", 65.0)
	v.SetDefault("recognizer.sample_size", 100)
	v.SetDefault("recognizer.samples_required", 20)
	v.SetDefault("recognizer.radius", 1)
	v.SetDefault("recognizer.neighbors", 8)

	// MQTT-Standardwerte
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "facegate")
	v.SetDefault("mqtt.topic_prefix", "facegate")
	v.SetDefault("mqtt.homeassistant.enabled", false)
	v.SetDefault("mqtt.homeassistant.discovery_prefix", "homeassistant")

	// Cleanup-Standardwerte
	v.SetDefault("cleanup.retention_days", 30)
	v.SetDefault("cleanup.interval", 24*time.Hour)

	v.SetDefault("i18n.default_language", "en")
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	if cfg.DB.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	if cfg.Recognizer.ModelFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Recognizer.ModelFile), 0755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
	}

	return nil
}
