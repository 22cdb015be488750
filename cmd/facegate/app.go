package main

import (
	"fmt"

	"facegate/internal/core/processor"
	"facegate/internal/core/registry"
	"facegate/internal/core/session"
	"facegate/internal/db"
	"facegate/internal/db/repository"
	"facegate/internal/integrations/opencv"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// app holds the components shared by the commands.
type app struct {
	db       *gorm.DB
	repo     *repository.SQLiteRepository
	registry *registry.Manager
	vision   *opencv.Service
	runner   *processor.Runner
}

// openRegistry opens the database and the model, without camera or detector.
func openRegistry() (*app, error) {
	database, err := db.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	a := &app{db: database, repo: repository.NewSQLiteRepository(database)}

	rec, err := opencv.NewRecognizer(cfg.Recognizer)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize recognizer: %w", err)
	}
	if a.registry, err = registry.New(a.repo, rec, cfg.Recognizer.ModelFile); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return a, nil
}

// openCapture additionally builds the detector, the session and the capture worker.
func openCapture(sinks ...processor.Sink) (*app, error) {
	database, err := db.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	a := &app{db: database, repo: repository.NewSQLiteRepository(database)}

	if a.vision, err = opencv.NewService(cfg); err != nil {
		a.close()
		return nil, err
	}
	if a.registry, err = registry.New(a.repo, a.vision.Recognizer, cfg.Recognizer.ModelFile); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	s := session.New(a.vision.Detector, a.registry, session.Config{
		Threshold:       cfg.Recognizer.Threshold,
		SampleSize:      cfg.Recognizer.SampleSize,
		SamplesRequired: cfg.Recognizer.SamplesRequired,
	})
	a.runner = processor.NewRunner(s, a.vision.Cameras, cfg.Camera.StopTimeout, sinks...)
	log.Infof("Registry loaded with %d identities", a.registry.Len())
	return a, nil
}

func (a *app) close() {
	if a.runner != nil {
		a.runner.Close()
	}
	if a.vision != nil {
		if err := a.vision.Close(); err != nil {
			log.Warnf("Failed to close OpenCV service: %v", err)
		}
	}
	if a.db != nil {
		if err := db.Close(a.db); err != nil {
			log.Warnf("Failed to close database: %v", err)
		}
	}
}
