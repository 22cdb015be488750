package cleanup

import (
	"context"
	"fmt"
	"time"

	"facegate/config"
	"facegate/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// Pruner löscht Verifikationsereignisse vor einem Stichtag
type Pruner interface {
	PruneVerifications(before time.Time) (int64, error)
}

// CleanupService ist verantwortlich für die automatische Bereinigung des Verifikationsprotokolls
type CleanupService struct {
	store         Pruner
	config        config.CleanupConfig
	checkInterval time.Duration
}

// NewCleanupService erstellt einen neuen Cleanup-Service
func NewCleanupService(store Pruner, cfg config.CleanupConfig) *CleanupService {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour // Standardmäßig einmal täglich prüfen
	}
	return &CleanupService{
		store:         store,
		config:        cfg,
		checkInterval: interval,
	}
}

// Start startet den Bereinigungsdienst und blockiert bis ctx beendet wird
func (s *CleanupService) Start(ctx context.Context) {
	if s.config.RetentionDays <= 0 {
		log.Info("Cleanup disabled (retention days <= 0)")
		return
	}
	log.Info("Cleanup service started")

	// Sofort eine erste Bereinigung durchführen
	if _, err := s.RunCleanup(ctx); err != nil {
		log.Errorf("Initial cleanup failed: %v", err)
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Info("Running scheduled cleanup")
			if _, err := s.RunCleanup(ctx); err != nil {
				log.Errorf("Scheduled cleanup failed: %v", err)
			}
		case <-ctx.Done():
			log.Info("Cleanup service stopped")
			return
		}
	}
}

// RunCleanup löscht Ereignisse, die älter als die Aufbewahrungsfrist sind
func (s *CleanupService) RunCleanup(ctx context.Context) (int64, error) {
	if s.config.RetentionDays <= 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cutoff := timezone.Now().AddDate(0, 0, -s.config.RetentionDays)
	log.Infof("Cleaning up verification events older than %s", timezone.Format(cutoff, "2006-01-02"))

	deleted, err := s.store.PruneVerifications(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune verification events: %w", err)
	}

	log.Infof("Cleanup completed: deleted %d verification events", deleted)
	return deleted, nil
}
