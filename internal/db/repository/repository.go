package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"facegate/internal/core/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository definiert die Persistenzoperationen für Registry und Verifikationsprotokoll
type Repository interface {
	// Registry-Methoden
	LoadRegistry() (models.Registry, error)
	SaveRegistry(registry models.Registry) error
	SaveIdentity(identity models.Identity) error
	ReserveIdentityID() (int, error)

	// Protokoll-Methoden
	RecordVerification(event *models.VerificationEvent) error
	ListVerifications(limit int) ([]models.VerificationEvent, error)
	PruneVerifications(before time.Time) (int64, error)
}

// SQLiteRepository implementiert die Repository-Schnittstelle für SQLite
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository erstellt eine neue SQLite-Repository-Instanz
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Registry-Methoden

// LoadRegistry lädt alle Identitäten; eine leere Datenbank ergibt eine leere Registry
func (r *SQLiteRepository) LoadRegistry() (models.Registry, error) {
	var rows []models.Identity
	if err := r.db.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}

	registry := make(models.Registry, len(rows))
	for _, row := range rows {
		registry[row.ID] = normalize(row)
	}
	return registry, nil
}

// SaveRegistry ersetzt den gespeicherten Stand vollständig in einer Transaktion.
// Schlägt ein Schritt fehl, bleibt der zuletzt committete Stand erhalten.
func (r *SQLiteRepository) SaveRegistry(registry models.Registry) error {
	rows := make([]models.Identity, 0, len(registry))
	for id, identity := range registry {
		identity.ID = id
		rows = append(rows, normalize(identity))
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Identity{}).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return err
			}
		}
		return bumpCounter(tx, registry.MaxID()+1)
	})
	if err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return nil
}

// SaveIdentity schreibt eine einzelne Identität (Upsert)
func (r *SQLiteRepository) SaveIdentity(identity models.Identity) error {
	row := normalize(identity)
	// Save hält ID 0 für "kein Schlüssel" und würde einfügen
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save identity %d: %w", identity.ID, err)
	}
	return nil
}

// ReserveIdentityID vergibt die nächste ID aus einem streng monotonen Zähler.
// Gelöschte IDs werden nie erneut vergeben.
func (r *SQLiteRepository) ReserveIdentityID() (int, error) {
	var id int
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var maxID sql.NullInt64
		if err := tx.Model(&models.Identity{}).Select("MAX(id)").Scan(&maxID).Error; err != nil {
			return err
		}

		next, err := readCounter(tx)
		if err != nil {
			return err
		}
		if maxID.Valid && maxID.Int64+1 > next {
			next = maxID.Int64 + 1
		}

		id = int(next)
		return tx.Save(&models.RegistryMeta{Name: models.MetaNextIdentityID, Value: next + 1}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("reserve identity id: %w", err)
	}
	return id, nil
}

func readCounter(tx *gorm.DB) (int64, error) {
	var meta models.RegistryMeta
	err := tx.Where(&models.RegistryMeta{Name: models.MetaNextIdentityID}).First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return meta.Value, nil
}

// bumpCounter hebt den Zähler mindestens auf floor an, senkt ihn aber nie
func bumpCounter(tx *gorm.DB, floor int) error {
	current, err := readCounter(tx)
	if err != nil {
		return err
	}
	if int64(floor) <= current {
		return nil
	}
	return tx.Save(&models.RegistryMeta{Name: models.MetaNextIdentityID, Value: int64(floor)}).Error
}

// Protokoll-Methoden

// RecordVerification speichert ein Verifikationsereignis
func (r *SQLiteRepository) RecordVerification(event *models.VerificationEvent) error {
	// UTC, damit PruneVerifications lexikografisch vergleichen kann
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.CreatedAt = event.CreatedAt.UTC()
	return r.db.Create(event).Error
}

// ListVerifications liefert die neuesten Ereignisse zuerst
func (r *SQLiteRepository) ListVerifications(limit int) ([]models.VerificationEvent, error) {
	var events []models.VerificationEvent
	q := r.db.Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// PruneVerifications löscht Ereignisse, die älter als before sind
func (r *SQLiteRepository) PruneVerifications(before time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", before.UTC()).Delete(&models.VerificationEvent{})
	return result.RowsAffected, result.Error
}

// normalize speichert und liefert alle Zeitstempel in UTC
func normalize(identity models.Identity) models.Identity {
	identity.RegisteredAt = identity.RegisteredAt.UTC()
	if identity.LastVerified != nil {
		t := identity.LastVerified.UTC()
		identity.LastVerified = &t
	}
	if identity.UpdatedAt != nil {
		t := identity.UpdatedAt.UTC()
		identity.UpdatedAt = &t
	}
	return identity
}
