package models

import (
	"time"

	"gorm.io/datatypes"
)

// Identity repräsentiert eine registrierte Person.
// Die ID ist zugleich das Label im Erkennungsmodell.
type Identity struct {
	ID           int        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name         string     `gorm:"not null;index" json:"name"`
	RegisteredAt time.Time  `gorm:"not null;index" json:"registered_at"`
	LastVerified *time.Time `json:"last_verified"`
	UpdatedAt    *time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// Registry bildet Identity.ID auf die Identität ab
type Registry map[int]Identity

// Clone liefert eine unabhängige Kopie der Registry
func (r Registry) Clone() Registry {
	out := make(Registry, len(r))
	for id, identity := range r {
		out[id] = identity.Clone()
	}
	return out
}

// Clone kopiert auch die optionalen Zeitstempel
func (i Identity) Clone() Identity {
	if i.LastVerified != nil {
		t := *i.LastVerified
		i.LastVerified = &t
	}
	if i.UpdatedAt != nil {
		t := *i.UpdatedAt
		i.UpdatedAt = &t
	}
	return i
}

// MaxID gibt die größte vergebene ID zurück, -1 bei leerer Registry
func (r Registry) MaxID() int {
	highest := -1
	for id := range r {
		if id > highest {
			highest = id
		}
	}
	return highest
}

// RegistryMeta speichert Zähler und Metadaten neben der Registry
type RegistryMeta struct {
	Name  string `gorm:"primaryKey"`
	Value int64  `gorm:"not null"`
}

// Schlüssel in RegistryMeta
const (
	MetaNextIdentityID = "next_identity_id"
)

// VerificationEvent protokolliert einen Wechsel des Verifikationsergebnisses
type VerificationEvent struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	SessionID  string         `gorm:"index;not null" json:"session_id"`
	IdentityID *int           `gorm:"index" json:"identity_id"`
	Name       string         `json:"name,omitempty"`
	Distance   float64        `json:"distance"`
	Accepted   bool           `gorm:"index" json:"accepted"`
	Faces      datatypes.JSON `gorm:"type:json" json:"faces"` // Bounding Boxes der Gesichter im Frame
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

// FaceBox ist die JSON-Form einer Bounding Box in VerificationEvent.Faces
type FaceBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}
