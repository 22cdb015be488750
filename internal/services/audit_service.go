package services

import (
	"encoding/json"
	"image"

	"facegate/internal/core/models"
	"facegate/internal/core/session"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// VerificationRecorder speichert Verifikationsereignisse
type VerificationRecorder interface {
	RecordVerification(event *models.VerificationEvent) error
}

// AuditService protokolliert jeden Wechsel des Verifikationsergebnisses.
// Er wird als Sink am Capture-Worker registriert.
type AuditService struct {
	store VerificationRecorder
}

// NewAuditService erstellt einen neuen AuditService
func NewAuditService(store VerificationRecorder) *AuditService {
	return &AuditService{store: store}
}

// Publish speichert ein Ereignis, wenn sich das Ergebnis geändert hat
func (s *AuditService) Publish(ev session.FrameEvent, _ image.Image) {
	if ev.Mode != session.Verifying || !ev.ResultChanged {
		return
	}

	event := BuildVerificationEvent(ev)
	if err := s.store.RecordVerification(event); err != nil {
		log.Errorf("Failed to record verification event for session %s: %v", ev.SessionID, err)
		return
	}
	log.Debugf("Recorded verification event %d (accepted=%t)", event.ID, event.Accepted)
}

// Clear hat für das Protokoll keine Bedeutung
func (s *AuditService) Clear() {}

// BuildVerificationEvent überführt einen Frame in einen Protokolleintrag. Bei
// mehreren Gesichtern zählt das erste akzeptierte, sonst das nächstliegende.
func BuildVerificationEvent(ev session.FrameEvent) *models.VerificationEvent {
	event := &models.VerificationEvent{
		SessionID: ev.SessionID,
		CreatedAt: ev.At,
	}

	face, ok := ev.Accepted()
	if !ok {
		face, ok = closestFace(ev.Faces)
	}
	if ok {
		event.Accepted = face.Accepted
		event.Distance = face.Distance
		event.Name = face.Name
		if face.Label >= 0 {
			label := face.Label
			event.IdentityID = &label
		}
	}

	boxes := make([]models.FaceBox, 0, len(ev.Faces))
	for _, f := range ev.Faces {
		boxes = append(boxes, f.Box)
	}
	raw, err := json.Marshal(boxes)
	if err != nil {
		log.Warnf("Failed to encode face boxes: %v", err)
		raw = []byte("[]")
	}
	event.Faces = datatypes.JSON(raw)
	return event
}

func closestFace(faces []session.Annotation) (session.Annotation, bool) {
	var (
		best  session.Annotation
		found bool
	)
	for _, f := range faces {
		if f.Label < 0 {
			continue
		}
		if !found || f.Distance < best.Distance {
			best, found = f, true
		}
	}
	return best, found
}
