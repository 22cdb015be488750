package render

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"facegate/internal/core/session"

	log "github.com/sirupsen/logrus"
)

// Preview ist ein annotierter, JPEG-kodierter Frame
type Preview struct {
	ID        string    // <session>-<seq>
	SessionID string    // Session, aus der der Frame stammt
	Seq       uint64    // Laufende Nummer innerhalb der Session
	Timestamp time.Time // Zeitpunkt der Verarbeitung
	Faces     int       // Anzahl erkannter Gesichter
	Status    string    // Text auf dem Badge
	ImageData []byte    // JPEG
}

// PreviewStore hält die letzten annotierten Frames im Speicher
type PreviewStore struct {
	images     map[string]*Preview // Map von Previews, indiziert nach ID
	imagesList []*Preview          // Liste für zeitliche Sortierung
	maxImages  int                 // Maximale Anzahl zu speichernder Frames
	quality    int
	mutex      sync.RWMutex
}

// NewPreviewStore erstellt einen neuen Preview-Speicher
func NewPreviewStore(maxImages, quality int) *PreviewStore {
	if maxImages <= 0 {
		maxImages = 10
	}
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	return &PreviewStore{
		images:     make(map[string]*Preview),
		imagesList: make([]*Preview, 0, maxImages),
		maxImages:  maxImages,
		quality:    quality,
	}
}

// Publish rendert einen verarbeiteten Frame. Ereignisse ohne Frame (Abbruch)
// lassen die vorhandenen Bilder stehen.
func (s *PreviewStore) Publish(ev session.FrameEvent, frame image.Image) {
	if frame == nil {
		return
	}

	text := ev.Status.Text()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Annotate(frame, ev, text), &jpeg.Options{Quality: s.quality}); err != nil {
		log.Warnf("Could not encode preview frame %d: %v", ev.Seq, err)
		return
	}

	s.add(&Preview{
		ID:        fmt.Sprintf("%s-%d", ev.SessionID, ev.Seq),
		SessionID: ev.SessionID,
		Seq:       ev.Seq,
		Timestamp: ev.At,
		Faces:     len(ev.Faces),
		Status:    text,
		ImageData: buf.Bytes(),
	})
}

func (s *PreviewStore) add(p *Preview) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.images[p.ID]; exists {
		for i, img := range s.imagesList {
			if img.ID == p.ID {
				s.imagesList[i] = p
				break
			}
		}
		s.images[p.ID] = p
		return
	}

	s.images[p.ID] = p
	s.imagesList = append(s.imagesList, p)
	if len(s.imagesList) > s.maxImages {
		oldest := s.imagesList[0]
		delete(s.images, oldest.ID)
		s.imagesList = s.imagesList[1:]
	}
}

// Clear verwirft alle Frames
func (s *PreviewStore) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.images = make(map[string]*Preview)
	s.imagesList = make([]*Preview, 0, s.maxImages)
}

// Latest gibt den neuesten Frame zurück, nil wenn keiner vorliegt
func (s *PreviewStore) Latest() *Preview {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if len(s.imagesList) == 0 {
		return nil
	}
	return s.imagesList[len(s.imagesList)-1]
}

// GetLatest gibt bis zu count Frames zurück, ältester zuerst
func (s *PreviewStore) GetLatest(count int) []*Preview {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if count <= 0 || count > len(s.imagesList) {
		count = len(s.imagesList)
	}
	result := make([]*Preview, count)
	copy(result, s.imagesList[len(s.imagesList)-count:])
	return result
}

// Get gibt einen Frame anhand seiner ID zurück
func (s *PreviewStore) Get(id string) *Preview {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.images[id]
}
