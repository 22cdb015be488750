package opencv

import (
	"fmt"
	"sync"

	"facegate/config"

	log "github.com/sirupsen/logrus"
)

// Service bündelt die OpenCV-Fähigkeiten: Detektor, Erkenner und Kameraquelle
type Service struct {
	Detector   *Detector
	Recognizer *Recognizer
	Cameras    *CameraSource
	mutex      sync.Mutex
	closed     bool
}

// NewService erstellt Detektor und Erkenner. Fehlt eine der beiden Fähigkeiten,
// kann die Anwendung nicht starten.
func NewService(cfg *config.Config) (*Service, error) {
	detector, err := NewDetector(cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Initialisieren des Gesichtsdetektors: %w", err)
	}

	recognizer, err := NewRecognizer(cfg.Recognizer)
	if err != nil {
		detector.Close()
		return nil, fmt.Errorf("fehler beim Initialisieren des Gesichtserkenners: %w", err)
	}

	log.Infof("OpenCV-Service bereit (scale=%.2f, neighbors=%d, min_size=%d)",
		cfg.Detector.ScaleFactor, cfg.Detector.MinNeighbors, cfg.Detector.MinSize)

	return &Service{
		Detector:   detector,
		Recognizer: recognizer,
		Cameras:    NewCameraSource(cfg.Camera),
	}, nil
}

// Close gibt die Ressourcen des OpenCV-Service frei
func (s *Service) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.Detector.Close()
}
