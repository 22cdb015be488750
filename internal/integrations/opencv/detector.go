package opencv

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"facegate/config"
	"facegate/internal/core/errdefs"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Übliche Installationsorte der OpenCV-Haar-Cascades
var cascadeSearchDirs = []string{
	".",
	"/usr/local/share/opencv4/haarcascades",
	"/usr/share/opencv4/haarcascades",
	"/opt/homebrew/share/opencv4/haarcascades",
}

// Detector findet Gesichter mit einem Haar-Cascade-Klassifikator
type Detector struct {
	mu           sync.Mutex
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	minSize      image.Point
	path         string
}

// NewDetector lädt die Cascade-Datei. Schlägt das fehl, ist der Detektor nicht verfügbar.
func NewDetector(cfg config.DetectorConfig) (*Detector, error) {
	classifier := gocv.NewCascadeClassifier()

	path, ok := loadCascade(&classifier, cfg.CascadeFile)
	if !ok {
		classifier.Close()
		return nil, fmt.Errorf("%w: cannot load cascade %s", errdefs.ErrDetectorUnavailable, cfg.CascadeFile)
	}
	log.Infof("Loaded face cascade from %s", path)

	return &Detector{
		classifier:   classifier,
		scaleFactor:  cfg.ScaleFactor,
		minNeighbors: cfg.MinNeighbors,
		minSize:      image.Pt(cfg.MinSize, cfg.MinSize),
		path:         path,
	}, nil
}

func loadCascade(classifier *gocv.CascadeClassifier, file string) (string, bool) {
	if file != "" && classifier.Load(file) {
		return file, true
	}
	if filepath.IsAbs(file) {
		return "", false
	}

	name := filepath.Base(file)
	for _, dir := range cascadeSearchDirs {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if classifier.Load(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// Detect liefert die Gesichter eines Graustufenbildes
func (d *Detector) Detect(gray *image.Gray) ([]image.Rectangle, error) {
	mat, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	rects := d.classifier.DetectMultiScaleWithParams(mat, d.scaleFactor, d.minNeighbors, 0, d.minSize, image.Point{})
	return rects, nil
}

// Close gibt den Klassifikator frei
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}
