package opencv

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"facegate/config"
	"facegate/internal/core/errdefs"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// Recognizer kapselt den LBPH-Erkenner aus opencv_contrib. Nach dem ersten
// Training werden weitere Labels per Update hinzugefügt, ohne bestehende zu verwerfen.
type Recognizer struct {
	mu      sync.Mutex
	cfg     config.RecognizerConfig
	model   *contrib.LBPHFaceRecognizer
	trained bool
}

// NewRecognizer erstellt einen leeren LBPH-Erkenner
func NewRecognizer(cfg config.RecognizerConfig) (*Recognizer, error) {
	r := &Recognizer{cfg: cfg}
	model, err := r.newModel()
	if err != nil {
		return nil, err
	}
	r.model = model
	return r, nil
}

func (r *Recognizer) newModel() (model *contrib.LBPHFaceRecognizer, err error) {
	defer func() {
		if p := recover(); p != nil {
			model, err = nil, fmt.Errorf("%w: %v", errdefs.ErrRecognizerUnavailable, p)
		}
	}()

	model = contrib.NewLBPHFaceRecognizer()
	if model == nil {
		return nil, errdefs.ErrRecognizerUnavailable
	}
	if r.cfg.Radius > 0 {
		model.SetRadius(r.cfg.Radius)
	}
	if r.cfg.Neighbors > 0 {
		model.SetNeighbors(r.cfg.Neighbors)
	}
	return model, nil
}

// Train fügt samples unter label hinzu
func (r *Recognizer) Train(samples []*image.Gray, label int) error {
	if len(samples) == 0 {
		return errors.New("no samples to train")
	}

	mats := make([]gocv.Mat, 0, len(samples))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()
	labels := make([]int, 0, len(samples))
	for _, s := range samples {
		m, err := gocv.ImageGrayToMatGray(s)
		if err != nil {
			return fmt.Errorf("convert sample: %w", err)
		}
		mats = append(mats, m)
		labels = append(labels, label)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trained {
		r.model.Update(mats, labels)
	} else {
		r.model.Train(mats, labels)
		r.trained = true
	}
	return nil
}

// Predict liefert Label und Distanz; kleinere Distanz bedeutet besseren Treffer
func (r *Recognizer) Predict(sample *image.Gray) (int, float64, error) {
	m, err := gocv.ImageGrayToMatGray(sample)
	if err != nil {
		return -1, 0, fmt.Errorf("convert sample: %w", err)
	}
	defer m.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.trained {
		return -1, 0, errdefs.ErrModelEmpty
	}
	resp := r.model.PredictExtendedResponse(m)
	return int(resp.Label), float64(resp.Confidence), nil
}

// Empty meldet, ob noch nie trainiert wurde
func (r *Recognizer) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.trained
}

// Reset verwirft den gesamten Trainingsstand
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	model, err := r.newModel()
	if err != nil {
		// alter Zustand bleibt nutzbar, gilt aber als leer
		r.trained = false
		return
	}
	r.model = model
	r.trained = false
}

// Save schreibt das Modell; das Format ergibt sich aus der Dateiendung (.yml/.xml)
func (r *Recognizer) Save(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.trained {
		return errdefs.ErrModelEmpty
	}
	r.model.SaveFile(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("model not written to %s: %w", path, err)
	}
	return nil
}

// Load liest ein gespeichertes Modell. Eine fehlende Datei ist kein Fehler.
func (r *Recognizer) Load(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	model, err := r.newModel()
	if err != nil {
		return err
	}
	model.LoadFile(path)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.model = model
	r.trained = true
	return nil
}
