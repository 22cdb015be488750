// Package vision holds the capability contracts the capture session depends on
// (detector, recognizer, camera) and the image helpers used to turn a camera
// frame into normalized face samples.
package vision

import (
	"image"
)

// Detector finds candidate faces in a grayscale frame.
// Implementations must be deterministic for identical input and configuration.
type Detector interface {
	Detect(gray *image.Gray) ([]image.Rectangle, error)
}

// Recognizer is an appearance-based face recognizer working on normalized crops.
//
// Train merges samples under label into the existing model; it never discards
// previously trained labels. Predict returns a non-negative distance where
// smaller means a closer match; it fails when the model is empty.
// Load of a missing path is a no-op.
type Recognizer interface {
	Train(samples []*image.Gray, label int) error
	Predict(sample *image.Gray) (label int, distance float64, err error)
	Empty() bool
	Reset()
	Save(path string) error
	Load(path string) error
}

// Camera is an opened video source. Read blocks until the next frame is
// available and returns io.EOF at end of stream.
type Camera interface {
	Read() (image.Image, error)
	Close() error
}

// CameraSource opens the camera for one session.
type CameraSource interface {
	Open() (Camera, error)
}

// CameraSourceFunc adapts a function to CameraSource.
type CameraSourceFunc func() (Camera, error)

// Open calls f.
func (f CameraSourceFunc) Open() (Camera, error) { return f() }
