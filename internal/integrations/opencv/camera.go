package opencv

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"facegate/config"
	"facegate/internal/core/errdefs"
	"facegate/internal/core/vision"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// maxEmptyReads begrenzt leere Frames direkt nach dem Öffnen des Geräts
const maxEmptyReads = 30

// Camera liest Frames von einem lokalen Aufnahmegerät
type Camera struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	closed  bool
}

// OpenCamera öffnet das konfigurierte Gerät in der gewünschten Auflösung
func OpenCamera(cfg config.CameraConfig) (*Camera, error) {
	capture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", errdefs.ErrCameraUnavailable, cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: device %d is not available", errdefs.ErrCameraUnavailable, cfg.Device)
	}

	if cfg.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	log.Infof("Opened camera %d (%.0fx%.0f)", cfg.Device,
		capture.Get(gocv.VideoCaptureFrameWidth), capture.Get(gocv.VideoCaptureFrameHeight))

	return &Camera{capture: capture, mat: gocv.NewMat()}, nil
}

// Read blockiert bis zum nächsten Frame; io.EOF am Ende des Streams
func (c *Camera) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("camera closed")
	}

	for i := 0; i < maxEmptyReads; i++ {
		if ok := c.capture.Read(&c.mat); !ok {
			return nil, io.EOF
		}
		if c.mat.Empty() {
			continue
		}
		img, err := c.mat.ToImage()
		if err != nil {
			return nil, fmt.Errorf("convert frame: %w", err)
		}
		return img, nil
	}
	return nil, io.EOF
}

// Close gibt das Gerät frei. Läuft gerade ein Read, wartet Close auf dessen Ende.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.mat.Close(); err != nil {
		log.Warnf("Error releasing frame buffer: %v", err)
	}
	return c.capture.Close()
}

// CameraSource öffnet für jede Session ein neues Camera-Handle
type CameraSource struct {
	cfg config.CameraConfig
}

// NewCameraSource erstellt eine Kameraquelle
func NewCameraSource(cfg config.CameraConfig) *CameraSource {
	return &CameraSource{cfg: cfg}
}

// Open implementiert vision.CameraSource
func (s *CameraSource) Open() (vision.Camera, error) {
	cam, err := OpenCamera(s.cfg)
	if err != nil {
		return nil, err
	}
	return cam, nil
}
