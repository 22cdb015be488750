// Package memory provides in-process implementations of the vision
// capabilities. They need neither a camera nor OpenCV and are used by the
// state machine tests and the headless demo mode.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"facegate/internal/core/errdefs"
	"facegate/internal/core/models"
	"facegate/internal/core/vision"
)

// Detector returns a fixed set of face rectangles for every frame.
type Detector struct {
	mu    sync.Mutex
	faces []image.Rectangle
	err   error
	calls int
}

// NewDetector creates a detector reporting faces on every frame.
func NewDetector(faces ...image.Rectangle) *Detector {
	return &Detector{faces: faces}
}

// SetFaces replaces the rectangles reported from now on.
func (d *Detector) SetFaces(faces ...image.Rectangle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faces = faces
}

// FailWith makes every following Detect call return err. nil clears it.
func (d *Detector) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Calls returns how often Detect was called.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *Detector) Detect(gray *image.Gray) ([]image.Rectangle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	out := make([]image.Rectangle, 0, len(d.faces))
	for _, f := range d.faces {
		if f.Overlaps(gray.Bounds()) {
			out = append(out, f)
		}
	}
	return out, nil
}

type sample struct {
	Label  int    `json:"label"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pix    []byte `json:"pix"`
}

// Recognizer is a nearest-neighbour recognizer over raw pixels. The distance
// is the mean absolute pixel difference (0 for identical samples, at most 255).
type Recognizer struct {
	mu         sync.Mutex
	samples    []sample
	predictErr error
	trainErr   error
	saveErr    error
}

// NewRecognizer creates an empty recognizer.
func NewRecognizer() *Recognizer {
	return &Recognizer{}
}

// FailPredict makes Predict return err. nil clears it.
func (r *Recognizer) FailPredict(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predictErr = err
}

// FailTrain makes Train return err. nil clears it.
func (r *Recognizer) FailTrain(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trainErr = err
}

// FailSave makes Save return err. nil clears it.
func (r *Recognizer) FailSave(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveErr = err
}

// Labels returns the distinct trained labels.
func (r *Recognizer) Labels() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[int]bool)
	var out []int
	for _, s := range r.samples {
		if !seen[s.Label] {
			seen[s.Label] = true
			out = append(out, s.Label)
		}
	}
	return out
}

func (r *Recognizer) Train(samples []*image.Gray, label int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trainErr != nil {
		return r.trainErr
	}
	if len(samples) == 0 {
		return errors.New("no samples to train")
	}
	for _, s := range samples {
		b := s.Bounds()
		pix := make([]byte, 0, b.Dx()*b.Dy())
		for y := b.Min.Y; y < b.Max.Y; y++ {
			pix = append(pix, s.Pix[s.PixOffset(b.Min.X, y):s.PixOffset(b.Max.X, y)]...)
		}
		r.samples = append(r.samples, sample{Label: label, Width: b.Dx(), Height: b.Dy(), Pix: pix})
	}
	return nil
}

func (r *Recognizer) Predict(img *image.Gray) (int, float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.predictErr != nil {
		return -1, 0, r.predictErr
	}
	if len(r.samples) == 0 {
		return -1, 0, errdefs.ErrModelEmpty
	}

	b := img.Bounds()
	best, bestDist := -1, math.MaxFloat64
	for _, s := range r.samples {
		if s.Width != b.Dx() || s.Height != b.Dy() {
			return -1, 0, fmt.Errorf("sample size %dx%d does not match model %dx%d", b.Dx(), b.Dy(), s.Width, s.Height)
		}
		var sum float64
		for y := 0; y < s.Height; y++ {
			row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < s.Width; x++ {
				sum += math.Abs(float64(row[x]) - float64(s.Pix[y*s.Width+x]))
			}
		}
		dist := sum / float64(s.Width*s.Height)
		if dist < bestDist {
			best, bestDist = s.Label, dist
		}
	}
	return best, bestDist, nil
}

func (r *Recognizer) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples) == 0
}

func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = nil
}

func (r *Recognizer) Save(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	data, err := json.Marshal(r.samples)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}

func (r *Recognizer) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var samples []sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return fmt.Errorf("decode model %s: %w", path, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = samples
	return nil
}

// Camera replays frames in order and reports io.EOF afterwards, or cycles
// through them forever when looping.
type Camera struct {
	mu     sync.Mutex
	frames []image.Image
	next   int
	loop   bool
	delay  time.Duration
	err    error
	closed bool
	reads  int
}

// NewCamera creates a camera that plays frames once.
func NewCamera(frames ...image.Image) *Camera {
	return &Camera{frames: frames}
}

// NewLoopingCamera creates a camera that repeats frames until closed,
// waiting delay before every frame.
func NewLoopingCamera(delay time.Duration, frames ...image.Image) *Camera {
	return &Camera{frames: frames, loop: true, delay: delay}
}

// FailWith makes every following Read return err.
func (c *Camera) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Closed reports whether Close was called.
func (c *Camera) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Reads returns the number of frames delivered.
func (c *Camera) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *Camera) Read() (image.Image, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("camera closed")
	}
	if c.err != nil {
		return nil, c.err
	}
	if c.next >= len(c.frames) {
		if !c.loop || len(c.frames) == 0 {
			return nil, io.EOF
		}
		c.next = 0
	}
	frame := c.frames[c.next]
	c.next++
	c.reads++
	return frame, nil
}

func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Source hands out a prepared camera, or fails like a busy device.
type Source struct {
	mu     sync.Mutex
	camera vision.Camera
	err    error
	opened int
}

// NewSource creates a source returning camera on every Open.
func NewSource(camera vision.Camera) *Source {
	return &Source{camera: camera}
}

// SetCamera replaces the camera returned by the next Open.
func (s *Source) SetCamera(camera vision.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = camera
}

// FailWith makes Open return err. nil clears it.
func (s *Source) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Opened returns the number of successful Open calls.
func (s *Source) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *Source) Open() (vision.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.camera == nil {
		return nil, errdefs.ErrCameraUnavailable
	}
	s.opened++
	return s.camera, nil
}

// Store keeps the registry in memory with the same id policy as the SQLite
// repository: ids come from a counter that never moves backwards.
type Store struct {
	mu       sync.Mutex
	registry models.Registry
	next     int
	saveErr  error
	saves    int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{registry: models.Registry{}}
}

// FailSave makes SaveRegistry and SaveIdentity return err. nil clears it.
func (s *Store) FailSave(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Saves returns the number of successful registry writes.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *Store) LoadRegistry() (models.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Clone(), nil
}

func (s *Store) SaveRegistry(registry models.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.registry = registry.Clone()
	if top := registry.MaxID(); top+1 > s.next {
		s.next = top + 1
	}
	s.saves++
	return nil
}

func (s *Store) SaveIdentity(identity models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.registry[identity.ID] = identity.Clone()
	s.saves++
	return nil
}

func (s *Store) ReserveIdentityID() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if top := s.registry.MaxID(); top+1 > s.next {
		s.next = top + 1
	}
	id := s.next
	s.next++
	return id, nil
}

// UniformFrame returns a w x h gray frame filled with value.
func UniformFrame(w, h int, value uint8) *image.Gray {
	frame := image.NewGray(image.Rect(0, 0, w, h))
	for i := range frame.Pix {
		frame.Pix[i] = value
	}
	return frame
}

// Samples returns n uniform size x size samples.
func Samples(n, size int, value uint8) []*image.Gray {
	out := make([]*image.Gray, n)
	for i := range out {
		out[i] = UniformFrame(size, size, value)
	}
	return out
}
