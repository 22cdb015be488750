package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"facegate/internal/core/errdefs"
	"facegate/internal/core/session"
	"facegate/internal/core/vision"
	"facegate/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// Sink nimmt verarbeitete Frames entgegen. Publish läuft im Worker in
// Frame-Reihenfolge, Clear beim Stoppen einer Session.
type Sink interface {
	Publish(ev session.FrameEvent, frame image.Image)
	Clear()
}

// SinkFunc macht aus einer Funktion einen Sink; Clear tut nichts
type SinkFunc func(ev session.FrameEvent, frame image.Image)

// Publish ruft f auf
func (f SinkFunc) Publish(ev session.FrameEvent, frame image.Image) { f(ev, frame) }

// Clear tut nichts
func (f SinkFunc) Clear() {}

// Stats beschreibt den Zustand des Capture-Workers
type Stats struct {
	Running     bool       `json:"running"`
	Mode        string     `json:"mode"`
	Frames      uint64     `json:"frames"`
	ActiveSince *time.Time `json:"active_since,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// Runner treibt die Capture-Session mit genau einem Worker: Frame lesen,
// verarbeiten, an die Sinks weiterreichen.
type Runner struct {
	session     *session.Session
	source      vision.CameraSource
	stopTimeout time.Duration

	base       context.Context
	baseCancel context.CancelFunc

	sinksMu sync.RWMutex
	sinks   []Sink

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	camera      *cameraHandle
	activeSince *time.Time
	lastErr     error

	frames atomic.Uint64
}

// cameraHandle gibt die Kamera genau einmal frei, egal wer zuerst kommt
type cameraHandle struct {
	once sync.Once
	cam  vision.Camera
}

func (h *cameraHandle) release() {
	h.once.Do(func() {
		if err := h.cam.Close(); err != nil {
			log.Warnf("Error releasing camera: %v", err)
		} else {
			log.Debug("Camera released")
		}
	})
}

// NewRunner erstellt einen Runner. stopTimeout begrenzt das Warten auf den Worker in Stop.
func NewRunner(s *session.Session, source vision.CameraSource, stopTimeout time.Duration, sinks ...Sink) *Runner {
	if stopTimeout <= 0 {
		stopTimeout = time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		session:     s,
		source:      source,
		stopTimeout: stopTimeout,
		base:        base,
		baseCancel:  cancel,
		sinks:       sinks,
	}
}

// AddSink registriert einen weiteren Empfänger für verarbeitete Frames
func (r *Runner) AddSink(s Sink) {
	r.sinksMu.Lock()
	defer r.sinksMu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Session gibt die gesteuerte Session zurück
func (r *Runner) Session() *session.Session {
	return r.session
}

// State liefert den aktuellen Zustand der Session
func (r *Runner) State() session.State {
	return r.session.Snapshot()
}

// StartEnroll startet eine Registrierung und öffnet die Kamera
func (r *Runner) StartEnroll(name string) (session.State, error) {
	return r.start(func() (session.State, error) { return r.session.StartEnroll(name) })
}

// StartRecapture startet die Neuaufnahme einer bestehenden Identität
func (r *Runner) StartRecapture(id int) (session.State, error) {
	return r.start(func() (session.State, error) { return r.session.StartRecapture(id) })
}

// StartVerify startet die Verifikation
func (r *Runner) StartVerify() (session.State, error) {
	return r.start(r.session.StartVerify)
}

func (r *Runner) start(begin func() (session.State, error)) (session.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.base.Err() != nil {
		return r.session.Snapshot(), errors.New("runner is closed")
	}
	if r.done != nil {
		select {
		case <-r.done:
		default:
			// der vorherige Worker räumt noch auf
			return r.session.Snapshot(), errdefs.ErrBusy
		}
	}

	st, err := begin()
	if err != nil {
		return st, err
	}

	cam, err := r.source.Open()
	if err != nil {
		st, _ = r.session.Stop()
		if !errors.Is(err, errdefs.ErrCameraUnavailable) {
			err = fmt.Errorf("%w: %v", errdefs.ErrCameraUnavailable, err)
		}
		r.lastErr = err
		log.Errorf("Could not open camera: %v", err)
		return st, err
	}

	ctx, cancel := context.WithCancel(r.base)
	handle := &cameraHandle{cam: cam}
	done := make(chan struct{})
	now := timezone.Now()

	r.cancel = cancel
	r.done = done
	r.camera = handle
	r.activeSince = &now
	r.lastErr = nil

	go r.loop(ctx, handle, done)
	return st, nil
}

func (r *Runner) loop(ctx context.Context, cam *cameraHandle, done chan struct{}) {
	defer close(done)
	defer cam.release()
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("%w: panic: %v", errdefs.ErrFrameFault, p)
			r.setErr(err)
			r.publish(r.session.Abort(err), nil)
		}
	}()

	log.Debug("Capture worker started")
	for {
		if ctx.Err() != nil {
			log.Debug("Capture worker cancelled")
			return
		}

		frame, err := cam.cam.Read()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info("Camera stream ended")
			} else {
				log.Errorf("Error reading frame: %v", err)
			}
			err = fmt.Errorf("read frame: %w", err)
			r.setErr(err)
			r.publish(r.session.Abort(err), nil)
			return
		}

		ev, err := r.session.ProcessFrame(frame)
		if errors.Is(err, errdefs.ErrNotActive) {
			return
		}
		if err != nil {
			r.setErr(err)
		}
		r.frames.Add(1)

		if ctx.Err() != nil && !ev.Final {
			return
		}
		r.publish(ev, frame)
		if ev.Final {
			log.Debugf("Capture worker finished session %s", ev.SessionID)
			return
		}
	}
}

func (r *Runner) publish(ev session.FrameEvent, frame image.Image) {
	r.sinksMu.RLock()
	sinks := append([]Sink(nil), r.sinks...)
	r.sinksMu.RUnlock()

	for _, s := range sinks {
		s.Publish(ev, frame)
	}
}

func (r *Runner) setErr(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

// Stop beendet die aktive Session: Worker signalisieren, begrenzt warten,
// Kamera in jedem Fall freigeben, Präsentationszustand leeren.
func (r *Runner) Stop() session.State {
	r.mu.Lock()
	cancel, done, cam := r.cancel, r.done, r.camera
	r.activeSince = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	stopped := true
	if done != nil {
		select {
		case <-done:
		case <-time.After(r.stopTimeout):
			stopped = false
			log.Warnf("Capture worker did not stop within %v", r.stopTimeout)
		}
	}
	if cam != nil {
		if stopped {
			cam.release()
		} else {
			// Close wartet auf ein hängendes Read; Stop bleibt trotzdem begrenzt
			go cam.release()
		}
	}

	st, _ := r.session.Stop()

	r.sinksMu.RLock()
	sinks := append([]Sink(nil), r.sinks...)
	r.sinksMu.RUnlock()
	for _, s := range sinks {
		s.Clear()
	}
	return st
}

// Wait blockiert, bis der aktuelle Worker beendet ist oder ctx abläuft
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running meldet, ob gerade ein Worker läuft
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Stats liefert einen Schnappschuss für die Statusseite
func (r *Runner) Stats() Stats {
	st := Stats{
		Running: r.Running(),
		Mode:    r.session.Mode().String(),
		Frames:  r.frames.Load(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	running := st.Running
	if running && r.activeSince != nil {
		t := *r.activeSince
		st.ActiveSince = &t
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}

// Close stoppt den Runner endgültig
func (r *Runner) Close() {
	r.Stop()
	r.baseCancel()
}
