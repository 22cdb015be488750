// Package session implements the enroll/recapture/verify state machine.
//
// A Session is driven one frame at a time by a single worker. Start and stop
// requests may come from any goroutine; a frame that is already being
// processed finishes before a concurrent Stop takes effect.
package session

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"facegate/internal/core/errdefs"
	"facegate/internal/core/models"
	"facegate/internal/core/registry"
	"facegate/internal/core/vision"
	"facegate/internal/util/timezone"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Registry is what the session needs from the identity registry.
type Registry interface {
	Exists(id int) bool
	ModelEmpty() bool
	Enroll(name string, samples []*image.Gray) (models.Identity, error)
	Recapture(id int, samples []*image.Gray) (models.Identity, error)
	Identify(sample *image.Gray) (registry.Match, error)
	MarkVerified(id int, at time.Time) (models.Identity, error)
}

// Config holds the session tunables.
type Config struct {
	// Threshold is the exclusive upper bound on an accepted distance.
	Threshold       float64
	SampleSize      int
	SamplesRequired int
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		Threshold:       65,
		SampleSize:      100,
		SamplesRequired: 20,
	}
}

// State is a read-only view of the session.
type State struct {
	SessionID  string    `json:"session_id,omitempty"`
	Mode       Mode      `json:"mode"`
	TargetID   *int      `json:"target_id,omitempty"`
	Name       string    `json:"name,omitempty"`
	Collected  int       `json:"collected"`
	Required   int       `json:"required"`
	LastResult *bool     `json:"last_result"`
	StartedAt  time.Time `json:"started_at,omitempty"`
}

// Session is the capture state machine. The zero value is not usable.
type Session struct {
	mu       sync.Mutex
	cfg      Config
	detector vision.Detector
	registry Registry

	id         string
	mode       Mode
	targetID   *int
	name       string
	buffer     []*image.Gray
	lastResult *bool
	startedAt  time.Time
	seq        uint64
}

// New creates an idle session.
func New(detector vision.Detector, reg Registry, cfg Config) *Session {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = def.SampleSize
	}
	if cfg.SamplesRequired <= 0 {
		cfg.SamplesRequired = def.SamplesRequired
	}
	return &Session{
		cfg:      cfg,
		detector: detector,
		registry: reg,
	}
}

// Config returns the effective tunables.
func (s *Session) Config() Config {
	return s.cfg
}

// StartEnroll enters Enrolling for a new identity called name.
func (s *Session) StartEnroll(name string) (State, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return s.Snapshot(), errdefs.NewValidation("name", "must not be blank")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != Idle {
		return s.stateLocked(), errdefs.ErrBusy
	}
	s.beginLocked(Enrolling)
	s.name = name
	log.Infof("Session %s: enrolling %q", s.id, name)
	return s.stateLocked(), nil
}

// StartRecapture enters Recapturing for an existing identity.
func (s *Session) StartRecapture(id int) (State, error) {
	if !s.registry.Exists(id) {
		return s.Snapshot(), errdefs.NewNotFound(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != Idle {
		return s.stateLocked(), errdefs.ErrBusy
	}
	s.beginLocked(Recapturing)
	target := id
	s.targetID = &target
	log.Infof("Session %s: recapturing identity %d", s.id, id)
	return s.stateLocked(), nil
}

// StartVerify enters Verifying. It is rejected while the model is empty.
func (s *Session) StartVerify() (State, error) {
	if s.registry.ModelEmpty() {
		return s.Snapshot(), errdefs.ErrModelEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != Idle {
		return s.stateLocked(), errdefs.ErrBusy
	}
	s.beginLocked(Verifying)
	log.Infof("Session %s: verifying", s.id)
	return s.stateLocked(), nil
}

// Stop returns to Idle from any state and discards collected samples.
// It reports whether a session was active.
func (s *Session) Stop() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == Idle {
		return s.stateLocked(), false
	}
	log.Infof("Session %s: stopped in %s with %d samples", s.id, s.mode, len(s.buffer))
	s.idleLocked()
	return s.stateLocked(), true
}

// Abort ends the active session because of err and returns the final event.
// A verifying session records a failed result.
func (s *Session) Abort(err error) FrameEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortLocked(err)
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Mode returns the current mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// ProcessFrame runs one frame through the state machine. The returned error
// is ErrNotActive when idle, or the fault that aborted the session; in the
// latter case the event is final and carries the error as well.
func (s *Session) ProcessFrame(frame image.Image) (FrameEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == Idle {
		return FrameEvent{}, errdefs.ErrNotActive
	}

	gray := vision.Grayscale(frame)
	rects, err := s.detector.Detect(gray)
	if err != nil {
		fault := fmt.Errorf("%w: detect: %v", errdefs.ErrFrameFault, err)
		ev := s.abortLocked(fault)
		return ev, fault
	}

	s.seq++
	ev := FrameEvent{
		SessionID: s.id,
		Seq:       s.seq,
		Mode:      s.mode,
		Faces:     make([]Annotation, 0, len(rects)),
		At:        timezone.Now(),
	}

	switch s.mode {
	case Enrolling, Recapturing:
		err = s.collectLocked(gray, rects, &ev)
	case Verifying:
		s.verifyLocked(gray, rects, &ev)
	}
	return ev, err
}

func (s *Session) collectLocked(gray *image.Gray, rects []image.Rectangle, ev *FrameEvent) error {
	complete := false
	for _, r := range rects {
		ann := newAnnotation(r)
		if !complete && len(s.buffer) < s.cfg.SamplesRequired {
			s.buffer = append(s.buffer, vision.Normalize(vision.Crop(gray, r), s.cfg.SampleSize))
			ann.Sampled = true
			complete = len(s.buffer) == s.cfg.SamplesRequired
		}
		ev.Faces = append(ev.Faces, ann)
	}

	ev.Status = Status{
		Kind:      StatusCollecting,
		Collected: len(s.buffer),
		Required:  s.cfg.SamplesRequired,
	}
	if !complete {
		return nil
	}

	samples := s.buffer
	s.buffer = nil

	var (
		identity models.Identity
		err      error
	)
	if s.mode == Enrolling {
		identity, err = s.registry.Enroll(s.name, samples)
	} else {
		identity, err = s.registry.Recapture(*s.targetID, samples)
	}
	if err != nil {
		fault := fmt.Errorf("%w: commit %s: %w", errdefs.ErrFrameFault, s.mode, err)
		final := s.abortLocked(fault)
		ev.Status = final.Status
		ev.Final = true
		ev.Err = fault
		ev.Error = fault.Error()
		return fault
	}

	ev.Status.Kind = StatusCompleted
	ev.Status.Identity = &identity
	ev.Completed = &identity
	ev.Final = true
	log.Infof("Session %s: %s completed for identity %d", s.id, s.mode, identity.ID)
	s.idleLocked()
	return nil
}

func (s *Session) verifyLocked(gray *image.Gray, rects []image.Rectangle, ev *FrameEvent) {
	if len(rects) == 0 {
		ev.Status = s.verifyStatusLocked(nil)
		return
	}

	passed := false
	var who *models.Identity
	for _, r := range rects {
		ann := newAnnotation(r)
		match, err := s.registry.Identify(vision.Normalize(vision.Crop(gray, r), s.cfg.SampleSize))
		if err != nil {
			log.Warnf("Session %s: recognition failed: %v", s.id, err)
			ev.Faces = append(ev.Faces, ann)
			continue
		}

		ann.Label = match.Label
		ann.Distance = match.Distance
		if match.Known {
			ann.Name = match.Identity.Name
		}
		if match.Known && match.Distance < s.cfg.Threshold {
			ann.Accepted = true
			identity, err := s.registry.MarkVerified(match.Label, ev.At)
			if err != nil {
				log.Warnf("Session %s: could not record verification of %d: %v", s.id, match.Label, err)
				identity = match.Identity
			}
			if !passed {
				who = &identity
			}
			passed = true
		}
		ev.Faces = append(ev.Faces, ann)
	}

	previous := s.lastResult
	s.lastResult = &passed
	ev.ResultChanged = previous == nil || *previous != passed
	ev.Status = s.verifyStatusLocked(who)
}

func (s *Session) verifyStatusLocked(who *models.Identity) Status {
	st := Status{Kind: StatusPending, Identity: who}
	if s.lastResult != nil {
		if *s.lastResult {
			st.Kind = StatusPass
		} else {
			st.Kind = StatusFail
		}
	}
	return st
}

func (s *Session) abortLocked(err error) FrameEvent {
	ev := FrameEvent{
		SessionID: s.id,
		Seq:       s.seq + 1,
		Mode:      s.mode,
		Status:    Status{Kind: StatusAborted, Collected: len(s.buffer), Required: s.cfg.SamplesRequired},
		Final:     true,
		At:        timezone.Now(),
	}
	if err != nil {
		ev.Err = err
		ev.Error = err.Error()
	}
	if s.mode == Idle {
		return ev
	}

	if s.mode == Verifying {
		failed := false
		ev.ResultChanged = s.lastResult == nil || *s.lastResult
		s.lastResult = &failed
	}
	if errors.Is(err, errdefs.ErrFrameFault) {
		log.Errorf("Session %s: aborted: %v", s.id, err)
	} else {
		log.Warnf("Session %s: aborted: %v", s.id, err)
	}
	s.seq++
	s.idleLocked()
	return ev
}

func (s *Session) beginLocked(mode Mode) {
	s.id = uuid.NewString()
	s.mode = mode
	s.targetID = nil
	s.name = ""
	s.buffer = make([]*image.Gray, 0, s.cfg.SamplesRequired)
	s.lastResult = nil
	s.startedAt = timezone.Now()
	s.seq = 0
}

func (s *Session) idleLocked() {
	s.mode = Idle
	s.buffer = nil
	s.targetID = nil
	s.name = ""
}

func (s *Session) stateLocked() State {
	st := State{
		SessionID: s.id,
		Mode:      s.mode,
		Name:      s.name,
		Collected: len(s.buffer),
		Required:  s.cfg.SamplesRequired,
		StartedAt: s.startedAt,
	}
	if s.targetID != nil {
		id := *s.targetID
		st.TargetID = &id
	}
	if s.lastResult != nil {
		r := *s.lastResult
		st.LastResult = &r
	}
	return st
}
