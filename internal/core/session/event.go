package session

import (
	"fmt"
	"image"
	"time"

	"facegate/internal/core/models"
)

// Mode is the state of the capture session.
type Mode int

const (
	Idle Mode = iota
	Enrolling
	Recapturing
	Verifying
)

var modeNames = map[Mode]string{
	Idle:        "idle",
	Enrolling:   "enrolling",
	Recapturing: "recapturing",
	Verifying:   "verifying",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Collecting reports whether the mode accumulates samples.
func (m Mode) Collecting() bool {
	return m == Enrolling || m == Recapturing
}

// StatusKind classifies the session-level overlay of a frame.
type StatusKind string

const (
	StatusIdle       StatusKind = "idle"
	StatusCollecting StatusKind = "collecting"
	StatusPending    StatusKind = "pending" // verifying, no face seen yet
	StatusPass       StatusKind = "pass"
	StatusFail       StatusKind = "fail"
	StatusCompleted  StatusKind = "completed"
	StatusAborted    StatusKind = "aborted"
	StatusStopped    StatusKind = "stopped"
)

// Status is the session-level overlay of one frame.
type Status struct {
	Kind      StatusKind       `json:"kind"`
	Collected int              `json:"collected"`
	Required  int              `json:"required"`
	Identity  *models.Identity `json:"identity,omitempty"`
}

// Text is the untranslated status line shown on the badge.
func (s Status) Text() string {
	switch s.Kind {
	case StatusCollecting, StatusCompleted:
		return fmt.Sprintf("capturing: %d/%d", s.Collected, s.Required)
	case StatusPass:
		return "verified"
	case StatusFail:
		return "not verified"
	case StatusAborted:
		return "aborted"
	case StatusStopped:
		return "stopped"
	}
	return ""
}

// HasBadge reports whether a colored badge is drawn for this status.
func (s Status) HasBadge() bool {
	switch s.Kind {
	case StatusCollecting, StatusCompleted, StatusPass, StatusFail:
		return true
	}
	return false
}

// Annotation describes one detected face of a frame.
type Annotation struct {
	Rect    image.Rectangle `json:"-"`
	Box     models.FaceBox  `json:"box"`
	Sampled bool            `json:"sampled,omitempty"`

	// Label is -1 unless the face was classified.
	Label    int     `json:"label"`
	Name     string  `json:"name,omitempty"`
	Distance float64 `json:"distance,omitempty"`
	Accepted bool    `json:"accepted"`
}

func newAnnotation(r image.Rectangle) Annotation {
	return Annotation{
		Rect:  r,
		Box:   models.FaceBox{Left: r.Min.X, Top: r.Min.Y, Width: r.Dx(), Height: r.Dy()},
		Label: -1,
	}
}

// FrameEvent is the immutable result of processing one frame. Presentation
// renders it; nothing in it refers back to mutable session state.
type FrameEvent struct {
	SessionID string       `json:"session_id"`
	Seq       uint64       `json:"seq"`
	Mode      Mode         `json:"mode"`
	Faces     []Annotation `json:"faces"`
	Status    Status       `json:"status"`

	// Completed is the identity committed on this frame, if any.
	Completed *models.Identity `json:"completed,omitempty"`

	// ResultChanged is set when the verify outcome differs from the previous frame.
	ResultChanged bool      `json:"result_changed,omitempty"`
	Final         bool      `json:"final,omitempty"`
	Error         string    `json:"error,omitempty"`
	Err           error     `json:"-"`
	At            time.Time `json:"at"`
}

// Accepted returns the first accepted face of the frame.
func (e FrameEvent) Accepted() (Annotation, bool) {
	for _, f := range e.Faces {
		if f.Accepted {
			return f, true
		}
	}
	return Annotation{}, false
}
