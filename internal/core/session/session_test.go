package session

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"facegate/internal/core/errdefs"
	"facegate/internal/core/registry"
	"facegate/internal/integrations/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var face = image.Rect(60, 40, 220, 200)

type harness struct {
	store     *memory.Store
	rec       *memory.Recognizer
	detector  *memory.Detector
	mgr       *registry.Manager
	modelPath string
	s         *Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     memory.NewStore(),
		rec:       memory.NewRecognizer(),
		detector:  memory.NewDetector(face),
		modelPath: filepath.Join(t.TempDir(), "face_model.yml"),
	}
	mgr, err := registry.New(h.store, h.rec, h.modelPath)
	require.NoError(t, err)
	h.mgr = mgr
	h.s = New(h.detector, mgr, DefaultConfig())
	return h
}

func frame(value uint8) image.Image {
	return memory.UniformFrame(320, 240, value)
}

func (h *harness) feed(t *testing.T, n int, value uint8) []FrameEvent {
	t.Helper()
	events := make([]FrameEvent, 0, n)
	for i := 0; i < n; i++ {
		ev, err := h.s.ProcessFrame(frame(value))
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func (h *harness) enroll(t *testing.T, name string, value uint8) int {
	t.Helper()
	_, err := h.s.StartEnroll(name)
	require.NoError(t, err)
	events := h.feed(t, 20, value)
	last := events[len(events)-1]
	require.NotNil(t, last.Completed)
	return last.Completed.ID
}

func TestEnrollCollectsTwentySamples(t *testing.T) {
	h := newHarness(t)

	st, err := h.s.StartEnroll("Alice")
	require.NoError(t, err)
	assert.Equal(t, Enrolling, st.Mode)
	assert.NotEmpty(t, st.SessionID)

	events := h.feed(t, 19, 80)
	last := events[18]
	assert.Equal(t, StatusCollecting, last.Status.Kind)
	assert.Equal(t, "capturing: 19/20", last.Status.Text())
	assert.False(t, last.Final)
	assert.Equal(t, 0, h.mgr.Len())

	events = h.feed(t, 1, 80)
	done := events[0]
	assert.True(t, done.Final)
	assert.Equal(t, StatusCompleted, done.Status.Kind)
	assert.Equal(t, "capturing: 20/20", done.Status.Text())
	require.NotNil(t, done.Completed)
	assert.Equal(t, 0, done.Completed.ID)
	assert.Equal(t, "Alice", done.Completed.Name)

	assert.Equal(t, Idle, h.s.Mode())
	assert.Equal(t, 1, h.mgr.Len())
	assert.Equal(t, []int{0}, h.rec.Labels())

	match, err := h.mgr.Identify(memory.Samples(1, 100, 80)[0])
	require.NoError(t, err)
	assert.Equal(t, 0, match.Label)
	assert.InDelta(t, 0, match.Distance, 0.001)
}

func TestStartEnrollBlankName(t *testing.T) {
	h := newHarness(t)

	_, err := h.s.StartEnroll("   ")
	assert.True(t, errdefs.IsValidation(err))
	assert.Equal(t, Idle, h.s.Mode())
	assert.Equal(t, 0, h.mgr.Len())
}

func TestOnlyOneActiveSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.StartEnroll("Alice")
	require.NoError(t, err)

	_, err = h.s.StartEnroll("Bob")
	assert.ErrorIs(t, err, errdefs.ErrBusy)

	st := h.s.Snapshot()
	assert.Equal(t, Enrolling, st.Mode)
	assert.Equal(t, "Alice", st.Name)
}

func TestStartVerifyWithEmptyModel(t *testing.T) {
	h := newHarness(t)

	_, err := h.s.StartVerify()
	assert.ErrorIs(t, err, errdefs.ErrModelEmpty)
	assert.Equal(t, Idle, h.s.Mode())
}

func TestStartRecaptureUnknownID(t *testing.T) {
	h := newHarness(t)

	_, err := h.s.StartRecapture(3)
	assert.True(t, errdefs.IsNotFound(err))
	assert.Equal(t, Idle, h.s.Mode())
}

func TestRecaptureKeepsIdentity(t *testing.T) {
	h := newHarness(t)
	id := h.enroll(t, "Alice", 80)

	st, err := h.s.StartRecapture(id)
	require.NoError(t, err)
	require.NotNil(t, st.TargetID)
	assert.Equal(t, id, *st.TargetID)

	events := h.feed(t, 20, 90)
	done := events[19]
	require.NotNil(t, done.Completed)
	assert.Equal(t, id, done.Completed.ID)
	assert.NotNil(t, done.Completed.UpdatedAt)
	assert.Equal(t, 1, h.mgr.Len())

	got, err := h.mgr.Get(id)
	require.NoError(t, err)
	assert.NotNil(t, got.UpdatedAt)
}

func TestStopDiscardsSamples(t *testing.T) {
	h := newHarness(t)
	h.enroll(t, "Alice", 80)
	modelBefore, err := os.ReadFile(h.modelPath)
	require.NoError(t, err)
	savesBefore := h.store.Saves()

	_, err = h.s.StartEnroll("Bob")
	require.NoError(t, err)
	h.feed(t, 12, 200)

	st, wasActive := h.s.Stop()
	assert.True(t, wasActive)
	assert.Equal(t, Idle, st.Mode)
	assert.Equal(t, 0, st.Collected)

	modelAfter, err := os.ReadFile(h.modelPath)
	require.NoError(t, err)
	assert.Equal(t, modelBefore, modelAfter)
	assert.Equal(t, savesBefore, h.store.Saves())
	assert.Equal(t, 1, h.mgr.Len())

	_, wasActive = h.s.Stop()
	assert.False(t, wasActive)
}

func TestMultipleFacesEachContributeASample(t *testing.T) {
	h := newHarness(t)
	h.detector.SetFaces(
		image.Rect(0, 0, 100, 100),
		image.Rect(110, 0, 210, 100),
		image.Rect(220, 0, 320, 100),
	)
	_, err := h.s.StartEnroll("Crowd")
	require.NoError(t, err)

	events := h.feed(t, 6, 80)
	assert.Equal(t, 18, events[5].Status.Collected)

	// completion happens on the second face of the seventh frame
	events = h.feed(t, 1, 80)
	done := events[0]
	require.Len(t, done.Faces, 3)
	assert.True(t, done.Faces[0].Sampled)
	assert.True(t, done.Faces[1].Sampled)
	assert.False(t, done.Faces[2].Sampled)
	assert.True(t, done.Final)
	assert.Equal(t, 20, done.Status.Collected)
}

func TestVerifyThreshold(t *testing.T) {
	h := newHarness(t)
	id := h.enroll(t, "Alice", 80)

	_, err := h.s.StartVerify()
	require.NoError(t, err)

	events := h.feed(t, 1, 130) // distance 50
	ev := events[0]
	require.Len(t, ev.Faces, 1)
	assert.True(t, ev.Faces[0].Accepted)
	assert.Equal(t, id, ev.Faces[0].Label)
	assert.Equal(t, "Alice", ev.Faces[0].Name)
	assert.Equal(t, StatusPass, ev.Status.Kind)
	assert.True(t, ev.ResultChanged)
	require.NotNil(t, ev.Status.Identity)

	got, err := h.mgr.Get(id)
	require.NoError(t, err)
	assert.NotNil(t, got.LastVerified)

	events = h.feed(t, 1, 145) // distance 65 is not below the threshold
	ev = events[0]
	assert.False(t, ev.Faces[0].Accepted)
	assert.Equal(t, StatusFail, ev.Status.Kind)
	assert.True(t, ev.ResultChanged)

	events = h.feed(t, 1, 150)
	assert.False(t, events[0].ResultChanged)

	st := h.s.Snapshot()
	require.NotNil(t, st.LastResult)
	assert.False(t, *st.LastResult)
	assert.Equal(t, Verifying, st.Mode)
}

func TestVerifyWithoutFacesKeepsLastResult(t *testing.T) {
	h := newHarness(t)
	h.enroll(t, "Alice", 80)
	_, err := h.s.StartVerify()
	require.NoError(t, err)

	h.detector.SetFaces()
	events := h.feed(t, 1, 80)
	assert.Equal(t, StatusPending, events[0].Status.Kind)
	assert.False(t, events[0].Status.HasBadge())

	h.detector.SetFaces(face)
	h.feed(t, 1, 80)
	h.detector.SetFaces()
	events = h.feed(t, 1, 80)
	assert.Equal(t, StatusPass, events[0].Status.Kind)
}

func TestVerifyRejectsDeletedLabel(t *testing.T) {
	h := newHarness(t)
	alice := h.enroll(t, "Alice", 80)
	h.enroll(t, "Bob", 200)
	require.NoError(t, h.mgr.Delete(alice))

	_, err := h.s.StartVerify()
	require.NoError(t, err)
	events := h.feed(t, 1, 80)
	ann := events[0].Faces[0]
	assert.Equal(t, alice, ann.Label)
	assert.False(t, ann.Accepted)
	assert.Empty(t, ann.Name)
}

func TestRecognizerFaultFailsVerification(t *testing.T) {
	h := newHarness(t)
	h.enroll(t, "Alice", 80)
	_, err := h.s.StartVerify()
	require.NoError(t, err)

	h.rec.FailPredict(errors.New("bad mat"))
	events := h.feed(t, 1, 80)
	assert.Equal(t, StatusFail, events[0].Status.Kind)
	assert.Equal(t, -1, events[0].Faces[0].Label)
	assert.Equal(t, Verifying, h.s.Mode())
}

func TestDetectorFaultAbortsEnrollment(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.StartEnroll("Alice")
	require.NoError(t, err)
	h.feed(t, 5, 80)

	h.detector.FailWith(errors.New("cascade gone"))
	ev, err := h.s.ProcessFrame(frame(80))
	require.ErrorIs(t, err, errdefs.ErrFrameFault)
	assert.True(t, ev.Final)
	assert.Equal(t, StatusAborted, ev.Status.Kind)
	assert.NotEmpty(t, ev.Error)
	assert.Equal(t, Idle, h.s.Mode())
	assert.Equal(t, 0, h.mgr.Len())
}

func TestDetectorFaultFailsVerification(t *testing.T) {
	h := newHarness(t)
	h.enroll(t, "Alice", 80)
	_, err := h.s.StartVerify()
	require.NoError(t, err)
	h.feed(t, 1, 80)

	h.detector.FailWith(errors.New("cascade gone"))
	ev, err := h.s.ProcessFrame(frame(80))
	require.Error(t, err)
	assert.True(t, ev.ResultChanged)

	st := h.s.Snapshot()
	assert.Equal(t, Idle, st.Mode)
	require.NotNil(t, st.LastResult)
	assert.False(t, *st.LastResult)
}

func TestCommitFailureAbortsWithoutPartialState(t *testing.T) {
	h := newHarness(t)
	h.store.FailSave(errors.New("disk full"))

	_, err := h.s.StartEnroll("Alice")
	require.NoError(t, err)
	h.feed(t, 19, 80)

	ev, err := h.s.ProcessFrame(frame(80))
	require.ErrorIs(t, err, errdefs.ErrFrameFault)
	assert.True(t, ev.Final)
	assert.Nil(t, ev.Completed)
	assert.Equal(t, Idle, h.s.Mode())
	assert.Equal(t, 0, h.mgr.Len())
	assert.True(t, h.rec.Empty())
	assert.NoFileExists(t, h.modelPath)
}

func TestProcessFrameWhenIdle(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.ProcessFrame(frame(80))
	assert.ErrorIs(t, err, errdefs.ErrNotActive)
}

func TestAbortFromCamera(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.StartEnroll("Alice")
	require.NoError(t, err)
	h.feed(t, 3, 80)

	ev := h.s.Abort(errdefs.ErrCameraUnavailable)
	assert.True(t, ev.Final)
	assert.Equal(t, Enrolling, ev.Mode)
	assert.Equal(t, 3, ev.Status.Collected)
	assert.Equal(t, Idle, h.s.Mode())
}

func TestModeJSON(t *testing.T) {
	text, err := Verifying.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "verifying", string(text))
	assert.True(t, Recapturing.Collecting())
	assert.False(t, Verifying.Collecting())
}
