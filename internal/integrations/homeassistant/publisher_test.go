package homeassistant

import (
	"errors"
	"sync"
	"testing"
	"time"

	"facegate/config"
	"facegate/internal/core/errdefs"
	"facegate/internal/core/models"
	"facegate/internal/core/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type message struct {
	topic    string
	payload  interface{}
	retained bool
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (f *fakePublisher) Topic(name string) string { return "facegate/" + name }

func (f *fakePublisher) StatusTopic() string { return "facegate/status" }

func (f *fakePublisher) Publish(topic string, payload interface{}) error {
	return f.record(topic, payload, false)
}

func (f *fakePublisher) PublishRetain(topic string, payload interface{}) error {
	return f.record(topic, payload, true)
}

func (f *fakePublisher) record(topic string, payload interface{}, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message{topic: topic, payload: payload, retained: retained})
	return nil
}

func TestPublisherVerifyChanges(t *testing.T) {
	pub := &fakePublisher{}
	p := NewPublisher(pub)
	at := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

	p.Publish(session.FrameEvent{
		SessionID:     "s1",
		Mode:          session.Verifying,
		ResultChanged: true,
		At:            at,
		Faces: []session.Annotation{
			{Box: models.FaceBox{Left: 1, Top: 2, Width: 80, Height: 80}, Label: 3, Name: "Bob", Distance: 41, Accepted: true},
		},
	}, nil)
	// unverändertes Ergebnis wird nicht erneut gesendet
	p.Publish(session.FrameEvent{SessionID: "s1", Mode: session.Verifying}, nil)

	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	assert.Equal(t, "facegate/verify", msg.topic)
	assert.True(t, msg.retained)

	event := msg.payload.(VerifyEvent)
	assert.Equal(t, ResultPass, event.Result)
	require.NotNil(t, event.IdentityID)
	assert.Equal(t, 3, *event.IdentityID)
	assert.Equal(t, "Bob", event.Name)
	assert.Equal(t, at, event.Timestamp)
	assert.Len(t, event.Faces, 1)
}

func TestPublisherRejectedAndCleared(t *testing.T) {
	pub := &fakePublisher{}
	p := NewPublisher(pub)
	p.now = func() time.Time { return time.Unix(0, 0) }

	p.Publish(session.FrameEvent{Mode: session.Verifying, ResultChanged: true, Faces: []session.Annotation{{Label: -1}}}, nil)
	p.Clear()

	require.Len(t, pub.messages, 2)
	rejected := pub.messages[0].payload.(VerifyEvent)
	assert.Equal(t, ResultFail, rejected.Result)
	assert.Nil(t, rejected.IdentityID)
	assert.Equal(t, time.Unix(0, 0), rejected.Timestamp)

	cleared := pub.messages[1].payload.(VerifyEvent)
	assert.Equal(t, ResultIdle, cleared.Result)
}

func TestPublisherEnrolled(t *testing.T) {
	pub := &fakePublisher{}
	p := NewPublisher(pub)

	identity := models.Identity{ID: 4, Name: "Dana"}
	p.Publish(session.FrameEvent{Mode: session.Enrolling, Completed: &identity, Final: true}, nil)

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "facegate/enrolled", pub.messages[0].topic)
	assert.False(t, pub.messages[0].retained)
	assert.Equal(t, identity, pub.messages[0].payload)
}

func TestPublisherSurvivesBrokerErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	p := NewPublisher(pub)
	assert.NotPanics(t, func() {
		p.Publish(session.FrameEvent{Mode: session.Verifying, ResultChanged: true}, nil)
		p.Clear()
	})
}

func TestDiscoveryRegister(t *testing.T) {
	pub := &fakePublisher{}
	dm := NewDiscoveryManager(pub, config.HomeAssistantConfig{Enabled: true})

	require.NoError(t, dm.Register())
	require.Len(t, pub.messages, 2)

	assert.Equal(t, "homeassistant/binary_sensor/facegate/verified/config", pub.messages[0].topic)
	sensor := pub.messages[0].payload.(SensorConfig)
	assert.Equal(t, "facegate/verify", sensor.StateTopic)
	assert.Equal(t, "facegate/status", sensor.AvailabilityTopic)
	require.NotNil(t, sensor.Device)
	assert.Equal(t, []string{"facegate"}, sensor.Device.Identifiers)

	assert.Equal(t, "homeassistant/sensor/facegate/identity/config", pub.messages[1].topic)

	require.NoError(t, dm.PublishAvailability(true))
	assert.Equal(t, message{topic: "facegate/status", payload: "online", retained: true}, pub.messages[2])
}

func TestDiscoveryDisabled(t *testing.T) {
	pub := &fakePublisher{}
	dm := NewDiscoveryManager(pub, config.HomeAssistantConfig{Enabled: false, DiscoveryPrefix: "ha"})
	require.NoError(t, dm.Register())
	assert.Empty(t, pub.messages)
	assert.Equal(t, "ha/sensor/facegate/x/config", dm.ConfigTopic(ComponentSensor, "x"))
}

type mockController struct {
	mock.Mock
}

func (m *mockController) StartVerify() (session.State, error) {
	args := m.Called()
	return args.Get(0).(session.State), args.Error(1)
}

func (m *mockController) Stop() session.State {
	return m.Called().Get(0).(session.State)
}

func TestCommandHandler(t *testing.T) {
	ctrl := new(mockController)
	ctrl.On("StartVerify").Return(session.State{Mode: session.Verifying}, nil).Once()
	ctrl.On("StartVerify").Return(session.State{}, errdefs.ErrModelEmpty).Once()
	ctrl.On("Stop").Return(session.State{}).Once()

	h := NewCommandHandler(ctrl)
	h.HandleMessage("facegate/command", []byte("verify"))
	h.HandleMessage("facegate/command", []byte(" VERIFY\n"))
	h.HandleMessage("facegate/command", []byte("stop"))
	h.HandleMessage("facegate/command", []byte("reboot"))

	ctrl.AssertExpectations(t)
}
