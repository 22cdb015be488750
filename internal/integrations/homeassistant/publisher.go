package homeassistant

import (
	"image"
	"strings"
	"time"

	"facegate/internal/core/models"
	"facegate/internal/core/session"

	log "github.com/sirupsen/logrus"
)

// Topics relativ zum konfigurierten Präfix
const (
	TopicVerify   = "verify"
	TopicEnrolled = "enrolled"
)

// Werte für VerifyEvent.Result
const (
	ResultPass = "pass"
	ResultFail = "fail"
	ResultIdle = "idle"
)

// VerifyEvent wird bei jedem Wechsel des Verifikationsergebnisses veröffentlicht
type VerifyEvent struct {
	SessionID  string           `json:"session_id,omitempty"`
	Result     string           `json:"result"`
	IdentityID *int             `json:"identity_id,omitempty"`
	Name       string           `json:"name,omitempty"`
	Distance   float64          `json:"distance,omitempty"`
	Faces      []models.FaceBox `json:"faces,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Publisher veröffentlicht Verifikationsergebnisse und Registrierungen via MQTT.
// Er wird als Sink am Capture-Worker registriert.
type Publisher struct {
	mqttClient MessagePublisher
	now        func() time.Time
}

// NewPublisher erstellt einen neuen MQTT-Publisher für Home Assistant
func NewPublisher(mqttClient MessagePublisher) *Publisher {
	return &Publisher{mqttClient: mqttClient, now: time.Now}
}

// Publish implementiert processor.Sink
func (p *Publisher) Publish(ev session.FrameEvent, _ image.Image) {
	if ev.Completed != nil {
		if err := p.PublishEnrolled(*ev.Completed); err != nil {
			log.Errorf("Failed to publish enrollment of %d: %v", ev.Completed.ID, err)
		}
	}
	if ev.Mode == session.Verifying && ev.ResultChanged {
		if err := p.PublishVerify(ev); err != nil {
			log.Errorf("Failed to publish verification result: %v", err)
		}
	}
}

// Clear setzt den Sensor nach dem Stoppen zurück
func (p *Publisher) Clear() {
	event := VerifyEvent{Result: ResultIdle, Timestamp: p.now()}
	if err := p.mqttClient.PublishRetain(p.mqttClient.Topic(TopicVerify), event); err != nil {
		log.Debugf("Failed to reset verification state: %v", err)
	}
}

// PublishVerify veröffentlicht das Ergebnis eines Frames (retained, damit der Sensor
// nach einem Neustart von Home Assistant den letzten Stand kennt)
func (p *Publisher) PublishVerify(ev session.FrameEvent) error {
	event := VerifyEvent{
		SessionID: ev.SessionID,
		Result:    ResultFail,
		Timestamp: ev.At,
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if face, ok := ev.Accepted(); ok {
		event.Result = ResultPass
		id := face.Label
		event.IdentityID = &id
		event.Name = face.Name
		event.Distance = face.Distance
	}
	for _, f := range ev.Faces {
		event.Faces = append(event.Faces, f.Box)
	}

	return p.mqttClient.PublishRetain(p.mqttClient.Topic(TopicVerify), event)
}

// PublishEnrolled meldet eine abgeschlossene Registrierung oder Neuaufnahme
func (p *Publisher) PublishEnrolled(identity models.Identity) error {
	return p.mqttClient.Publish(p.mqttClient.Topic(TopicEnrolled), identity)
}

// Controller ist der Teil des Capture-Workers, der per MQTT gesteuert werden kann
type Controller interface {
	StartVerify() (session.State, error)
	Stop() session.State
}

// CommandHandler setzt Befehle vom Command-Topic um ("verify", "stop")
type CommandHandler struct {
	controller Controller
}

// NewCommandHandler erstellt einen neuen CommandHandler
func NewCommandHandler(controller Controller) *CommandHandler {
	return &CommandHandler{controller: controller}
}

// HandleMessage implementiert mqtt.MessageHandler
func (h *CommandHandler) HandleMessage(topic string, payload []byte) {
	command := strings.ToLower(strings.TrimSpace(string(payload)))
	switch command {
	case "verify":
		if _, err := h.controller.StartVerify(); err != nil {
			log.Warnf("MQTT command %q on %s failed: %v", command, topic, err)
			return
		}
		log.Infof("Verification started via MQTT")
	case "stop":
		h.controller.Stop()
		log.Infof("Session stopped via MQTT")
	default:
		log.Warnf("Unknown MQTT command %q on %s", command, topic)
	}
}
