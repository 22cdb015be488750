package homeassistant

import (
	"fmt"

	"facegate/config"
	"facegate/internal/version"

	log "github.com/sirupsen/logrus"
)

// Constants for Home Assistant MQTT Discovery
const (
	// Component-Typen
	ComponentBinarySensor = "binary_sensor"
	ComponentSensor       = "sensor"

	// Node-ID für facegate
	NodeID = "facegate"
)

// MessagePublisher ist der Teil des MQTT-Clients, den die Integration benötigt
type MessagePublisher interface {
	Topic(name string) string
	StatusTopic() string
	Publish(topic string, payload interface{}) error
	PublishRetain(topic string, payload interface{}) error
}

// SensorConfig repräsentiert die MQTT-Discovery-Konfiguration für einen Sensor in Home Assistant
type SensorConfig struct {
	Name                string  `json:"name"`
	UniqueID            string  `json:"unique_id"`
	StateTopic          string  `json:"state_topic"`
	Icon                string  `json:"icon,omitempty"`
	DeviceClass         string  `json:"device_class,omitempty"`
	JSONAttributesTopic string  `json:"json_attributes_topic,omitempty"`
	ValueTemplate       string  `json:"value_template,omitempty"`
	AvailabilityTopic   string  `json:"availability_topic,omitempty"`
	PayloadAvailable    string  `json:"payload_available,omitempty"`
	PayloadNotAvailable string  `json:"payload_not_available,omitempty"`
	Device              *Device `json:"device,omitempty"`
}

// Device repräsentiert die Geräteinformationen für Home Assistant
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryManager verwaltet die Home Assistant MQTT Discovery
type DiscoveryManager struct {
	mqttClient MessagePublisher
	cfg        config.HomeAssistantConfig
}

// NewDiscoveryManager erstellt einen neuen Manager für Home Assistant Discovery
func NewDiscoveryManager(mqttClient MessagePublisher, cfg config.HomeAssistantConfig) *DiscoveryManager {
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}
	return &DiscoveryManager{
		mqttClient: mqttClient,
		cfg:        cfg,
	}
}

func (dm *DiscoveryManager) device() *Device {
	return &Device{
		Identifiers:  []string{"facegate"},
		Name:         "facegate",
		Manufacturer: "facegate",
		Model:        "Webcam face verification",
		SWVersion:    version.Version,
	}
}

// ConfigTopic liefert das Discovery-Topic eines Sensors
func (dm *DiscoveryManager) ConfigTopic(component, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", dm.cfg.DiscoveryPrefix, component, NodeID, objectID)
}

// Register veröffentlicht die Discovery-Konfiguration: einen binary_sensor für
// das Verifikationsergebnis und einen Sensor für die zuletzt erkannte Person
func (dm *DiscoveryManager) Register() error {
	if !dm.cfg.Enabled {
		log.Debug("Home Assistant discovery disabled")
		return nil
	}
	device := dm.device()

	verified := SensorConfig{
		Name:                "facegate verified",
		UniqueID:            "facegate_verified",
		StateTopic:          dm.mqttClient.Topic(TopicVerify),
		DeviceClass:         "occupancy",
		JSONAttributesTopic: dm.mqttClient.Topic(TopicVerify),
		ValueTemplate:       "{{ 'ON' if value_json.result == 'pass' else 'OFF' }}",
		Icon:                "mdi:face-recognition",
		AvailabilityTopic:   dm.mqttClient.StatusTopic(),
		PayloadAvailable:    "online",
		PayloadNotAvailable: "offline",
		Device:              device,
	}
	log.Info("Registering Home Assistant binary sensor for verification result")
	if err := dm.mqttClient.PublishRetain(dm.ConfigTopic(ComponentBinarySensor, "verified"), verified); err != nil {
		return fmt.Errorf("failed to publish discovery configuration: %w", err)
	}

	identity := SensorConfig{
		Name:                "facegate identity",
		UniqueID:            "facegate_identity",
		StateTopic:          dm.mqttClient.Topic(TopicVerify),
		ValueTemplate:       "{{ value_json.name | default('unknown') }}",
		Icon:                "mdi:account",
		AvailabilityTopic:   dm.mqttClient.StatusTopic(),
		PayloadAvailable:    "online",
		PayloadNotAvailable: "offline",
		Device:              device,
	}
	if err := dm.mqttClient.PublishRetain(dm.ConfigTopic(ComponentSensor, "identity"), identity); err != nil {
		return fmt.Errorf("failed to publish discovery configuration: %w", err)
	}
	return nil
}

// PublishAvailability veröffentlicht den Online-Status
func (dm *DiscoveryManager) PublishAvailability(online bool) error {
	status := "offline"
	if online {
		status = "online"
	}
	return dm.mqttClient.PublishRetain(dm.mqttClient.StatusTopic(), status)
}
