package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"facegate/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Statuswerte für das Availability-Topic
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Client ist der MQTT-Client für Verifikationsergebnisse und Steuerbefehle
type Client struct {
	config   config.MQTTConfig
	client   mqtt.Client
	handlers []MessageHandler
	mu       sync.RWMutex

	// newClient ist in Tests ersetzbar
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// MessageHandler ist ein Interface für Handler, die MQTT-Nachrichten verarbeiten
type MessageHandler interface {
	HandleMessage(topic string, payload []byte)
}

// NewClient erstellt einen neuen MQTT-Client
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{
		config:    cfg,
		handlers:  make([]MessageHandler, 0),
		newClient: mqtt.NewClient,
	}
}

// Topic setzt den konfigurierten Präfix vor name
func (c *Client) Topic(name string) string {
	return fmt.Sprintf("%s/%s", c.config.TopicPrefix, name)
}

// StatusTopic ist das Availability-Topic (Last Will: offline)
func (c *Client) StatusTopic() string {
	return c.Topic("status")
}

// CommandTopic nimmt Steuerbefehle wie "verify" und "stop" entgegen
func (c *Client) CommandTopic() string {
	return c.Topic("command")
}

// RegisterHandler registriert einen neuen MessageHandler
func (c *Client) RegisterHandler(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
	log.Debug("Registered new MQTT message handler")
}

// Start startet den MQTT-Client und verbindet ihn mit dem Broker
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	// Optionale Authentifizierung
	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	// Bei Verbindungsabbruch meldet der Broker uns als offline
	opts.SetWill(c.StatusTopic(), StatusOffline, 1, true)

	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)

	// Automatische Wiederverbindung
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	client := c.newClient(opts)
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}

	log.Info("MQTT client connected successfully")
	return nil
}

// Stop meldet den Client offline und trennt die Verbindung
func (c *Client) Stop() {
	if !c.IsConnected() {
		return
	}
	if err := c.PublishRetain(c.StatusTopic(), StatusOffline); err != nil {
		log.Warnf("Failed to publish offline status: %v", err)
	}

	log.Info("Disconnecting MQTT client...")
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	client.Disconnect(250) // 250ms Wartezeit
	log.Info("MQTT client disconnected")
}

// IsConnected prüft, ob der Client verbunden ist
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.client.IsConnected()
}

// onConnectHandler wird auch nach jeder Wiederverbindung aufgerufen
func (c *Client) onConnectHandler(client mqtt.Client) {
	log.Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)

	if token := client.Publish(c.StatusTopic(), 1, true, StatusOnline); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to publish online status: %v", token.Error())
	}

	topic := c.CommandTopic()
	log.Infof("Subscribing to MQTT topic: %s", topic)
	if token := client.Subscribe(topic, 1, c.messageHandler); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to subscribe to topic %s: %v", topic, token.Error())
	} else {
		log.Infof("Successfully subscribed to topic: %s", topic)
	}
}

// connectionLostHandler wird aufgerufen, wenn die Verbindung verloren geht
func (c *Client) connectionLostHandler(_ mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
}

// messageHandler verteilt eingehende Nachrichten an alle Handler
func (c *Client) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	log.Debugf("Received MQTT message on topic: %s", msg.Topic())
	c.dispatch(msg.Topic(), msg.Payload())
}

func (c *Client) dispatch(topic string, payload []byte) {
	c.mu.RLock()
	handlers := append([]MessageHandler(nil), c.handlers...)
	c.mu.RUnlock()

	for _, handler := range handlers {
		go handler.HandleMessage(topic, payload)
	}
}

// EncodePayload wandelt Strings, Bytes und Zahlen direkt um, alles andere als JSON
func EncodePayload(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return []byte(fmt.Sprintf("%v", p)), nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload to JSON: %w", err)
		}
		return b, nil
	}
}

// PublishMessage veröffentlicht eine Nachricht an ein MQTT-Topic
func (c *Client) PublishMessage(topic string, payload interface{}, retain bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	payloadBytes, err := EncodePayload(payload)
	if err != nil {
		return err
	}

	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	token := client.Publish(topic, 1, retain, payloadBytes)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, token.Error())
	}

	log.Debugf("Published message to topic: %s", topic)
	return nil
}

// PublishRetain veröffentlicht eine Nachricht mit dem Retain-Flag
func (c *Client) PublishRetain(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, true)
}

// Publish veröffentlicht eine Nachricht ohne Retain-Flag
func (c *Client) Publish(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, false)
}
