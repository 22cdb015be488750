package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FACEGATE_SERVER_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("FACEGATE_DB_FILE", filepath.Join(dir, "data", "users.db"))
	t.Setenv("FACEGATE_RECOGNIZER_MODEL_FILE", filepath.Join(dir, "model", "face_model.yml"))

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 65.0, cfg.Recognizer.Threshold)
	assert.Equal(t, 100, cfg.Recognizer.SampleSize)
	assert.Equal(t, 20, cfg.Recognizer.SamplesRequired)
	assert.Equal(t, time.Second, cfg.Camera.StopTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Cleanup.Interval)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "homeassistant", cfg.MQTT.HomeAssistant.DiscoveryPrefix)

	assert.DirExists(t, filepath.Join(dir, "data"))
	assert.DirExists(t, filepath.Join(dir, "model"))
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8080
  data_dir: ` + filepath.Join(dir, "data") + `
log:
  level: DEBUG
db:
  file: ` + filepath.Join(dir, "data", "users.db") + `
recognizer:
  model_file: ` + filepath.Join(dir, "face_model.yml") + `
  threshold: 50
  samples_required: 5
mqtt:
  enabled: true
  broker: broker.local
camera:
  stop_timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("FACEGATE_MQTT_TOPIC_PREFIX", "door")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 50.0, cfg.Recognizer.Threshold)
	assert.Equal(t, 5, cfg.Recognizer.SamplesRequired)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "broker.local", cfg.MQTT.Broker)
	assert.Equal(t, "door", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 3*time.Second, cfg.Camera.StopTimeout)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
