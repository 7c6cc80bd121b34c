package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/invisy/PitDetector/internal/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load default config: %s", err.Error())
	}

	if cfg.APIPort != "8000" || cfg.DBDriver != "sqlite" || cfg.MQTTAgentTopic != "agent" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.BumpThreshold != 3000 || cfg.PotholeThreshold != -2000 {
		t.Errorf("Unexpected default thresholds: %f / %f", cfg.BumpThreshold, cfg.PotholeThreshold)
	}
	if cfg.SubscriberSendTimeout != 2*time.Second {
		t.Errorf("Unexpected default send timeout: %s", cfg.SubscriberSendTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_API_PORT", "8484")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("BUMP_THRESHOLD", "12.5")
	t.Setenv("SUBSCRIBER_SEND_TIMEOUT", "250ms")
	t.Setenv("AMQP_EVENTS_ENABLED", "true")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %s", err.Error())
	}

	if cfg.APIPort != "8484" || cfg.DBDriver != "postgres" || cfg.BumpThreshold != 12.5 {
		t.Errorf("Overrides were not applied: %+v", cfg)
	}
	if cfg.SubscriberSendTimeout != 250*time.Millisecond || !cfg.AMQPEventsEnabled {
		t.Errorf("Overrides were not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	for key, value := range map[string]string{
		"DB_DRIVER":               "mongodb",
		"INGEST_WORKERS":          "many",
		"POTHOLE_THRESHOLD":       "5000",
		"SUBSCRIBER_SEND_TIMEOUT": "-1s",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)

			if _, err := config.Load(); err == nil {
				t.Errorf("Expected %s=%s to be rejected", key, value)
			}
		})
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	os.WriteFile(path, []byte("MQTT_AGENT_TOPIC=road/agent\n"), 0o600)
	t.Cleanup(func() { os.Unsetenv("MQTT_AGENT_TOPIC") })

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Failed to load env file: %s", err.Error())
	}

	if cfg.MQTTAgentTopic != "road/agent" {
		t.Errorf("Env file value was not applied: %s", cfg.MQTTAgentTopic)
	}

	if _, err = config.Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("Expected a missing explicit env file to be reported.")
	}
}
