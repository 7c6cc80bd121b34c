package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

//Config lists the tunable parameters of the store service
type Config struct {
	APIPort  string
	LogLevel string

	DBDriver         string
	SQLitePath       string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	BumpThreshold    float64
	PotholeThreshold float64

	SubscriberSendTimeout time.Duration
	IngestQueueSize       int
	IngestWorkers         int

	MQTTBrokerHost string
	MQTTBrokerPort int
	MQTTClientID   string
	MQTTUsername   string
	MQTTPassword   string
	MQTTAgentTopic string

	RabbitMQHost      string
	AMQPAgentTopic    string
	AMQPEventsEnabled bool
}

//Load reads an optional .env file and then derives configuration values from environment
//variables, falling back to defaults
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return Config{}, fmt.Errorf("failed to load %s: %w", strings.Join(envFiles, ","), err)
	}

	cfg := Config{
		APIPort:  getEnv("STORE_API_PORT", "8000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBDriver:         strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		SQLitePath:       getEnv("SQLITE_PATH", "data/store.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "user"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "pass"),
		PostgresDB:       getEnv("POSTGRES_DB", "test_db"),

		MQTTBrokerHost: getEnv("MQTT_BROKER_HOST", ""),
		MQTTClientID:   getEnv("MQTT_CLIENT_ID", "road-store"),
		MQTTUsername:   getEnv("MQTT_USERNAME", ""),
		MQTTPassword:   getEnv("MQTT_PASSWORD", ""),
		MQTTAgentTopic: getEnv("MQTT_AGENT_TOPIC", "agent"),

		RabbitMQHost:   getEnv("RABBITMQ_HOST", ""),
		AMQPAgentTopic: getEnv("AMQP_AGENT_TOPIC", "agent-data"),
	}

	var err error

	if cfg.BumpThreshold, err = getEnvFloat("BUMP_THRESHOLD", 3000); err != nil {
		return Config{}, err
	}
	if cfg.PotholeThreshold, err = getEnvFloat("POTHOLE_THRESHOLD", -2000); err != nil {
		return Config{}, err
	}
	if cfg.SubscriberSendTimeout, err = getEnvDuration("SUBSCRIBER_SEND_TIMEOUT", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.IngestQueueSize, err = getEnvInt("INGEST_QUEUE_SIZE", 100); err != nil {
		return Config{}, err
	}
	if cfg.IngestWorkers, err = getEnvInt("INGEST_WORKERS", 4); err != nil {
		return Config{}, err
	}
	if cfg.MQTTBrokerPort, err = getEnvInt("MQTT_BROKER_PORT", 1883); err != nil {
		return Config{}, err
	}
	if cfg.AMQPEventsEnabled, err = getEnvBool("AMQP_EVENTS_ENABLED", false); err != nil {
		return Config{}, err
	}

	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return Config{}, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}
	if cfg.BumpThreshold <= cfg.PotholeThreshold {
		return Config{}, fmt.Errorf("BUMP_THRESHOLD (%f) must be greater than POTHOLE_THRESHOLD (%f)", cfg.BumpThreshold, cfg.PotholeThreshold)
	}
	if cfg.IngestQueueSize < 1 || cfg.IngestWorkers < 1 {
		return Config{}, fmt.Errorf("INGEST_QUEUE_SIZE and INGEST_WORKERS must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return intValue, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return floatValue, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return boolValue, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, value)
	}
	return d, nil
}
