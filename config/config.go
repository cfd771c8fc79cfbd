package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level hub configuration.
type Config struct {
	NodeID       string `yaml:"node_id"`
	DatabasePath string `yaml:"database_path"`

	Web       WebConfig       `yaml:"web"`
	Store     StoreConfig     `yaml:"store"`
	Presence  PresenceConfig  `yaml:"presence"`
	Messaging MessagingConfig `yaml:"messaging"`
	Verify    VerifyConfig    `yaml:"verify"`
	Socket    SocketConfig    `yaml:"socket"`
}

// WebConfig defines the web server settings.
type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

// StoreConfig selects the SQL backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// PresenceConfig defines the Redis presence layer. Empty address disables
// Redis; presence falls back to SQL only.
type PresenceConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// MessagingConfig defines the broker bridge for fan-out across hub nodes.
type MessagingConfig struct {
	Backend             string        `yaml:"backend"` // "mqtt", "kafka", or "none"
	MQTT                MQTTConfig    `yaml:"mqtt"`
	Kafka               KafkaConfig   `yaml:"kafka"`
	PushTopic           string        `yaml:"push_topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// KafkaConfig defines Kafka broker settings. An empty GroupID gives each
// node its own consumer group so every node sees every push.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

// VerifyConfig tunes OTP challenge handling.
type VerifyConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SocketConfig tunes the websocket endpoint.
type SocketConfig struct {
	HeartbeatPeriod time.Duration `yaml:"heartbeat_period"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		NodeID:       "hub-1",
		DatabasePath: "marketlink.db",
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Presence: PresenceConfig{
			TTL: 90 * time.Second,
		},
		Messaging: MessagingConfig{
			Backend:             "none",
			PushTopic:           "marketlink/push",
			OutboxDrainInterval: 5 * time.Second,
			MQTT: MQTTConfig{
				Broker: "localhost",
				Port:   1883,
			},
		},
		Verify: VerifyConfig{
			MaxAttempts: 3,
			Timeout:     60 * time.Second,
		},
		Socket: SocketConfig{
			HeartbeatPeriod: 30 * time.Second,
			WriteTimeout:    10 * time.Second,
		},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
