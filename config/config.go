package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultListenAddr       = "0.0.0.0:8080"
	DefaultLogLevel         = "info"
	DefaultBusAddress       = "system"
	DefaultAnnounceInterval = 3000
	DefaultEventQueueSize   = 1000
)

// MQTT telemetry is disabled while Broker is empty.
type MqttConfig struct {
	Broker            string `json:"broker" env:"MQTT_BROKER"`
	ConnTimeout       int    `json:"connTimeout" env:"MQTT_CONN_TIMEOUT_MS"`
	Username          string `json:"username" env:"MQTT_USERNAME"`
	Password          string `json:"password" env:"MQTT_PASSWORD"`
	DroneId           string `json:"droneId" env:"MQTT_DRONE_ID"`
	AnnounceTopic     string `json:"announceTopic" env:"MQTT_ANNOUNCE_TOPIC"`
	AnnounceTimeout   int    `json:"announceTimeout" env:"MQTT_ANNOUNCE_TIMEOUT_MS"`
	DisconnectTimeout int    `json:"disconnectTimeout" env:"MQTT_DISCONNECT_TIMEOUT_MS"`
	CertCheck         bool   `json:"certCheck" env:"MQTT_CERT_CHECK"`
}

func (m *MqttConfig) Enabled() bool {
	return m.Broker != ""
}

type BusConfig struct {
	// "system", "session" or an explicit D-Bus address.
	Address string `json:"address" env:"DRONE_BUS_ADDRESS"`
}

// JSON-based bridge configuration, overridable from the environment.
type Config struct {
	ListenAddr       string     `json:"listenAddr" env:"WS_LISTEN_ADDR"`
	LogLevel         string     `json:"logLevel" env:"LOG_LEVEL"`
	Bus              BusConfig  `json:"bus"`
	Mqtt             MqttConfig `json:"mqtt"`
	AnnounceInterval int        `json:"announceInterval" env:"ANNOUNCE_INTERVAL_MS"`
	EventQueueSize   int        `json:"eventQueueSize" env:"EVENT_QUEUE_SIZE"`
}

func defaults() *Config {
	return &Config{
		ListenAddr: DefaultListenAddr,
		LogLevel:   DefaultLogLevel,
		Bus:        BusConfig{Address: DefaultBusAddress},
		Mqtt: MqttConfig{
			ConnTimeout:       5000,
			AnnounceTopic:     "drones/announce",
			AnnounceTimeout:   2000,
			DisconnectTimeout: 250,
			CertCheck:         true,
		},
		AnnounceInterval: DefaultAnnounceInterval,
		EventQueueSize:   DefaultEventQueueSize,
	}
}

// NewConfig builds the configuration from defaults, then the JSON file at
// filename (skipped when empty), then the environment.
func NewConfig(filename string) (*Config, error) {
	config := defaults()

	if filename != "" {
		file, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, err
		}

		err = json.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", filename, err)
		}
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listenAddr must not be empty")
	}
	if c.AnnounceInterval <= 0 {
		return errors.New("announceInterval must be positive")
	}
	if c.EventQueueSize <= 0 {
		return errors.New("eventQueueSize must be positive")
	}
	if c.Mqtt.Enabled() && c.Mqtt.DroneId == "" {
		return errors.New("mqtt.droneId is required when mqtt.broker is set")
	}
	return nil
}
