// Package config handles Heru configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/heru/config.yaml, /etc/heru/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "heru", "config.yaml"))
	}

	paths = append(paths, "/etc/heru/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Heru configuration.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Collector CollectorConfig `yaml:"collector"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// NodeConfig defines the sensor node: its uplink, its sensor, and the
// timing of the sample-and-publish cycle.
type NodeConfig struct {
	WiFi   WiFiConfig   `yaml:"wifi"`
	Sensor SensorConfig `yaml:"sensor"`

	// PublishIntervalSec is the pause between publish cycles (default 30).
	PublishIntervalSec int `yaml:"publish_interval_sec"`
	// SensorCooldownSec is the pause after a failed sensor read before
	// the next cycle (default 2).
	SensorCooldownSec int `yaml:"sensor_cooldown_sec"`
	// LinkRetryMS is the pause between network association attempts
	// (default 500).
	LinkRetryMS int `yaml:"link_retry_ms"`
	// HandshakeBackoffSec is the pause between broker handshake
	// attempts (default 5).
	HandshakeBackoffSec int `yaml:"handshake_backoff_sec"`
}

// WiFiConfig defines the node's uplink credentials. When Managed is
// true the node drives association itself through NetworkManager;
// otherwise it only probes reachability and leaves association to the
// OS supplicant.
type WiFiConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
	Managed  bool   `yaml:"managed"`
}

// SensorConfig selects and configures the sensor driver.
type SensorConfig struct {
	// Driver is "iio" (Linux IIO sysfs device) or "sim" (simulated).
	Driver string `yaml:"driver"`
	// Device is the IIO device directory, e.g.
	// /sys/bus/iio/devices/iio:device0. Ignored by the sim driver.
	Device string `yaml:"device"`
	// Model is a free-form tag used in logs (e.g. "dht22").
	Model string `yaml:"model"`
	// SimFailureRate is the probability (0..1) that a simulated read
	// returns the failure sentinel. Sim driver only.
	SimFailureRate float64 `yaml:"sim_failure_rate"`
}

// MQTTConfig defines the broker session for the node.
type MQTTConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"` // empty means anonymous
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
	// DeviceID doubles as the MQTT client ID and the device_id payload field.
	DeviceID string `yaml:"device_id"`
	Topic    string `yaml:"topic"`
}

// CollectorConfig defines the server-side ingest service.
type CollectorConfig struct {
	// BrokerURL overrides the broker for the collector (mqtt://,
	// mqtts://, ws://). Empty means derive from the mqtt section.
	BrokerURL string `yaml:"broker_url"`
	// TopicFilter is the subscription filter (default heru/sensors/#).
	TopicFilter string `yaml:"topic_filter"`
	// DBPath is the SQLite database path (default <data_dir>/heru.db).
	DBPath string `yaml:"db_path"`
	// RateLimit caps inbound messages per interval (default 100).
	RateLimit int `yaml:"rate_limit"`
	// RateIntervalSec is the rate limit window in seconds (default 1).
	RateIntervalSec int `yaml:"rate_interval_sec"`
	// ListenAddr is the HTTP API bind address (default 0.0.0.0:8000).
	ListenAddr string `yaml:"listen_addr"`

	Pipeline PipelineConfig `yaml:"pipeline"`
}

// PipelineConfig defines the processing stage that anchors stored
// readings. Credentials left empty degrade that service to local
// receipts.
type PipelineConfig struct {
	// PollIntervalSec is the pause between polls of an empty backlog
	// (default 2).
	PollIntervalSec int `yaml:"poll_interval_sec"`
	// BatchSize is the maximum rows processed per poll (default 16).
	BatchSize int `yaml:"batch_size"`

	PinataAPIKey    string `yaml:"pinata_api_key"`
	PinataAPISecret string `yaml:"pinata_api_secret"`

	HederaAccountID  string `yaml:"hedera_account_id"`
	HederaPrivateKey string `yaml:"hedera_private_key"`
	HederaTopicID    string `yaml:"hedera_topic_id"`
}

// Load reads configuration from a YAML file. Unset fields keep the
// defaults from [Default].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			Sensor: SensorConfig{
				Driver: "sim",
				Model:  "dht22",
			},
			PublishIntervalSec:  30,
			SensorCooldownSec:   2,
			LinkRetryMS:         500,
			HandshakeBackoffSec: 5,
		},
		MQTT: MQTTConfig{
			Server:   "192.168.1.100",
			Port:     1883,
			DeviceID: "esp32_sensor_01",
			Topic:    "heru/sensors/esp32_sensor_01",
		},
		Collector: CollectorConfig{
			TopicFilter:     "heru/sensors/#",
			RateLimit:       100,
			RateIntervalSec: 1,
			ListenAddr:      "0.0.0.0:8000",
			Pipeline: PipelineConfig{
				PollIntervalSec: 2,
				BatchSize:       16,
			},
		},
		DataDir:  "data",
		LogLevel: "info",
	}
}
