package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// defaultConfigYAML is the starter config written by `heru init`. The
// values mirror the configuration defaults.
const defaultConfigYAML = `# Heru configuration

node:
  wifi:
    ssid: YOUR_WIFI_SSID
    password: YOUR_WIFI_PASSWORD
    # managed: true lets the node drive association through NetworkManager.
    managed: false
  sensor:
    # driver: iio reads a Linux IIO sysfs device; sim generates readings.
    driver: sim
    # device: /sys/bus/iio/devices/iio:device0
    model: dht22
  publish_interval_sec: 30
  sensor_cooldown_sec: 2
  link_retry_ms: 500
  handshake_backoff_sec: 5

mqtt:
  server: 192.168.1.100
  port: 1883
  # Leave username/password empty for anonymous access.
  username: ""
  password: ""
  device_id: esp32_sensor_01
  topic: heru/sensors/esp32_sensor_01

collector:
  topic_filter: heru/sensors/#
  rate_limit: 100
  rate_interval_sec: 1
  listen_addr: 0.0.0.0:8000
  pipeline:
    poll_interval_sec: 2
    batch_size: 16
    # Leave credentials empty to anchor with local receipts only.
    pinata_api_key: ${PINATA_API_KEY}
    pinata_api_secret: ${PINATA_API_SECRET}
    hedera_account_id: ""
    hedera_private_key: ""
    hedera_topic_id: ""

data_dir: data
log_level: info
`

// runInit initializes a Heru working directory with default files.
// Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Heru workspace in %s\n", dir)

	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dataDir, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, []byte(defaultConfigYAML)); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml with your WiFi and broker settings.")
	return nil
}

// writeIfMissing writes content to path only if the file does not already
// exist. This ensures init never overwrites user customizations.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil // already exists, skip
	}
	return os.WriteFile(path, content, 0o644)
}
