package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	// Create a temp config file
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("log_level: debug\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	// When no config exists anywhere, should error
	// (Save and restore CWD to avoid finding the repo's config.yaml)
	dir := t.TempDir()
	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("log_level: info\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestDefault_Values(t *testing.T) {
	cfg := Default()

	if cfg.MQTT.Port != 1883 {
		t.Errorf("MQTT.Port = %d, want 1883", cfg.MQTT.Port)
	}
	if cfg.MQTT.DeviceID != "esp32_sensor_01" {
		t.Errorf("MQTT.DeviceID = %q, want esp32_sensor_01", cfg.MQTT.DeviceID)
	}
	if cfg.MQTT.Topic != "heru/sensors/esp32_sensor_01" {
		t.Errorf("MQTT.Topic = %q", cfg.MQTT.Topic)
	}
	if cfg.Node.PublishIntervalSec != 30 {
		t.Errorf("Node.PublishIntervalSec = %d, want 30", cfg.Node.PublishIntervalSec)
	}
	if cfg.Node.SensorCooldownSec != 2 {
		t.Errorf("Node.SensorCooldownSec = %d, want 2", cfg.Node.SensorCooldownSec)
	}
	if cfg.Node.LinkRetryMS != 500 {
		t.Errorf("Node.LinkRetryMS = %d, want 500", cfg.Node.LinkRetryMS)
	}
	if cfg.Node.HandshakeBackoffSec != 5 {
		t.Errorf("Node.HandshakeBackoffSec = %d, want 5", cfg.Node.HandshakeBackoffSec)
	}
	if cfg.Collector.ListenAddr != "0.0.0.0:8000" {
		t.Errorf("Collector.ListenAddr = %q, want 0.0.0.0:8000", cfg.Collector.ListenAddr)
	}
	if cfg.Collector.Pipeline.PollIntervalSec != 2 {
		t.Errorf("Pipeline.PollIntervalSec = %d, want 2", cfg.Collector.Pipeline.PollIntervalSec)
	}
	if cfg.Collector.Pipeline.BatchSize != 16 {
		t.Errorf("Pipeline.BatchSize = %d, want 16", cfg.Collector.Pipeline.BatchSize)
	}
}

func TestLoad_OverridesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
mqtt:
  server: broker.example.net
  device_id: node_07
node:
  sensor:
    driver: iio
    device: /sys/bus/iio/devices/iio:device0
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.MQTT.Server != "broker.example.net" {
		t.Errorf("MQTT.Server = %q", cfg.MQTT.Server)
	}
	if cfg.MQTT.DeviceID != "node_07" {
		t.Errorf("MQTT.DeviceID = %q", cfg.MQTT.DeviceID)
	}
	// Unset fields keep defaults.
	if cfg.MQTT.Port != 1883 {
		t.Errorf("MQTT.Port = %d, want default 1883", cfg.MQTT.Port)
	}
	if cfg.Node.PublishIntervalSec != 30 {
		t.Errorf("Node.PublishIntervalSec = %d, want default 30", cfg.Node.PublishIntervalSec)
	}
	if cfg.Node.Sensor.Driver != "iio" {
		t.Errorf("Node.Sensor.Driver = %q, want iio", cfg.Node.Sensor.Driver)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("HERU_TEST_BROKER", "10.0.0.5")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("mqtt:\n  server: ${HERU_TEST_BROKER}\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MQTT.Server != "10.0.0.5" {
		t.Errorf("MQTT.Server = %q, want expanded env value", cfg.MQTT.Server)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"trace", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tc := range cases {
		got, err := ParseLogLevel(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseLogLevel(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLogLevel(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
