package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/heru-iot/heru/internal/broker"
	"github.com/heru-iot/heru/internal/buildinfo"
	"github.com/heru-iot/heru/internal/clock"
	"github.com/heru-iot/heru/internal/config"
	"github.com/heru-iot/heru/internal/link"
	"github.com/heru-iot/heru/internal/sensor"
	"github.com/heru-iot/heru/internal/telemetry"
)

// runNode wires and runs the device-side loop. It returns only when
// ctx is cancelled (signal) — every operational failure inside the
// loop degrades to wait-and-retry, never to an exit.
func runNode(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(stdout, cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Info(buildinfo.String())

	sens, err := buildSensor(cfg.Node.Sensor)
	if err != nil {
		return err
	}

	session := broker.NewClient(broker.Config{
		Server:   cfg.MQTT.Server,
		Port:     cfg.MQTT.Port,
		ClientID: cfg.MQTT.DeviceID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		TLS:      cfg.MQTT.TLS,
	}, logger)
	defer session.Close()

	var assoc link.Associator
	if cfg.Node.WiFi.Managed {
		assoc = &link.NMAssociator{
			SSID:       cfg.Node.WiFi.SSID,
			Passphrase: cfg.Node.WiFi.Password,
		}
		logger.Info("wifi association managed by node", "ssid", cfg.Node.WiFi.SSID)
	} else {
		assoc = &link.UplinkProbe{
			Address: net.JoinHostPort(cfg.MQTT.Server, strconv.Itoa(cfg.MQTT.Port)),
		}
	}

	clk := clock.System()
	lm := link.NewManager(link.ManagerConfig{
		RetryInterval:    time.Duration(cfg.Node.LinkRetryMS) * time.Millisecond,
		HandshakeBackoff: time.Duration(cfg.Node.HandshakeBackoffSec) * time.Second,
	}, assoc, session, clk, logger)

	cycle := telemetry.NewCycle(telemetry.CycleConfig{
		DeviceID: cfg.MQTT.DeviceID,
		Topic:    cfg.MQTT.Topic,
		Interval: time.Duration(cfg.Node.PublishIntervalSec) * time.Second,
		Cooldown: time.Duration(cfg.Node.SensorCooldownSec) * time.Second,
	}, sens, lm, session, clk, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cycle.Run(ctx)
	return nil
}

// buildSensor constructs the configured sensor driver.
func buildSensor(cfg config.SensorConfig) (sensor.Sensor, error) {
	switch cfg.Driver {
	case "iio":
		if cfg.Device == "" {
			return nil, fmt.Errorf("sensor driver iio requires node.sensor.device")
		}
		return sensor.NewIIO(cfg.Device, cfg.Model), nil
	case "sim", "":
		return sensor.NewSim(time.Now().UnixNano(), cfg.SimFailureRate), nil
	default:
		return nil, fmt.Errorf("unknown sensor driver %q (valid: iio, sim)", cfg.Driver)
	}
}
