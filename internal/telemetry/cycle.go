package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/heru-iot/heru/internal/broker"
	"github.com/heru-iot/heru/internal/clock"
	"github.com/heru-iot/heru/internal/link"
	"github.com/heru-iot/heru/internal/sensor"
)

// CycleConfig holds the cycle's identity and timing.
type CycleConfig struct {
	// DeviceID is the trusted device identifier in every payload.
	DeviceID string
	// Topic is the publish topic.
	Topic string
	// Interval is the pause after each publish attempt (default 30s).
	Interval time.Duration
	// Cooldown is the pause after a failed sensor read (default 2s).
	Cooldown time.Duration
}

// Cycle is the node's single thread of control. Each iteration
// consults the link manager first and samples/publishes only when the
// session is ready.
type Cycle struct {
	cfg     CycleConfig
	sensor  sensor.Sensor
	link    *link.Manager
	session broker.Session
	clk     clock.Clock
	logger  *slog.Logger
}

// NewCycle wires the sample-and-publish cycle. All collaborators are
// injected; the cycle owns none of their lifecycles.
func NewCycle(cfg CycleConfig, s sensor.Sensor, lm *link.Manager, session broker.Session, clk clock.Clock, logger *slog.Logger) *Cycle {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Second
	}
	return &Cycle{
		cfg:     cfg,
		sensor:  s,
		link:    lm,
		session: session,
		clk:     clk,
		logger:  logger,
	}
}

// Run loops until ctx is cancelled. There is no other exit: every
// failure mode degrades to wait-and-retry at some granularity.
func (c *Cycle) Run(ctx context.Context) {
	c.logger.Info("sensor node started",
		"device_id", c.cfg.DeviceID,
		"topic", c.cfg.Topic,
		"interval", c.cfg.Interval.String())

	for ctx.Err() == nil {
		c.Step(ctx)
	}

	c.logger.Info("sensor node stopped")
}

// Step runs one cycle iteration: repair the session if needed, then
// sample and publish.
func (c *Cycle) Step(ctx context.Context) {
	c.link.CheckSession()

	if !c.link.SessionReady() {
		c.link.EnsureLinkUp(ctx)
		c.link.EnsureBrokerSession(ctx)
	}
	if !c.link.SessionReady() {
		// Only reachable when ctx was cancelled mid-retry.
		return
	}

	r := c.acquire()
	if !r.Valid() {
		c.logger.Warn("failed to read from sensor, skipping cycle",
			"temperature", r.Temperature,
			"humidity", r.Humidity,
			"cooldown", c.cfg.Cooldown.String())
		c.clk.Sleep(ctx, c.cfg.Cooldown)
		return
	}

	payload := Encode(c.cfg.DeviceID, r)
	c.logger.Info("publishing reading",
		"topic", c.cfg.Topic,
		"temperature", r.Temperature,
		"humidity", r.Humidity)

	if err := c.session.Publish(ctx, c.cfg.Topic, payload); err != nil {
		// Fire-and-forget: no retry here. The next cycle's session
		// check detects and repairs a dropped session.
		c.logger.Warn("publish failed", "error", err)
	}

	c.clk.Sleep(ctx, c.cfg.Interval)
}

// acquire performs the two synchronous sensor reads, humidity first.
// Either value may be NaN.
func (c *Cycle) acquire() sensor.Reading {
	h := c.sensor.ReadHumidity()
	t := c.sensor.ReadTemperature()
	return sensor.Reading{Temperature: t, Humidity: h}
}
