package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/heru-iot/heru/internal/clock"
	"github.com/heru-iot/heru/internal/link"
)

// fakeSensor returns fixed values.
type fakeSensor struct {
	temperature float64
	humidity    float64
}

func (f *fakeSensor) ReadTemperature() float64 { return f.temperature }
func (f *fakeSensor) ReadHumidity() float64    { return f.humidity }

// fakeSession implements broker.Session and records publishes.
type fakeSession struct {
	connected  bool
	publishErr error

	topics   []string
	payloads [][]byte
}

func (f *fakeSession) Connect(ctx context.Context) error {
	f.connected = true
	return nil
}
func (f *fakeSession) Connected() bool { return f.connected }
func (f *fakeSession) State() string   { return "fake" }
func (f *fakeSession) Pump()           {}
func (f *fakeSession) Publish(ctx context.Context, topic string, payload []byte) error {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return f.publishErr
}

type alwaysUp struct{}

func (alwaysUp) Associate(ctx context.Context) error { return nil }

func testCycle(s *fakeSensor, session *fakeSession) (*Cycle, *clock.Fake) {
	clk := clock.NewFake(time.Unix(1700000000, 0))
	lm := link.NewManager(link.ManagerConfig{}, alwaysUp{}, session, clk, slog.Default())
	c := NewCycle(CycleConfig{
		DeviceID: "esp32_sensor_01",
		Topic:    "heru/sensors/esp32_sensor_01",
		Interval: 30 * time.Second,
		Cooldown: 2 * time.Second,
	}, s, lm, session, clk, slog.Default())
	return c, clk
}

func TestStep_PublishesValidReading(t *testing.T) {
	session := &fakeSession{}
	c, clk := testCycle(&fakeSensor{temperature: 23.5, humidity: 60.2}, session)

	c.Step(context.Background())

	if len(session.payloads) != 1 {
		t.Fatalf("published %d payloads, want 1", len(session.payloads))
	}
	if session.topics[0] != "heru/sensors/esp32_sensor_01" {
		t.Errorf("published to %q", session.topics[0])
	}
	want := `{"device_id": "esp32_sensor_01","temperature": 23.50,"humidity": 60.20}`
	if string(session.payloads[0]) != want {
		t.Errorf("payload = %s\nwant      %s", session.payloads[0], want)
	}

	sleeps := clk.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 30*time.Second {
		t.Errorf("sleeps = %v, want one 30s cadence sleep", sleeps)
	}
}

func TestStep_NaNHumiditySkipsPublish(t *testing.T) {
	session := &fakeSession{}
	c, clk := testCycle(&fakeSensor{temperature: 23.5, humidity: math.NaN()}, session)

	c.Step(context.Background())

	if len(session.payloads) != 0 {
		t.Fatalf("published %d payloads for an invalid reading, want 0", len(session.payloads))
	}

	sleeps := clk.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 2*time.Second {
		t.Errorf("sleeps = %v, want one 2s cooldown", sleeps)
	}
}

func TestStep_NaNTemperatureSkipsPublish(t *testing.T) {
	session := &fakeSession{}
	c, _ := testCycle(&fakeSensor{temperature: math.NaN(), humidity: 60.2}, session)

	c.Step(context.Background())

	if len(session.payloads) != 0 {
		t.Fatalf("published %d payloads for an invalid reading, want 0", len(session.payloads))
	}
}

func TestStep_PublishFailureIsNotRetried(t *testing.T) {
	session := &fakeSession{publishErr: errors.New("broken pipe")}
	c, clk := testCycle(&fakeSensor{temperature: 21, humidity: 50}, session)

	c.Step(context.Background())

	if len(session.payloads) != 1 {
		t.Fatalf("publish attempted %d times, want exactly 1 (no retry)", len(session.payloads))
	}
	// The cadence sleep still follows an unsuccessful attempt.
	sleeps := clk.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 30*time.Second {
		t.Errorf("sleeps = %v, want one 30s cadence sleep", sleeps)
	}
}

func TestStep_NoPublishBeforeSessionReady(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := &fakeSession{}
	c, _ := testCycle(&fakeSensor{temperature: 21, humidity: 50}, session)

	// Cancelled ctx keeps the link manager from ever reaching
	// BrokerConnected; the cycle must not sample or publish.
	c.Step(ctx)

	if len(session.payloads) != 0 {
		t.Errorf("published %d payloads without a ready session, want 0", len(session.payloads))
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := &fakeSession{}
	c, _ := testCycle(&fakeSensor{temperature: 21, humidity: 50}, session)

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestNewCycle_Defaults(t *testing.T) {
	session := &fakeSession{}
	clk := clock.NewFake(time.Unix(1700000000, 0))
	lm := link.NewManager(link.ManagerConfig{}, alwaysUp{}, session, clk, slog.Default())

	c := NewCycle(CycleConfig{DeviceID: "d", Topic: "t"}, &fakeSensor{}, lm, session, clk, slog.Default())

	if c.cfg.Interval != 30*time.Second {
		t.Errorf("Interval = %v, want default 30s", c.cfg.Interval)
	}
	if c.cfg.Cooldown != 2*time.Second {
		t.Errorf("Cooldown = %v, want default 2s", c.cfg.Cooldown)
	}
}
