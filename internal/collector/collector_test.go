package collector

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/heru-iot/heru/internal/store"
)

func testCollector(t *testing.T) (*Collector, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "heru_test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	c := New(Config{
		BrokerURL:   "mqtt://127.0.0.1:1883",
		TopicFilter: "heru/sensors/#",
		ClientID:    "heru-collector-test",
	}, st, slog.Default())
	return c, st
}

func TestHandle_StoresValidPayload(t *testing.T) {
	c, st := testCollector(t)

	c.handle("heru/sensors/esp32_sensor_01",
		[]byte(`{"device_id": "esp32_sensor_01","temperature": 23.50,"humidity": 60.20}`))

	got, err := st.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("stored %d readings, want 1", len(got))
	}
	rec := got[0]
	if rec.DeviceID != "esp32_sensor_01" {
		t.Errorf("DeviceID = %q", rec.DeviceID)
	}
	if rec.Temperature != 23.5 || rec.Humidity != 60.2 {
		t.Errorf("values = (%v, %v), want (23.5, 60.2)", rec.Temperature, rec.Humidity)
	}
	if rec.Status != store.StatusPending {
		t.Errorf("Status = %q, want %q", rec.Status, store.StatusPending)
	}
	if !strings.Contains(rec.RawPayload, `"device_id": "esp32_sensor_01"`) {
		t.Errorf("RawPayload = %q, want original bytes preserved", rec.RawPayload)
	}
}

func TestHandle_DropsMalformedPayload(t *testing.T) {
	c, st := testCollector(t)

	c.handle("heru/sensors/esp32_sensor_01", []byte(`{"device_id": broken`))

	got, err := st.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("stored %d readings from malformed payload, want 0", len(got))
	}
}

func TestHandle_DropsIncompletePayload(t *testing.T) {
	c, st := testCollector(t)

	// humidity member missing entirely
	c.handle("heru/sensors/esp32_sensor_01",
		[]byte(`{"device_id": "esp32_sensor_01","temperature": 23.50}`))

	got, err := st.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("stored %d readings from incomplete payload, want 0", len(got))
	}
}

func TestHandle_MissingDeviceIDDefaultsToUnknown(t *testing.T) {
	c, st := testCollector(t)

	c.handle("heru/sensors/mystery", []byte(`{"temperature": 20.00,"humidity": 40.00}`))

	got, err := st.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("stored %d readings, want 1", len(got))
	}
	if got[0].DeviceID != "unknown" {
		t.Errorf("DeviceID = %q, want unknown", got[0].DeviceID)
	}
}

func TestLimiter_DropsOverBudget(t *testing.T) {
	l := newInboundLimiter(3, time.Second, slog.Default())

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("allowed %d messages, want 3", allowed)
	}
	if got := l.dropped.Load(); got != 7 {
		t.Errorf("dropped = %d, want 7", got)
	}
}

func TestHandle_RateLimitStopsStorage(t *testing.T) {
	c, st := testCollector(t)
	c.limiter = newInboundLimiter(2, time.Second, slog.Default())

	for i := 0; i < 5; i++ {
		c.handle("heru/sensors/esp32_sensor_01",
			[]byte(`{"device_id": "esp32_sensor_01","temperature": 20.00,"humidity": 40.00}`))
	}

	got, err := st.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("stored %d readings past the limit, want 2", len(got))
	}
}

// fakeSubscriber fails the first `failures` Subscribe calls, then
// succeeds.
type fakeSubscriber struct {
	calls    int
	failures int
	filter   string
}

func (f *fakeSubscriber) Subscribe(_ context.Context, s *paho.Subscribe) (*paho.Suback, error) {
	f.calls++
	if len(s.Subscriptions) == 1 {
		f.filter = s.Subscriptions[0].Topic
	}
	if f.calls <= f.failures {
		return nil, errors.New("suback timeout")
	}
	return &paho.Suback{}, nil
}

func TestSubscribeWithRetry_RecoversFromTransientFailure(t *testing.T) {
	sub := &fakeSubscriber{failures: 2}

	err := subscribeWithRetry(context.Background(), sub, "heru/sensors/#",
		3, time.Millisecond, slog.Default())
	if err != nil {
		t.Fatalf("subscribeWithRetry() error: %v", err)
	}
	if sub.calls != 3 {
		t.Errorf("Subscribe called %d times, want 3", sub.calls)
	}
	if sub.filter != "heru/sensors/#" {
		t.Errorf("subscribed filter = %q", sub.filter)
	}
}

func TestSubscribeWithRetry_GivesUpAfterAttempts(t *testing.T) {
	sub := &fakeSubscriber{failures: 10}

	err := subscribeWithRetry(context.Background(), sub, "heru/sensors/#",
		3, time.Millisecond, slog.Default())
	if err == nil {
		t.Fatal("subscribeWithRetry() succeeded, want error after exhausting attempts")
	}
	if sub.calls != 3 {
		t.Errorf("Subscribe called %d times, want exactly 3", sub.calls)
	}
}

func TestSubscribeWithRetry_StopsOnCancelledContext(t *testing.T) {
	sub := &fakeSubscriber{failures: 10}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := subscribeWithRetry(ctx, sub, "heru/sensors/#",
		3, time.Minute, slog.Default())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("subscribeWithRetry() error = %v, want context.Canceled", err)
	}
	if sub.calls != 1 {
		t.Errorf("Subscribe called %d times after cancel, want 1", sub.calls)
	}
}

func TestLoadOrCreateClientID(t *testing.T) {
	dir := t.TempDir()

	id1, err := LoadOrCreateClientID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateClientID() error: %v", err)
	}
	if !strings.HasPrefix(id1, "heru-collector-") {
		t.Errorf("client ID = %q, want heru-collector- prefix", id1)
	}

	// Second call returns the persisted ID.
	id2, err := LoadOrCreateClientID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateClientID() second call error: %v", err)
	}
	if id1 != id2 {
		t.Errorf("client ID changed across calls: %q != %q", id1, id2)
	}

	data, err := os.ReadFile(filepath.Join(dir, "collector_id"))
	if err != nil {
		t.Fatalf("read persisted ID: %v", err)
	}
	if strings.TrimSpace(string(data)) != id1 {
		t.Errorf("persisted ID = %q, want %q", strings.TrimSpace(string(data)), id1)
	}
}
