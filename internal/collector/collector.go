// Package collector is the server side of the pipeline: it subscribes
// to the sensors topic tree, validates each payload, and persists
// accepted readings for downstream processing.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/heru-iot/heru/internal/store"
)

// Config holds collector settings.
type Config struct {
	// BrokerURL is the broker to subscribe to (mqtt://, mqtts://, ws://).
	BrokerURL string
	// TopicFilter is the subscription filter, e.g. heru/sensors/#.
	TopicFilter string
	// ClientID identifies this collector to the broker.
	ClientID string
	Username string
	Password string
	// RateLimit caps accepted messages per RateInterval (default 100/1s).
	RateLimit    int64
	RateInterval time.Duration
}

// Collector consumes sensor payloads from the broker and writes them
// to the store. Unlike the node, it rides autopaho's managed
// reconnection: on the server side there is no state machine to own,
// the transport should just stay subscribed.
type Collector struct {
	cfg     Config
	store   *store.Store
	logger  *slog.Logger
	limiter *inboundLimiter
	cm      *autopaho.ConnectionManager
}

// New creates a Collector. Call [Collector.Run] to connect and consume.
func New(cfg Config, st *store.Store, logger *slog.Logger) *Collector {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 100
	}
	if cfg.RateInterval <= 0 {
		cfg.RateInterval = time.Second
	}
	return &Collector{
		cfg:     cfg,
		store:   st,
		logger:  logger,
		limiter: newInboundLimiter(cfg.RateLimit, cfg.RateInterval, logger),
	}
}

// Run connects to the broker, subscribes, and consumes until ctx is
// cancelled.
func (c *Collector) Run(ctx context.Context) error {
	brokerURL, err := url.Parse(c.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("parse broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: c.cfg.Username,
		ConnectPassword: []byte(c.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.logger.Info("collector connected to broker", "broker", c.cfg.BrokerURL)
			err := subscribeWithRetry(ctx, cm, c.cfg.TopicFilter,
				subscribeAttempts, subscribeRetryDelay, c.logger)
			if err != nil {
				// Connected but not subscribed is an idle collector;
				// nothing more to do until the next reconnect.
				c.logger.Error("subscribe failed, collector idle until reconnect",
					"filter", c.cfg.TopicFilter, "error", err)
				return
			}
			c.logger.Info("subscribed", "filter", c.cfg.TopicFilter)
		},
		OnConnectError: func(err error) {
			c.logger.Warn("collector connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					c.handle(pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("collector connect: %w", err)
	}
	c.cm = cm

	go c.limiter.run(ctx)

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		c.logger.Warn("initial broker connection timed out, will retry in background",
			"error", err)
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	return cm.Disconnect(stopCtx)
}

// Subscribe retry bounds for a freshly established connection.
const (
	subscribeAttempts   = 3
	subscribeRetryDelay = 2 * time.Second
)

// subscriber is the slice of the connection manager that
// subscribeWithRetry needs.
type subscriber interface {
	Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error)
}

// subscribeWithRetry subscribes to filter at QoS 1, retrying up to
// attempts times. A connection without its subscription receives
// nothing, so a transient SUBACK failure should not cost a whole
// keepalive window.
func subscribeWithRetry(ctx context.Context, sub subscriber, filter string, attempts int, delay time.Duration, logger *slog.Logger) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		_, err = sub.Subscribe(ctx, &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{
				{Topic: filter, QoS: 1},
			},
		})
		if err == nil {
			return nil
		}
		logger.Warn("subscribe attempt failed",
			"filter", filter, "attempt", attempt, "error", err)

		if attempt == attempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// payload is the decoded node message. Pointer fields distinguish a
// missing member from a zero value.
type payload struct {
	DeviceID    string   `json:"device_id"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

// handle validates one inbound message and persists it. Malformed or
// incomplete payloads are logged and dropped; the broker already
// delivered them, there is nothing to retry.
func (c *Collector) handle(topic string, raw []byte) {
	if !c.limiter.allow() {
		return
	}

	var msg payload
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn("dropping malformed payload",
			"topic", topic, "size", len(raw), "error", err)
		return
	}
	if msg.Temperature == nil || msg.Humidity == nil ||
		math.IsNaN(*msg.Temperature) || math.IsNaN(*msg.Humidity) {
		c.logger.Warn("dropping incomplete payload", "topic", topic)
		return
	}

	deviceID := msg.DeviceID
	if deviceID == "" {
		deviceID = "unknown"
	}

	rec := &store.ReadingRecord{
		DeviceID:    deviceID,
		Temperature: *msg.Temperature,
		Humidity:    *msg.Humidity,
		RawPayload:  string(raw),
	}
	if err := c.store.Insert(rec); err != nil {
		c.logger.Error("store reading failed",
			"device_id", deviceID, "error", err)
		return
	}

	c.logger.Debug("reading stored",
		"id", rec.ID,
		"device_id", deviceID,
		"temperature", rec.Temperature,
		"humidity", rec.Humidity)
}
