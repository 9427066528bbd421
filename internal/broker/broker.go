// Package broker wraps the MQTT transport behind the narrow session
// surface the node needs: connect, connected, diagnostic state, a
// non-blocking housekeeping pump, and fire-and-forget publish.
//
// It is built on the low-level paho client rather than autopaho on
// purpose: the link manager owns all reconnection policy, so the
// transport must fail visibly and stay down until told to connect
// again.
package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/heru-iot/heru/internal/config"
)

// Session is the broker capability consumed by the link manager and
// the publish cycle.
type Session interface {
	// Connect dials the broker and performs the MQTT handshake. It
	// returns an error on failure; the caller decides whether and when
	// to retry.
	Connect(ctx context.Context) error
	// Connected reports whether the session is currently established.
	Connected() bool
	// State returns an implementation-defined status string. It is
	// only meaningful for diagnostics, never for control flow.
	State() string
	// Pump services transport housekeeping without blocking. It is
	// where an asynchronous session loss becomes visible to Connected.
	Pump()
	// Publish sends one payload to a topic at QoS 0. No delivery
	// acknowledgment is awaited beyond the transport's own contract.
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Config holds broker connection settings.
type Config struct {
	Server   string
	Port     int
	ClientID string
	Username string // empty means anonymous
	Password string
	TLS      bool
	// KeepAlive is the MQTT keep-alive in seconds (default 30).
	KeepAlive uint16
	// DialTimeout bounds the TCP dial (default 10s). The MQTT
	// handshake itself is bounded by the Connect ctx.
	DialTimeout time.Duration
}

// Client is the paho-backed Session implementation.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	pc        *paho.Client
	connected bool
	lastState string

	// errs receives asynchronous transport failures from paho
	// callbacks. Pump drains it without blocking.
	errs chan error
}

// NewClient creates an unconnected broker client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 30
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Client{
		cfg:       cfg,
		logger:    logger,
		lastState: "never connected",
		errs:      make(chan error, 4),
	}
}

// Connect dials the broker and performs the MQTT CONNECT handshake.
// Already-connected clients return nil without a new handshake.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	addr := net.JoinHostPort(c.cfg.Server, strconv.Itoa(c.cfg.Port))

	var conn net.Conn
	var err error
	if c.cfg.TLS {
		dialer := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: c.cfg.DialTimeout},
			Config:    &tls.Config{MinVersion: tls.VersionTLS12},
		}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		c.setState(fmt.Sprintf("dial: %v", err))
		return fmt.Errorf("dial broker %s: %w", addr, err)
	}

	pc := paho.NewClient(paho.ClientConfig{
		Conn: conn,
		OnClientError: func(err error) {
			c.pushErr(err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			c.pushErr(fmt.Errorf("server disconnect, reason code %d", d.ReasonCode))
		},
	})

	cp := &paho.Connect{
		ClientID:   c.cfg.ClientID,
		KeepAlive:  c.cfg.KeepAlive,
		CleanStart: true,
	}
	if c.cfg.Username != "" {
		cp.Username = c.cfg.Username
		cp.UsernameFlag = true
	}
	if c.cfg.Password != "" {
		cp.Password = []byte(c.cfg.Password)
		cp.PasswordFlag = true
	}

	ca, err := pc.Connect(ctx, cp)
	if err != nil {
		conn.Close()
		c.setState(fmt.Sprintf("connect: %v", err))
		return fmt.Errorf("mqtt connect %s: %w", addr, err)
	}
	if ca.ReasonCode != 0 {
		conn.Close()
		c.setState(fmt.Sprintf("connack reason code %d", ca.ReasonCode))
		return fmt.Errorf("mqtt connect %s: connack reason code %d", addr, ca.ReasonCode)
	}

	c.mu.Lock()
	c.pc = pc
	c.connected = true
	c.lastState = "connected"
	c.mu.Unlock()

	// Drop any failure left over from the previous session.
	c.drainErrs()

	c.logger.Info("broker session established",
		"broker", addr, "client_id", c.cfg.ClientID)
	return nil
}

// Connected reports whether the session is established. It does not
// probe the wire; Pump must run for asynchronous losses to surface.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// State returns the last diagnostic status string.
func (c *Client) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastState
}

// Pump drains pending transport failures without blocking. Keep-alive
// traffic is serviced by the paho client's own goroutines; the pump's
// job is to fold their failure reports into the session state once per
// cycle.
func (c *Client) Pump() {
	select {
	case err := <-c.errs:
		c.mu.Lock()
		wasConnected := c.connected
		c.connected = false
		c.lastState = err.Error()
		c.pc = nil
		c.mu.Unlock()
		if wasConnected {
			c.logger.Warn("broker session lost", "state", err.Error())
		}
	default:
	}
}

// Publish sends one payload at QoS 0.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()

	if pc == nil {
		return fmt.Errorf("publish %s: no broker session", topic)
	}

	c.logger.Log(ctx, config.LevelTrace, "publishing payload",
		"topic", topic, "payload", string(payload))

	if _, err := pc.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     0,
	}); err != nil {
		c.pushErr(err)
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close tears down the session if one exists.
func (c *Client) Close() error {
	c.mu.Lock()
	pc := c.pc
	c.pc = nil
	c.connected = false
	c.lastState = "closed"
	c.mu.Unlock()

	if pc == nil {
		return nil
	}
	return pc.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

func (c *Client) setState(s string) {
	c.mu.Lock()
	c.lastState = s
	c.mu.Unlock()
}

func (c *Client) pushErr(err error) {
	select {
	case c.errs <- err:
	default:
		// Channel full: the oldest failure is already waiting for the
		// next Pump and one reason is as good as another.
	}
}

func (c *Client) drainErrs() {
	for {
		select {
		case <-c.errs:
		default:
			return
		}
	}
}
