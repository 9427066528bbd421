// Package link owns the node's session state machine and every piece
// of reconnection policy.
//
// The state moves Disconnected → LinkUp when network association
// succeeds, LinkUp → BrokerConnected when the broker handshake
// succeeds, and falls straight back to Disconnected when a session
// loss is detected. Retries are unconditional and unbounded at fixed
// intervals: a lone sensor node has nothing better to do than keep
// trying, so eventual connectivity wins over liveness of other work.
package link

import (
	"context"
	"log/slog"
	"time"

	"github.com/heru-iot/heru/internal/broker"
	"github.com/heru-iot/heru/internal/clock"
)

// State is the node's session state.
type State int

const (
	// StateDisconnected means no network association.
	StateDisconnected State = iota
	// StateLinkUp means the network is associated but no broker session exists.
	StateLinkUp
	// StateBrokerConnected means the broker session is established.
	StateBrokerConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateLinkUp:
		return "link_up"
	case StateBrokerConnected:
		return "broker_connected"
	default:
		return "unknown"
	}
}

// Associator attempts one network association. Return nil when the
// uplink is usable.
type Associator interface {
	Associate(ctx context.Context) error
}

// Manager drives the session state machine. It is owned by the single
// control loop and is not safe for concurrent use — by construction
// there is exactly one goroutine touching it.
type Manager struct {
	assoc   Associator
	session broker.Session
	clk     clock.Clock
	logger  *slog.Logger

	retryInterval    time.Duration
	handshakeBackoff time.Duration

	state State
}

// ManagerConfig holds the link manager's timing knobs.
type ManagerConfig struct {
	// RetryInterval is the pause between association attempts (default 500ms).
	RetryInterval time.Duration
	// HandshakeBackoff is the pause between broker handshake attempts (default 5s).
	HandshakeBackoff time.Duration
}

// NewManager creates a link manager in the Disconnected state.
func NewManager(cfg ManagerConfig, assoc Associator, session broker.Session, clk clock.Clock, logger *slog.Logger) *Manager {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if cfg.HandshakeBackoff <= 0 {
		cfg.HandshakeBackoff = 5 * time.Second
	}
	return &Manager{
		assoc:            assoc,
		session:          session,
		clk:              clk,
		logger:           logger,
		retryInterval:    cfg.RetryInterval,
		handshakeBackoff: cfg.HandshakeBackoff,
		state:            StateDisconnected,
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	return m.state
}

// SessionReady reports whether the broker session is established.
func (m *Manager) SessionReady() bool {
	return m.state == StateBrokerConnected
}

// EnsureLinkUp blocks until network association succeeds, retrying at
// the fixed interval without bound. It transitions Disconnected →
// LinkUp exactly once per recovery. Returns early only when ctx is
// cancelled.
func (m *Manager) EnsureLinkUp(ctx context.Context) {
	if m.state != StateDisconnected {
		return
	}

	m.logger.Info("associating to network")
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		err := m.assoc.Associate(ctx)
		if err == nil {
			m.state = StateLinkUp
			m.logger.Info("network link up", "attempts", attempt)
			return
		}
		if ctx.Err() != nil {
			return
		}

		m.logger.Debug("association attempt failed",
			"attempt", attempt, "error", err)

		if !m.clk.Sleep(ctx, m.retryInterval) {
			return
		}
	}
}

// EnsureBrokerSession blocks until the broker handshake succeeds,
// retrying at the fixed backoff without bound. When the session is
// already established it returns immediately without a new handshake.
// Returns early only when ctx is cancelled.
func (m *Manager) EnsureBrokerSession(ctx context.Context) {
	if m.state == StateBrokerConnected {
		return
	}
	if m.state != StateLinkUp {
		return
	}

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		m.logger.Info("attempting broker handshake", "attempt", attempt)
		err := m.session.Connect(ctx)
		if err == nil {
			m.state = StateBrokerConnected
			m.logger.Info("broker session ready", "attempts", attempt)
			return
		}
		if ctx.Err() != nil {
			return
		}

		// The status value is surfaced for diagnostics only; it is not
		// classified and does not alter the retry policy.
		m.logger.Warn("broker handshake failed, retrying",
			"state", m.session.State(),
			"backoff", m.handshakeBackoff.String())

		if !m.clk.Sleep(ctx, m.handshakeBackoff) {
			return
		}
	}
}

// CheckSession services transport housekeeping and detects session
// loss. A lost broker session drops the state straight back to
// Disconnected; the next EnsureLinkUp/EnsureBrokerSession pass repairs
// it (association succeeds immediately when the uplink is still fine).
func (m *Manager) CheckSession() {
	m.session.Pump()

	if m.state == StateBrokerConnected && !m.session.Connected() {
		m.state = StateDisconnected
		m.logger.Warn("broker session lost",
			"state", m.session.State())
	}
}
