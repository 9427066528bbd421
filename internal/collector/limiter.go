package collector

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// inboundLimiter caps how many messages the collector accepts per
// interval. A misbehaving node (or a wildcard subscription catching
// unexpected traffic) must not be able to flood the store. Counters
// are atomic so the hot path takes no lock.
type inboundLimiter struct {
	count   atomic.Int64
	dropped atomic.Int64

	limit    int64
	interval time.Duration
	logger   *slog.Logger
}

func newInboundLimiter(limit int64, interval time.Duration, logger *slog.Logger) *inboundLimiter {
	return &inboundLimiter{
		limit:    limit,
		interval: interval,
		logger:   logger,
	}
}

// allow counts one message and reports whether it is within the
// current window's budget.
func (l *inboundLimiter) allow() bool {
	if l.count.Add(1) > l.limit {
		l.dropped.Add(1)
		return false
	}
	return true
}

// run resets the window on each interval boundary and reports drops.
// Blocks until ctx is cancelled.
func (l *inboundLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			received := l.count.Swap(0)
			dropped := l.dropped.Swap(0)
			if dropped > 0 {
				l.logger.Warn("inbound messages dropped by rate limit",
					"received", received,
					"dropped", dropped,
					"limit", l.limit,
					"interval", l.interval.String())
			}
		}
	}
}
