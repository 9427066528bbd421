// Package pipeline is the processing stage behind the collector: it
// drains PENDING readings from the store, anchors each one through a
// Processor, and records the outcome as COMPLETED or FAILED.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heru-iot/heru/internal/clock"
	"github.com/heru-iot/heru/internal/store"
)

// Receipt holds the external references a Processor produced for one
// anchored reading.
type Receipt struct {
	IPFSCid    string
	HederaHash string
}

// Processor anchors one stored reading in external systems. A failed
// Process marks the row FAILED; it is not retried automatically.
type Processor interface {
	Process(ctx context.Context, rec store.ReadingRecord) (Receipt, error)
}

// WorkerConfig holds pipeline worker settings.
type WorkerConfig struct {
	// PollInterval is the pause between polls of an empty backlog
	// (default 2s).
	PollInterval time.Duration
	// BatchSize is the maximum rows picked up per poll (default 16).
	BatchSize int
}

// Worker owns the status lifecycle of stored readings. It is a single
// goroutine; rows move PENDING -> COMPLETED or PENDING -> FAILED, and
// the collector keeps appending PENDING rows concurrently.
type Worker struct {
	cfg    WorkerConfig
	store  *store.Store
	proc   Processor
	clk    clock.Clock
	logger *slog.Logger
}

// NewWorker creates a pipeline worker. Call [Worker.Run] to start
// draining.
func NewWorker(cfg WorkerConfig, st *store.Store, proc Processor, clk clock.Clock, logger *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	return &Worker{
		cfg:    cfg,
		store:  st,
		proc:   proc,
		clk:    clk,
		logger: logger,
	}
}

// Run drains the backlog until ctx is cancelled, sleeping PollInterval
// whenever a poll comes back empty.
func (w *Worker) Run(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.DrainOnce(ctx)
		if err != nil {
			w.logger.Error("pipeline poll failed", "error", err)
		}
		if n == 0 || err != nil {
			if !w.clk.Sleep(ctx, w.cfg.PollInterval) {
				return
			}
		}
	}
}

// DrainOnce picks up one batch of PENDING rows and processes each.
// It returns how many rows were picked up, whatever their outcome.
func (w *Worker) DrainOnce(ctx context.Context) (int, error) {
	rows, err := w.store.Pending(w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending: %w", err)
	}

	for _, rec := range rows {
		if ctx.Err() != nil {
			return len(rows), nil
		}

		receipt, err := w.proc.Process(ctx, rec)
		if err != nil {
			w.logger.Warn("anchoring failed",
				"id", rec.ID, "device_id", rec.DeviceID, "error", err)
			if serr := w.store.SetStatus(rec.ID, store.StatusFailed); serr != nil {
				w.logger.Error("mark failed", "id", rec.ID, "error", serr)
			}
			continue
		}

		if err := w.store.MarkCompleted(rec.ID, receipt.IPFSCid, receipt.HederaHash); err != nil {
			w.logger.Error("mark completed", "id", rec.ID, "error", err)
			continue
		}
		w.logger.Info("reading anchored",
			"id", rec.ID,
			"device_id", rec.DeviceID,
			"ipfs_cid", receipt.IPFSCid,
			"hedera_hash", receipt.HederaHash)
	}
	return len(rows), nil
}
