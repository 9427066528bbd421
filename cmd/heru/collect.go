package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/heru-iot/heru/internal/api"
	"github.com/heru-iot/heru/internal/buildinfo"
	"github.com/heru-iot/heru/internal/clock"
	"github.com/heru-iot/heru/internal/collector"
	"github.com/heru-iot/heru/internal/pipeline"
	"github.com/heru-iot/heru/internal/store"
)

// runCollect wires and runs the server-side collector until ctx is
// cancelled.
func runCollect(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(stdout, cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Info(buildinfo.String())

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}

	dbPath := cfg.Collector.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(cfg.DataDir, "heru.db")
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open reading store: %w", err)
	}
	defer st.Close()
	logger.Info("reading store opened", "path", dbPath)

	clientID, err := collector.LoadOrCreateClientID(cfg.DataDir)
	if err != nil {
		return err
	}

	brokerURL := cfg.Collector.BrokerURL
	if brokerURL == "" {
		scheme := "mqtt"
		if cfg.MQTT.TLS {
			scheme = "mqtts"
		}
		brokerURL = fmt.Sprintf("%s://%s:%d", scheme, cfg.MQTT.Server, cfg.MQTT.Port)
	}

	col := collector.New(collector.Config{
		BrokerURL:    brokerURL,
		TopicFilter:  cfg.Collector.TopicFilter,
		ClientID:     clientID,
		Username:     cfg.MQTT.Username,
		Password:     cfg.MQTT.Password,
		RateLimit:    int64(cfg.Collector.RateLimit),
		RateInterval: time.Duration(cfg.Collector.RateIntervalSec) * time.Second,
	}, st, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pipeline worker drains PENDING rows in the background while the
	// collector keeps appending new ones.
	anchor := pipeline.NewAnchor(pipeline.AnchorConfig{
		PinataAPIKey:     cfg.Collector.Pipeline.PinataAPIKey,
		PinataAPISecret:  cfg.Collector.Pipeline.PinataAPISecret,
		HederaAccountID:  cfg.Collector.Pipeline.HederaAccountID,
		HederaPrivateKey: cfg.Collector.Pipeline.HederaPrivateKey,
		HederaTopicID:    cfg.Collector.Pipeline.HederaTopicID,
	}, logger)
	worker := pipeline.NewWorker(pipeline.WorkerConfig{
		PollInterval: time.Duration(cfg.Collector.Pipeline.PollIntervalSec) * time.Second,
		BatchSize:    cfg.Collector.Pipeline.BatchSize,
	}, st, anchor, clock.System(), logger)
	go worker.Run(ctx)

	apiSrv := api.NewServer(cfg.Collector.ListenAddr, st, logger)
	go func() {
		if err := apiSrv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server failed", "error", err)
		}
	}()

	err = col.Run(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if serr := apiSrv.Shutdown(stopCtx); serr != nil {
		logger.Warn("API server shutdown", "error", serr)
	}
	return err
}
