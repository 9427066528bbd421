// Package api implements the collector's HTTP surface: liveness
// endpoints plus read-only access to stored readings.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/heru-iot/heru/internal/buildinfo"
	"github.com/heru-iot/heru/internal/store"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the collector's HTTP server.
type Server struct {
	addr   string
	store  *store.Store
	logger *slog.Logger
	server *http.Server
}

// NewServer creates the HTTP server. Call [Server.Start] to listen.
func NewServer(addr string, st *store.Store, logger *slog.Logger) *Server {
	return &Server{
		addr:   addr,
		store:  st,
		logger: logger,
	}
}

// Start listens and serves until Shutdown is called. It blocks, so
// run it on its own goroutine next to the collector.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)

	// Reading access
	mux.HandleFunc("GET /v1/readings", s.handleReadings)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("starting API server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"message": "Heru IoT Server is running",
		"version": buildinfo.Version,
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status": "ok",
		"uptime": buildinfo.Uptime().String(),
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

// reading is the JSON shape served for one stored row.
type reading struct {
	ID          int64   `json:"id"`
	DeviceID    string  `json:"device_id"`
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Status      string  `json:"processing_status"`
	IPFSCid     string  `json:"ipfs_cid,omitempty"`
	HederaHash  string  `json:"hedera_hash,omitempty"`
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	recs, err := s.store.Recent(limit)
	if err != nil {
		s.logger.Error("list readings failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]reading, 0, len(recs))
	for _, rec := range recs {
		out = append(out, reading{
			ID:          rec.ID,
			DeviceID:    rec.DeviceID,
			Timestamp:   rec.Timestamp.Format(time.RFC3339),
			Temperature: rec.Temperature,
			Humidity:    rec.Humidity,
			Status:      rec.Status,
			IPFSCid:     rec.IPFSCid,
			HederaHash:  rec.HederaHash,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"readings": out, "count": len(out)}, s.logger)
}
