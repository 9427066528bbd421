// Package store persists accepted sensor payloads for the collector.
// One row per received reading, kept with the raw payload so later
// pipeline stages can reprocess without replaying the broker.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Processing status lifecycle for a stored reading. Rows are born
// PENDING; the pipeline worker moves them to COMPLETED or FAILED.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// ReadingRecord is one persisted sensor payload.
type ReadingRecord struct {
	ID          int64
	DeviceID    string
	Timestamp   time.Time
	Temperature float64
	Humidity    float64
	RawPayload  string
	Status      string

	// Anchoring receipts, filled in when the pipeline completes a row.
	IPFSCid    string
	HederaHash string
}

// Store is the sensor_data table backed by SQLite. All public methods
// are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// Open creates a reading store at the given database path. The schema
// is created automatically on first use.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sensor_data (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id         TEXT NOT NULL,
		timestamp         TEXT NOT NULL,
		temperature       REAL NOT NULL,
		humidity          REAL NOT NULL,
		raw_payload       TEXT NOT NULL,
		ipfs_cid          TEXT NOT NULL DEFAULT '',
		hedera_hash       TEXT NOT NULL DEFAULT '',
		processing_status TEXT NOT NULL DEFAULT 'PENDING'
	);
	CREATE INDEX IF NOT EXISTS idx_sensor_data_device
		ON sensor_data (device_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_sensor_data_status
		ON sensor_data (processing_status, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Insert stores a reading and fills in the record's ID. An empty
// Status defaults to PENDING; a zero Timestamp defaults to now.
func (s *Store) Insert(rec *ReadingRecord) error {
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	res, err := s.db.Exec(
		`INSERT INTO sensor_data
		 (device_id, timestamp, temperature, humidity, raw_payload, processing_status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.DeviceID,
		rec.Timestamp.Format(time.RFC3339),
		rec.Temperature,
		rec.Humidity,
		rec.RawPayload,
		rec.Status,
	)
	if err != nil {
		return fmt.Errorf("insert reading for %s: %w", rec.DeviceID, err)
	}

	rec.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert reading for %s: %w", rec.DeviceID, err)
	}
	return nil
}

// SetStatus updates a row's processing status.
func (s *Store) SetStatus(id int64, status string) error {
	_, err := s.db.Exec(
		`UPDATE sensor_data SET processing_status = ? WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("set status %d: %w", id, err)
	}
	return nil
}

// MarkCompleted stores the anchoring receipts for a row and moves it
// to COMPLETED in one statement, so a crash between the two cannot
// leave a completed row without its receipts.
func (s *Store) MarkCompleted(id int64, ipfsCid, hederaHash string) error {
	_, err := s.db.Exec(
		`UPDATE sensor_data
		 SET ipfs_cid = ?, hedera_hash = ?, processing_status = ?
		 WHERE id = ?`,
		ipfsCid, hederaHash, StatusCompleted, id,
	)
	if err != nil {
		return fmt.Errorf("mark completed %d: %w", id, err)
	}
	return nil
}

// Pending returns up to limit PENDING readings, oldest first, so the
// pipeline drains the backlog in arrival order.
func (s *Store) Pending(limit int) ([]ReadingRecord, error) {
	return s.query(
		`SELECT id, device_id, timestamp, temperature, humidity, raw_payload,
		        ipfs_cid, hedera_hash, processing_status
		 FROM sensor_data WHERE processing_status = ?
		 ORDER BY id ASC LIMIT ?`,
		StatusPending, limit,
	)
}

// Recent returns up to limit readings, newest first.
func (s *Store) Recent(limit int) ([]ReadingRecord, error) {
	return s.query(
		`SELECT id, device_id, timestamp, temperature, humidity, raw_payload,
		        ipfs_cid, hedera_hash, processing_status
		 FROM sensor_data ORDER BY id DESC LIMIT ?`,
		limit,
	)
}

func (s *Store) query(q string, args ...any) ([]ReadingRecord, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var result []ReadingRecord
	for rows.Next() {
		var rec ReadingRecord
		var ts string
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &ts, &rec.Temperature,
			&rec.Humidity, &rec.RawPayload, &rec.IPFSCid, &rec.HederaHash,
			&rec.Status); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		rec.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
