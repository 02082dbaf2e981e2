package track

import (
	"fmt"
	"time"

	"github.com/openmocap/mocap/internal/db"
)

// Store persists per-cycle triangulation results so trajectories can be
// inspected after the fact. The live result set itself stays in memory; the
// store is history only.
type Store struct {
	db *db.DB
}

// NewStore creates a Store over an opened (and migrated) database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// RecordResults appends one cycle's results. Implements ResultSink.
func (s *Store) RecordResults(sessionID string, ts time.Time, results []Result) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin results batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO track_positions (session_id, marker_id, x, y, z, views, ts_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare results insert: %w", err)
	}
	defer stmt.Close()

	nanos := ts.UnixNano()
	for _, r := range results {
		if _, err := stmt.Exec(sessionID, r.MarkerID, r.X, r.Y, r.Z, r.Views, nanos); err != nil {
			return fmt.Errorf("insert result for marker %d: %w", r.MarkerID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit results batch: %w", err)
	}
	return nil
}

// PositionRecord is a persisted triangulation result.
type PositionRecord struct {
	SessionID   string  `json:"session_id"`
	MarkerID    int     `json:"marker_id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	Views       int     `json:"views"`
	TSUnixNanos int64   `json:"ts_unix_nanos"`
}

// RecentPositions returns up to limit most recent records for a marker,
// newest first. A negative markerID returns records for all markers.
func (s *Store) RecentPositions(markerID int, limit int) ([]PositionRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT session_id, marker_id, x, y, z, views, ts_unix_nanos
		FROM track_positions
	`
	args := []interface{}{}
	if markerID >= 0 {
		query += " WHERE marker_id = ?"
		args = append(args, markerID)
	}
	query += " ORDER BY ts_unix_nanos DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var r PositionRecord
		if err := rows.Scan(&r.SessionID, &r.MarkerID, &r.X, &r.Y, &r.Z, &r.Views, &r.TSUnixNanos); err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Markers returns the distinct marker ids with persisted history.
func (s *Store) Markers() ([]int, error) {
	rows, err := s.db.Query("SELECT DISTINCT marker_id FROM track_positions ORDER BY marker_id")
	if err != nil {
		return nil, fmt.Errorf("query markers: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan marker id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
