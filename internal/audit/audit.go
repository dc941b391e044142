// Package audit journals reservation lifecycles and write operations to
// SQLite. The allocation ledger itself is purely in-memory and lost on
// restart; the journal is the retained audit trail reservation records are
// kept for. It is strictly observational: nothing reads it back into the
// ledger.
package audit

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"
	"github.com/mistakeknot/rowlock/internal/core"
)

//go:embed schema.sql
var schema string

// Log is a SQLite-backed journal.
type Log struct {
	db *sql.DB
}

func New(path string) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Single connection: journal writes come from many goroutines and
	// SQLite is single-writer anyway.
	db.SetMaxOpenConns(1)
	if err := applySchema(db); err != nil {
		return nil, err
	}
	return &Log{db: db}, nil
}

func NewInMemory() (*Log, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := applySchema(db); err != nil {
		return nil, err
	}
	return &Log{db: db}, nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (l *Log) Close() error {
	return l.db.Close()
}

// RecordReservation upserts the reservation's current state, so the row
// tracks the lifecycle across created/completed/expired.
func (l *Log) RecordReservation(res core.Reservation) error {
	var completedAt any
	if res.CompletedAt != nil {
		completedAt = res.CompletedAt.Format(time.RFC3339Nano)
	}
	return retryOnBusy(func() error {
		_, err := l.db.Exec(
			`INSERT INTO reservations (id, agent_id, sheet, start_row, end_row, row_count, status, reserved_at, completed_at, records_written)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET status=excluded.status, completed_at=excluded.completed_at, records_written=excluded.records_written`,
			res.ID, res.AgentID, res.Sheet, res.StartRow, res.EndRow, res.RowCount,
			string(res.Status), res.ReservedAt.Format(time.RFC3339Nano), completedAt, res.RecordsWritten,
		)
		if err != nil {
			return fmt.Errorf("record reservation: %w", err)
		}
		return nil
	})
}

// Operation is one journaled write.
type Operation struct {
	ID          string
	Kind        string
	Sheet       string
	AgentID     string
	StartRow    int64
	EndRow      int64
	RowsWritten int64
	Cancelled   bool
	CreatedAt   time.Time
}

const (
	KindAppend        = "append"
	KindReservedWrite = "reserved_write"
)

// RecordOperation journals a completed (possibly partial) write.
func (l *Log) RecordOperation(op Operation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	cancelled := 0
	if op.Cancelled {
		cancelled = 1
	}
	return retryOnBusy(func() error {
		_, err := l.db.Exec(
			`INSERT INTO operations (id, kind, sheet, agent_id, start_row, end_row, rows_written, cancelled, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			op.ID, op.Kind, op.Sheet, op.AgentID, op.StartRow, op.EndRow, op.RowsWritten, cancelled,
			op.CreatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("record operation: %w", err)
		}
		return nil
	})
}

// RecentOperations returns the newest operations for a sheet, newest first.
// An empty sheet matches everything.
func (l *Log) RecentOperations(sheet string, limit int) ([]Operation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, kind, sheet, agent_id, start_row, end_row, rows_written, cancelled, created_at
		 FROM operations`
	args := []any{}
	if sheet != "" {
		query += ` WHERE sheet = ?`
		args = append(args, sheet)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var out []Operation
	for rows.Next() {
		var op Operation
		var agentID sql.NullString
		var cancelled int
		var createdAt string
		if err := rows.Scan(&op.ID, &op.Kind, &op.Sheet, &agentID, &op.StartRow, &op.EndRow, &op.RowsWritten, &cancelled, &createdAt); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		op.AgentID = agentID.String
		op.Cancelled = cancelled != 0
		op.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// ReservationHistory returns every journaled reservation for a sheet in
// grant order.
func (l *Log) ReservationHistory(sheet string) ([]core.Reservation, error) {
	rows, err := l.db.Query(
		`SELECT id, agent_id, sheet, start_row, end_row, row_count, status, reserved_at, completed_at, records_written
		 FROM reservations WHERE sheet = ? ORDER BY start_row ASC`, sheet,
	)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var out []core.Reservation
	for rows.Next() {
		var res core.Reservation
		var status, reservedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&res.ID, &res.AgentID, &res.Sheet, &res.StartRow, &res.EndRow, &res.RowCount, &status, &reservedAt, &completedAt, &res.RecordsWritten); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		res.Status = core.ReservationStatus(status)
		res.ReservedAt, _ = time.Parse(time.RFC3339Nano, reservedAt)
		if completedAt.Valid {
			parsed, _ := time.Parse(time.RFC3339Nano, completedAt.String)
			res.CompletedAt = &parsed
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
