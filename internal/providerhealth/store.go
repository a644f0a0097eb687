// Package providerhealth is the sqlite-backed audit trail of Provider Client
// attempts and circuit-breaker transitions (SPEC_FULL §4). Attempts are
// written on the hot path, via AuditedClient; RecordBreakerTransition
// stores breaker events but has no caller in the module, so the
// CircuitBreaker's transitions are not recorded. RecentFailureRate and
// ExecutionsForTask exist for operator-facing inspection (a CLI or
// dashboard reading "is this provider healthy") rather than for the
// Supervisor's own retry path, which instead relies on the in-process
// CircuitBreaker for that decision.
package providerhealth

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Attempt is a single Provider Client call, successful or not.
type Attempt struct {
	ID                int64
	ProjectID         string
	TaskID            string
	Provider          string
	AttemptNumber     int
	Success           bool
	HTTPStatus        int
	RetryAfterSeconds float64
	ErrorMessage      string
	DurationMS        int64
	Timestamp         time.Time
}

// BreakerTransition records the circuit breaker opening or closing for a
// provider.
type BreakerTransition struct {
	ID                  int64
	Provider            string
	Opened              bool
	ConsecutiveFailures int
	Timestamp           time.Time
}

// Store manages the SQLite database backing the provider health trail.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if necessary) the sqlite database at dbPath and
// applies the embedded schema. dbPath may be ":memory:" for tests.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create provider health directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open provider health database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init provider health schema: %w", err)
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordAttempt appends one Provider Client call to the audit trail.
func (s *Store) RecordAttempt(ctx context.Context, a *Attempt) error {
	query := `INSERT INTO provider_attempts
		(project_id, task_id, provider, attempt_number, success, http_status, retry_after_seconds, error_message, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		a.ProjectID, a.TaskID, a.Provider, a.AttemptNumber, a.Success,
		a.HTTPStatus, a.RetryAfterSeconds, a.ErrorMessage, a.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert provider attempt: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	a.ID = id
	return nil
}

// RecordBreakerTransition appends a breaker open/close event.
func (s *Store) RecordBreakerTransition(ctx context.Context, t *BreakerTransition) error {
	query := `INSERT INTO breaker_transitions (provider, opened, consecutive_failures)
		VALUES (?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, t.Provider, t.Opened, t.ConsecutiveFailures)
	if err != nil {
		return fmt.Errorf("insert breaker transition: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	t.ID = id
	return nil
}

// RecentFailureRate returns the fraction of failed attempts for provider
// within the last window, for operator inspection. Returns 0 with no error
// when there were no attempts.
func (s *Store) RecentFailureRate(ctx context.Context, provider string, window time.Duration) (float64, error) {
	since := time.Now().Add(-window)
	var total, failed int
	query := `SELECT COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END)
		FROM provider_attempts WHERE provider = ? AND timestamp >= ?`
	row := s.db.QueryRowContext(ctx, query, provider, since)
	var failedNullable sql.NullInt64
	if err := row.Scan(&total, &failedNullable); err != nil {
		return 0, fmt.Errorf("query recent failure rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	if failedNullable.Valid {
		failed = int(failedNullable.Int64)
	}
	return float64(failed) / float64(total), nil
}

// ExecutionsForTask returns every recorded attempt for one task, most
// recent first, for operator inspection of one task's provider history.
func (s *Store) ExecutionsForTask(ctx context.Context, projectID, taskID string) ([]*Attempt, error) {
	query := `SELECT id, project_id, task_id, provider, attempt_number, success, http_status, retry_after_seconds, error_message, duration_ms, timestamp
		FROM provider_attempts WHERE project_id = ? AND task_id = ? ORDER BY id DESC`
	rows, err := s.db.QueryContext(ctx, query, projectID, taskID)
	if err != nil {
		return nil, fmt.Errorf("query task attempts: %w", err)
	}
	defer rows.Close()

	var out []*Attempt
	for rows.Next() {
		a := &Attempt{}
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.TaskID, &a.Provider, &a.AttemptNumber,
			&a.Success, &a.HTTPStatus, &a.RetryAfterSeconds, &a.ErrorMessage, &a.DurationMS, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan task attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task attempts: %w", err)
	}
	return out, nil
}
