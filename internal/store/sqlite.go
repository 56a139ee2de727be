package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gridetl/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ RequestLedger = (*SQLiteStore)(nil)
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RequestLedger and RunStore backed by a SQLite
// database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS nsrdb_requests (
	year         INTEGER NOT NULL,
	region       TEXT    NOT NULL,
	city         TEXT    NOT NULL,
	status       TEXT    NOT NULL,
	download_url TEXT    NOT NULL DEFAULT '',
	message      TEXT    NOT NULL DEFAULT '',
	file_path    TEXT    NOT NULL DEFAULT '',
	updated_at   INTEGER NOT NULL,
	PRIMARY KEY (year, region, city)
);
CREATE INDEX IF NOT EXISTS idx_nsrdb_requests_status ON nsrdb_requests(status);
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	tool        TEXT    NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL DEFAULT 0,
	items       INTEGER NOT NULL DEFAULT 0,
	failures    INTEGER NOT NULL DEFAULT 0,
	error       TEXT    NOT NULL DEFAULT ''
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// tables if needed and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer at a time; concurrent downloads share the handle.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// RequestLedger implementation
// ---------------------------------------------------------------------------

// SaveRequest inserts or replaces the row for (year, region, city). A zero
// UpdatedAt is set to the current time.
func (s *SQLiteStore) SaveRequest(ctx context.Context, r *domain.NSRDBRequest) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO nsrdb_requests
			(year, region, city, status, download_url, message, file_path, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Year, r.Region, r.City, string(r.Status), r.DownloadURL, r.Message, r.FilePath,
		r.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving request %d/%s/%s: %w", r.Year, r.Region, r.City, err)
	}
	return nil
}

// GetRequest retrieves a single request. It returns ErrNotFound if the
// request was never saved.
func (s *SQLiteStore) GetRequest(ctx context.Context, year int, region, city string) (*domain.NSRDBRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT year, region, city, status, download_url, message, file_path, updated_at
		FROM nsrdb_requests WHERE year = ? AND region = ? AND city = ?`,
		year, region, city)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRequests returns requests with the given status, or all requests when
// status is empty, ordered by year, region and city.
func (s *SQLiteStore) ListRequests(ctx context.Context, status domain.RequestStatus) ([]domain.NSRDBRequest, error) {
	query := `
		SELECT year, region, city, status, download_url, message, file_path, updated_at
		FROM nsrdb_requests`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY year, region, city`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	defer rows.Close()

	var out []domain.NSRDBRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (*domain.NSRDBRequest, error) {
	var (
		r       domain.NSRDBRequest
		status  string
		updated int64
	)
	if err := sc.Scan(&r.Year, &r.Region, &r.City, &status, &r.DownloadURL, &r.Message, &r.FilePath, &updated); err != nil {
		return nil, err
	}
	r.Status = domain.RequestStatus(status)
	r.UpdatedAt = time.UnixMilli(updated).UTC()
	return &r, nil
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// StartRun inserts a run for tool and returns its ID.
func (s *SQLiteStore) StartRun(ctx context.Context, tool string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (tool, started_at) VALUES (?, ?)`, tool, s.now().UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("starting run: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun stamps the end of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, id int64, items, failures int, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, items = ?, failures = ?, error = ? WHERE id = ?`,
		s.now().UTC().UnixMilli(), items, failures, msg, id)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs of a tool, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, tool string, limit int) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool, started_at, finished_at, items, failures, error
		FROM runs WHERE tool = ? ORDER BY id DESC LIMIT ?`, tool, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []domain.Run
	for rows.Next() {
		var (
			r                 domain.Run
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &r.Tool, &started, &finished, &r.Items, &r.Failures, &r.Err); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		if finished > 0 {
			r.FinishedAt = time.UnixMilli(finished).UTC()
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
