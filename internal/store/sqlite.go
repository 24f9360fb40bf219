package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed initializes) the database at dsn.
// Use ":memory:" for tests.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// sqlite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY under concurrent pipeline writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite %s: %w", dsn, err)
	}

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_mocks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		url_hash TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL,
		status_code TEXT NOT NULL DEFAULT '200',
		headers TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		delay_ms INTEGER NOT NULL DEFAULT 0,
		running INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		response_schema TEXT NOT NULL DEFAULT '',
		ai_mock_body TEXT NOT NULL DEFAULT '',
		ai_mock_running INTEGER NOT NULL DEFAULT 1,
		ai_override INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_user_mocks_route ON user_mocks(identity, url_hash, method, source);
	CREATE TABLE IF NOT EXISTS mock_urls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL,
		env TEXT NOT NULL,
		url TEXT NOT NULL,
		running INTEGER NOT NULL DEFAULT 0,
		UNIQUE(identity, env)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Ping checks database liveness.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const mockColumns = `id, identity, url, url_hash, name, method, status_code, headers, body,
	delay_ms, running, deleted, source, description, response_schema, created_at, updated_at`

func scanMock(row interface{ Scan(...any) error }) (*MockRecord, error) {
	var rec MockRecord
	var src string
	err := row.Scan(&rec.ID, &rec.Identity, &rec.URL, &rec.URLHash, &rec.Name, &rec.Method,
		&rec.StatusCode, &rec.Headers, &rec.Body, &rec.DelayMs, &rec.Running, &rec.Deleted,
		&src, &rec.Description, &rec.ResponseSchema, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Source = Source(src)
	return &rec, nil
}

// GetRunningManualMock returns the single running, non-deleted manual record
// for the route, or nil when none exists.
func (s *SQLiteStore) GetRunningManualMock(ctx context.Context, identity, urlHash, method string) (*MockRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+mockColumns+` FROM user_mocks
		WHERE identity = ? AND url_hash = ? AND method = ?
		  AND running = 1 AND deleted = 0 AND source = ?
		LIMIT 1
	`, identity, urlHash, strings.ToUpper(method), SourceManual)
	rec, err := scanMock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// StopAllRunningManualMocks deactivates every running manual record for the route.
func (s *SQLiteStore) StopAllRunningManualMocks(ctx context.Context, identity, urlHash, method string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_mocks SET running = 0, updated_at = ?
		WHERE identity = ? AND url_hash = ? AND method = ? AND running = 1 AND source = ?
	`, time.Now(), identity, urlHash, strings.ToUpper(method), SourceManual)
	return err
}

// InsertOrUpdateMock creates a new record (deactivating running siblings in
// the same transaction, preserving the single-active invariant) or updates an
// existing one by ID.
func (s *SQLiteStore) InsertOrUpdateMock(ctx context.Context, rec *MockRecord) error {
	now := time.Now()
	if rec.Source == "" {
		rec.Source = SourceManual
	}
	rec.Method = strings.ToUpper(rec.Method)

	if rec.ID != 0 {
		_, err := s.db.ExecContext(ctx, `
			UPDATE user_mocks
			SET url = ?, name = ?, status_code = ?, headers = ?, body = ?, delay_ms = ?,
			    description = ?, response_schema = ?, updated_at = ?
			WHERE id = ? AND deleted = 0
		`, rec.URL, rec.Name, rec.StatusCode, rec.Headers, rec.Body, rec.DelayMs,
			rec.Description, rec.ResponseSchema, now, rec.ID)
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE user_mocks SET running = 0, updated_at = ?
		WHERE identity = ? AND url_hash = ? AND method = ? AND running = 1 AND source = ?
	`, now, rec.Identity, rec.URLHash, rec.Method, rec.Source); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO user_mocks
			(identity, url, url_hash, name, method, status_code, headers, body, delay_ms,
			 running, deleted, source, description, response_schema, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?, ?, ?, ?)
	`, rec.Identity, rec.URL, rec.URLHash, rec.Name, rec.Method, rec.StatusCode,
		rec.Headers, rec.Body, rec.DelayMs, rec.Source, rec.Description, rec.ResponseSchema, now, now)
	if err != nil {
		return err
	}
	rec.ID, _ = res.LastInsertId()
	rec.Running = true
	return tx.Commit()
}

// StartMock activates one record after deactivating its running siblings, in
// a single transaction.
func (s *SQLiteStore) StartMock(ctx context.Context, id int64) error {
	rec, err := s.FindMockByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("mock %d: %w", id, ErrNotFound)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE user_mocks SET running = 0, updated_at = ?
		WHERE identity = ? AND url_hash = ? AND method = ? AND running = 1 AND source = ?
	`, now, rec.Identity, rec.URLHash, rec.Method, rec.Source); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE user_mocks SET running = 1, updated_at = ? WHERE id = ? AND deleted = 0
	`, now, id); err != nil {
		return err
	}
	return tx.Commit()
}

// StopMock deactivates one record.
func (s *SQLiteStore) StopMock(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_mocks SET running = 0, updated_at = ? WHERE id = ? AND deleted = 0
	`, time.Now(), id)
	return err
}

// DeleteMock soft-deletes one record. Records are never hard-deleted.
func (s *SQLiteStore) DeleteMock(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_mocks SET deleted = 1, running = 0, updated_at = ? WHERE id = ?
	`, time.Now(), id)
	return err
}

// FindMockByID returns a non-deleted record by ID, or nil.
func (s *SQLiteStore) FindMockByID(ctx context.Context, id int64) (*MockRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+mockColumns+` FROM user_mocks WHERE id = ? AND deleted = 0
	`, id)
	rec, err := scanMock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// ListMocks pages through non-deleted manual records, optionally narrowed to
// one route. An empty urlHash lists every record for the identity.
func (s *SQLiteStore) ListMocks(ctx context.Context, identity, urlHash, method string, offset, limit int) ([]MockRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + mockColumns + ` FROM user_mocks
		WHERE identity = ? AND deleted = 0 AND source = ?`
	args := []any{identity, SourceManual}
	if urlHash != "" {
		query += ` AND url_hash = ? AND method = ?`
		args = append(args, urlHash, strings.ToUpper(method))
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var recs []MockRecord
	for rows.Next() {
		rec, err := scanMock(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// =============================================================================
// AI CACHE
// =============================================================================

// GetAICacheBody returns the cached AI body for a route, or "" when absent.
func (s *SQLiteStore) GetAICacheBody(ctx context.Context, identity, urlHash, method string) (string, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT ai_mock_body FROM user_mocks
		WHERE identity = ? AND url_hash = ? AND method = ? AND source = ? LIMIT 1
	`, identity, urlHash, strings.ToUpper(method), SourceAICache).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return body, err
}

// SetAICacheBody upserts the cached AI body for a route. Concurrent writers
// race benignly: last writer wins.
func (s *SQLiteStore) SetAICacheBody(ctx context.Context, identity, url, urlHash, method, body string) error {
	method = strings.ToUpper(method)
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_mocks SET ai_mock_body = ?, updated_at = ?
		WHERE identity = ? AND url_hash = ? AND method = ? AND source = ?
	`, body, time.Now(), identity, urlHash, method, SourceAICache)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_mocks (identity, url, url_hash, method, source, ai_mock_body)
		VALUES (?, ?, ?, ?, ?, ?)
	`, identity, url, urlHash, method, SourceAICache, body)
	return err
}

// DeleteAICacheBody removes cached AI bodies for a route (cache invalidation
// when the route's schema changes).
func (s *SQLiteStore) DeleteAICacheBody(ctx context.Context, identity, urlHash, method string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM user_mocks
		WHERE identity = ? AND url_hash = ? AND method = ? AND source = ?
	`, identity, urlHash, strings.ToUpper(method), SourceAICache)
	return err
}

// =============================================================================
// AI SWITCH / OVERRIDE
// =============================================================================

// IsAISwitchDisabled reports whether AI mocking was explicitly turned off for
// a route. An absent switch record means AI mocking is allowed.
func (s *SQLiteStore) IsAISwitchDisabled(ctx context.Context, identity, urlHash, method string) (bool, error) {
	var running bool
	err := s.db.QueryRowContext(ctx, `
		SELECT ai_mock_running FROM user_mocks
		WHERE identity = ? AND url_hash = ? AND method = ? AND source = ? LIMIT 1
	`, identity, urlHash, strings.ToUpper(method), SourceAISwitch).Scan(&running)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !running, nil
}

// SetAISwitch upserts the per-route AI switch.
func (s *SQLiteStore) SetAISwitch(ctx context.Context, identity, url, urlHash, method string, running bool) error {
	return s.upsertFlag(ctx, identity, url, urlHash, method, SourceAISwitch, "ai_mock_running", running)
}

// IsAIOverrideActive reports whether AI resolution preempts backend
// forwarding for a route.
func (s *SQLiteStore) IsAIOverrideActive(ctx context.Context, identity, urlHash, method string) (bool, error) {
	var override bool
	err := s.db.QueryRowContext(ctx, `
		SELECT ai_override FROM user_mocks
		WHERE identity = ? AND url_hash = ? AND method = ? AND source = ? LIMIT 1
	`, identity, urlHash, strings.ToUpper(method), SourceAIOverride).Scan(&override)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return override, nil
}

// SetAIOverride upserts the per-route AI override flag.
func (s *SQLiteStore) SetAIOverride(ctx context.Context, identity, url, urlHash, method string, override bool) error {
	return s.upsertFlag(ctx, identity, url, urlHash, method, SourceAIOverride, "ai_override", override)
}

func (s *SQLiteStore) upsertFlag(ctx context.Context, identity, url, urlHash, method string, src Source, column string, value bool) error {
	method = strings.ToUpper(method)
	// column is one of two trusted constants, never user input.
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_mocks SET `+column+` = ?, updated_at = ?
		WHERE identity = ? AND url_hash = ? AND method = ? AND source = ?
	`, value, time.Now(), identity, urlHash, method, src)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_mocks (identity, url, url_hash, method, source, `+column+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, identity, url, urlHash, method, src, value)
	return err
}

// GetResponseSchema returns the imported response schema for a route, or "".
func (s *SQLiteStore) GetResponseSchema(ctx context.Context, identity, urlHash, method string) (string, error) {
	var schema string
	err := s.db.QueryRowContext(ctx, `
		SELECT response_schema FROM user_mocks
		WHERE identity = ? AND url_hash = ? AND method = ? AND source = ? LIMIT 1
	`, identity, urlHash, strings.ToUpper(method), SourceOpenAPI).Scan(&schema)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return schema, err
}

// =============================================================================
// BACKEND BINDINGS
// =============================================================================

// FindRunningBackend returns the running backend binding for an identity, or
// nil. At most one environment is running at a time; the management API
// enforces that on update, and the pipeline relies on it here.
func (s *SQLiteStore) FindRunningBackend(ctx context.Context, identity string) (*BackendBinding, error) {
	var b BackendBinding
	var env string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, identity, env, url, running FROM mock_urls
		WHERE identity = ? AND running = 1 LIMIT 1
	`, identity).Scan(&b.ID, &b.Identity, &env, &b.URL, &b.Running)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.Env = Env(env)
	return &b, nil
}

// UpsertBackend creates or updates the binding URL for (identity, env).
func (s *SQLiteStore) UpsertBackend(ctx context.Context, identity string, env Env, url string) error {
	if !ValidEnv(env) {
		return fmt.Errorf("invalid env: %s", env)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mock_urls (identity, env, url) VALUES (?, ?, ?)
		ON CONFLICT(identity, env) DO UPDATE SET url = excluded.url
	`, identity, env, url)
	return err
}

// StartBackend marks one environment running, stopping any other running
// environment for the identity in the same transaction.
func (s *SQLiteStore) StartBackend(ctx context.Context, identity string, env Env) error {
	if !ValidEnv(env) {
		return fmt.Errorf("invalid env: %s", env)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE mock_urls SET running = 0 WHERE identity = ? AND running = 1
	`, identity); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE mock_urls SET running = 1 WHERE identity = ? AND env = ?
	`, identity, env)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("backend binding for env %s: %w", env, ErrNotFound)
	}
	return tx.Commit()
}

// StopBackend marks one environment stopped.
func (s *SQLiteStore) StopBackend(ctx context.Context, identity string, env Env) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mock_urls SET running = 0 WHERE identity = ? AND env = ?
	`, identity, env)
	return err
}

// ListBackends returns every binding for an identity.
func (s *SQLiteStore) ListBackends(ctx context.Context, identity string) ([]BackendBinding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity, env, url, running FROM mock_urls WHERE identity = ? ORDER BY env
	`, identity)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []BackendBinding
	for rows.Next() {
		var b BackendBinding
		var env string
		if err := rows.Scan(&b.ID, &b.Identity, &env, &b.URL, &b.Running); err != nil {
			return nil, err
		}
		b.Env = Env(env)
		out = append(out, b)
	}
	return out, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
