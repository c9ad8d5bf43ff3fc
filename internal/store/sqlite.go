package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/redcentre/carbonsvc/internal/model"

	_ "modernc.org/sqlite"
)

const createStateTable = `
CREATE TABLE IF NOT EXISTS session_state (
    session_id TEXT NOT NULL,
    idx        INTEGER NOT NULL,
    data       BLOB,
    PRIMARY KEY (session_id, idx)
)`

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id       TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    user_name        TEXT NOT NULL,
    roles            TEXT NOT NULL,
    customers        TEXT NOT NULL,
    created_at       DATETIME NOT NULL,
    open_customer    TEXT NOT NULL,
    open_job         TEXT NOT NULL,
    open_vartree     TEXT NOT NULL,
    open_report      TEXT NOT NULL,
    last_activity    TEXT NOT NULL,
    last_activity_at DATETIME,
    activity_count   INTEGER NOT NULL
)`

// Compile-time interface satisfaction checks.
var (
	_ StateStore   = (*SQLiteStore)(nil)
	_ SessionStore = (*SQLiteStore)(nil)
)

// SQLiteStore implements StateStore and SessionStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createStateTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session_state table: %w", err)
	}

	if _, err := db.Exec(createSessionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Write upserts one state blob.
func (s *SQLiteStore) Write(ctx context.Context, sessionID string, index int, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_state (session_id, idx, data) VALUES (?, ?, ?)
		ON CONFLICT (session_id, idx) DO UPDATE SET data = excluded.data`,
		sessionID, index, data,
	)
	if err != nil {
		return fmt.Errorf("write state blob %d: %w", index, err)
	}
	return nil
}

// Truncate deletes the session's blobs at index n and above.
func (s *SQLiteStore) Truncate(ctx context.Context, sessionID string, n int) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM session_state WHERE session_id = ? AND idx >= ?", sessionID, n,
	)
	if err != nil {
		return fmt.Errorf("truncate state at %d: %w", n, err)
	}
	return nil
}

// Read returns the session's blobs in index order.
func (s *SQLiteStore) Read(ctx context.Context, sessionID string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT idx, data FROM session_state WHERE session_id = ? ORDER BY idx", sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	defer rows.Close()

	blobs := [][]byte{}
	for rows.Next() {
		var idx int
		var data []byte
		if err := rows.Scan(&idx, &data); err != nil {
			return nil, fmt.Errorf("scan state blob: %w", err)
		}
		for len(blobs) < idx {
			blobs = append(blobs, nil)
		}
		if len(data) == 0 {
			data = nil
		}
		blobs = append(blobs, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state blobs: %w", err)
	}

	return blobs, nil
}

// Delete removes all of a session's blobs and reports the bytes freed.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var freed int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(LENGTH(data)), 0) FROM session_state WHERE session_id = ?", sessionID,
	).Scan(&freed); err != nil {
		return 0, fmt.Errorf("measure state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM session_state WHERE session_id = ?", sessionID); err != nil {
		return 0, fmt.Errorf("delete state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return freed, nil
}

// Exists reports whether any state blob is stored for the session.
func (s *SQLiteStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM session_state WHERE session_id = ?", sessionID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check state: %w", err)
	}
	return n > 0, nil
}

// SaveSession inserts or replaces a session record.
func (s *SQLiteStore) SaveSession(ctx context.Context, rec *model.SessionRecord) error {
	roles, err := json.Marshal(rec.Roles)
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}
	customers, err := json.Marshal(rec.CustomerStorageKeys)
	if err != nil {
		return fmt.Errorf("marshal customers: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (
			session_id, user_id, user_name, roles, customers, created_at,
			open_customer, open_job, open_vartree, open_report,
			last_activity, last_activity_at, activity_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.UserID, rec.UserName, string(roles), string(customers), rec.CreatedAt,
		rec.OpenCustomerName, rec.OpenJobName, rec.OpenVartreeName, rec.OpenReportName,
		rec.LastActivity, rec.LastActivityAt, rec.ActivityCount,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSessions returns every persisted session record ordered by creation time.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*model.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, user_id, user_name, roles, customers, created_at,
			open_customer, open_job, open_vartree, open_report,
			last_activity, last_activity_at, activity_count
		FROM sessions ORDER BY created_at, session_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var recs []*model.SessionRecord
	for rows.Next() {
		rec := &model.SessionRecord{}
		var roles, customers string
		if err := rows.Scan(
			&rec.SessionID, &rec.UserID, &rec.UserName, &roles, &customers, &rec.CreatedAt,
			&rec.OpenCustomerName, &rec.OpenJobName, &rec.OpenVartreeName, &rec.OpenReportName,
			&rec.LastActivity, &rec.LastActivityAt, &rec.ActivityCount,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal([]byte(roles), &rec.Roles); err != nil {
			return nil, fmt.Errorf("unmarshal roles of %s: %w", rec.SessionID, err)
		}
		if err := json.Unmarshal([]byte(customers), &rec.CustomerStorageKeys); err != nil {
			return nil, fmt.Errorf("unmarshal customers of %s: %w", rec.SessionID, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return recs, nil
}
