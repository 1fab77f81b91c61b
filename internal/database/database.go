// Package database persists exported session snapshots to sqlite so
// engagements can be audited and resumed after the process exits. The
// snapshot body is stored as JSON; indexed columns exist only for listing
// and lookup.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pattonant/autopen2.0/internal/session"
	"github.com/pattonant/autopen2.0/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    session_id  TEXT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMP NOT NULL,
    exported_at TIMESTAMP NOT NULL,
    body        TEXT NOT NULL,
    PRIMARY KEY (session_id, exported_at)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id);
`

// DB wraps the sqlite connection holding session snapshots.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if needed) the snapshot database at path and runs
// migrations. WAL mode keeps concurrent readers from blocking exports.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(types.DB_OPEN_FAILED, "failed to open snapshot database", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, types.WrapError(types.DB_OPEN_FAILED, "snapshot database unreachable", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, types.WrapError(types.DB_MIGRATION_FAILED, "failed to migrate snapshot schema", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SaveSnapshot persists one exported snapshot. Saving the same session again
// appends a new row; history is retained for audit.
func (db *DB) SaveSnapshot(ctx context.Context, snap session.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to encode snapshot", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO snapshots (session_id, name, created_at, exported_at, body) VALUES (?, ?, ?, ?, ?)`,
		snap.SessionID.String(), snap.Name, snap.CreatedAt, snap.ExportedAt, string(body),
	)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to save snapshot", err)
	}
	return nil
}

// LoadSnapshot returns the most recent snapshot of the session.
func (db *DB) LoadSnapshot(ctx context.Context, sessionID types.ID) (session.Snapshot, error) {
	var body string
	err := db.conn.QueryRowContext(ctx,
		`SELECT body FROM snapshots WHERE session_id = ? ORDER BY exported_at DESC LIMIT 1`,
		sessionID.String(),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Snapshot{}, types.NewError(types.SESSION_NOT_FOUND,
			"no snapshot for session "+sessionID.String())
	}
	if err != nil {
		return session.Snapshot{}, types.WrapError(types.DB_QUERY_FAILED, "failed to load snapshot", err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return session.Snapshot{}, types.WrapError(types.DB_QUERY_FAILED, "corrupt snapshot body", err)
	}
	return snap, nil
}

// SnapshotInfo summarizes one stored snapshot for listing.
type SnapshotInfo struct {
	SessionID  types.ID  `json:"session_id"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExportedAt time.Time `json:"exported_at"`
}

// ListSnapshots returns the latest snapshot per session, newest first.
func (db *DB) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT session_id, name, created_at, MAX(exported_at)
		FROM snapshots
		GROUP BY session_id
		ORDER BY MAX(exported_at) DESC`)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list snapshots", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var id string
		if err := rows.Scan(&id, &info.Name, &info.CreatedAt, &info.ExportedAt); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan snapshot row", err)
		}
		info.SessionID = types.ID(id)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to iterate snapshot rows", err)
	}
	return out, nil
}
