// Package sqlite implements the gateway data store backed by a SQLite
// database. It manages principals, session tokens, endpoints, registered
// remote usernames, share grants, and transfer tickets.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database connection for all gateway persistence
// operations.
type Store struct {
	db *sql.DB
}

const defaultMaxOpenConns = 10
const defaultMaxIdleConns = 10

// OpenOptions controls SQLite connection pool sizing.
type OpenOptions struct {
	MaxOpenConns int
	MaxIdleConns int
}

// Open creates or opens the SQLite database at path, runs migrations,
// and enables WAL mode for improved concurrent read performance.
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, OpenOptions{})
}

// OpenWithOptions creates or opens the SQLite database at path with
// tunable connection pool settings, runs migrations, and enables WAL mode.
func OpenWithOptions(path string, opts OpenOptions) (*Store, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	// Append per-connection PRAGMAs to the DSN so every pooled connection gets them.
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=synchronous(normal)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	maxOpenConns := opts.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = defaultMaxOpenConns
	}
	maxIdleConns := opts.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = defaultMaxIdleConns
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	// journal_mode and busy_timeout are database-wide; set them once here.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite setup (%s): %w", pragma, err)
		}
	}
	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes if they do not
// already exist.
func (s *Store) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS principals (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS session_tokens (
	token_hash TEXT PRIMARY KEY,
	principal_id TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL,
	revoked_at DATETIME NULL
);
CREATE TABLE IF NOT EXISTS endpoints (
	id TEXT PRIMARY KEY,
	principal_id TEXT NOT NULL,
	name TEXT NOT NULL UNIQUE,
	public_key TEXT NOT NULL,
	relay_port INTEGER NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS endpoint_usernames (
	id TEXT PRIMARY KEY,
	endpoint_id TEXT NOT NULL,
	username TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE(endpoint_id, username)
);
CREATE TABLE IF NOT EXISTS share_grants (
	id TEXT PRIMARY KEY,
	endpoint_id TEXT NOT NULL,
	granted_by TEXT NOT NULL,
	grantee_id TEXT NOT NULL,
	level TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(endpoint_id, grantee_id)
);
CREATE TABLE IF NOT EXISTS transfer_tickets (
	ticket TEXT PRIMARY KEY,
	endpoint_id TEXT NOT NULL,
	principal_id TEXT NOT NULL,
	username TEXT NOT NULL,
	path TEXT NOT NULL,
	op TEXT NOT NULL,
	expires_at DATETIME NOT NULL,
	used_at DATETIME NULL
);
CREATE INDEX IF NOT EXISTS idx_session_tokens_principal ON session_tokens(principal_id);
CREATE INDEX IF NOT EXISTS idx_endpoints_principal ON endpoints(principal_id);
CREATE INDEX IF NOT EXISTS idx_endpoint_usernames_endpoint ON endpoint_usernames(endpoint_id);
CREATE INDEX IF NOT EXISTS idx_share_grants_endpoint ON share_grants(endpoint_id);
CREATE INDEX IF NOT EXISTS idx_share_grants_grantee ON share_grants(grantee_id);
CREATE INDEX IF NOT EXISTS idx_transfer_tickets_expires ON transfer_tickets(expires_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func newID(prefix string) (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

func ensureParentDir(path string) error {
	path = strings.TrimSpace(path)
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
