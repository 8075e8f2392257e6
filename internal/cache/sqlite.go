package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

const schema = `CREATE TABLE IF NOT EXISTS pages (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
)`

// SQLiteStore keeps pages in a local sqlite file.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	log *zap.Logger
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the cache database at path and drops
// expired rows.
func OpenSQLite(ctx context.Context, path string, ttl time.Duration, log *zap.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	s := &SQLiteStore{db: db, ttl: ttl, log: log, now: time.Now}
	if _, err := db.ExecContext(ctx, "DELETE FROM pages WHERE expires_at <= ?", s.now().Unix()); err != nil {
		log.Warn("cache cleanup failed", zap.Error(err))
	}
	return s, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM pages WHERE key = ? AND expires_at > ?", key, s.now().Unix(),
	).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("cache read failed", zap.Error(err))
		}
		return nil, false
	}
	return value, true
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pages (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, s.now().Add(s.ttl).Unix(),
	)
	if err != nil {
		s.log.Warn("cache write failed", zap.Error(err))
	}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
