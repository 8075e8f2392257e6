// Package cache stores GitLab API pages between runs. Lookups never fail:
// backend errors are logged and reported as misses.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Backend names accepted by Open.
const (
	None   = "none"
	SQLite = "sqlite"
	Redis  = "redis"
)

// Store is a TTL-bound byte cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend       string
	TTL           time.Duration
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Logger        *zap.Logger
}

// DefaultPath returns the sqlite file under the user cache directory.
func DefaultPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "gitlab-search", "cache.db")
}

// Open returns the configured store, or nil for backend "none".
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	switch opts.Backend {
	case "", None:
		return nil, nil
	case SQLite:
		if opts.Path == "" {
			opts.Path = DefaultPath()
		}
		s, err := OpenSQLite(ctx, opts.Path, opts.TTL, opts.Logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case Redis:
		s, err := OpenRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.TTL, opts.Logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q (want none, sqlite or redis)", opts.Backend)
	}
}
