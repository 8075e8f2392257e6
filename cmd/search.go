package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/gitlab-search/internal/cache"
	cfgpkg "github.com/KaramelBytes/gitlab-search/internal/config"
	"github.com/KaramelBytes/gitlab-search/internal/gitlab"
	"github.com/KaramelBytes/gitlab-search/internal/logger"
	"github.com/KaramelBytes/gitlab-search/internal/metrics"
	"github.com/KaramelBytes/gitlab-search/internal/output"
	"github.com/KaramelBytes/gitlab-search/internal/query"
	"github.com/KaramelBytes/gitlab-search/internal/search"
	"github.com/KaramelBytes/gitlab-search/internal/version"
)

func runSearch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return search.ErrNoQuery
	}
	q, err := query.ParseCommand(args)
	switch {
	case errors.Is(err, query.ErrHelp):
		printUsage(stdout)
		return nil
	case errors.Is(err, query.ErrVersion):
		fmt.Fprintln(stdout, version.String())
		return nil
	case err != nil:
		return err
	}

	if q.Setup {
		return writeSetup(stdout, q.Color, cfgpkg.SetupPath(q.Dir, q.ConfigFile), cfgpkg.Setup{
			APIURL:      q.APIURL,
			IgnoreCert:  q.IgnoreCert,
			MaxRequests: q.MaxRequests,
		})
	}

	cfg, err := cfgpkg.Load(q.ConfigFile)
	if err != nil {
		return err
	}
	applyOverrides(cfg, q)
	if err := cfg.Validate(); err != nil {
		return err
	}
	token, err := cfgpkg.ResolveToken(q.Token, q.TokenFile)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log := logger.New(stderr, q.Debug).With(zap.String("run_id", runID))
	defer func() { _ = log.Sync() }()
	ctx = logger.NewContext(ctx, log)
	if cfg.Path != "" {
		log.Debug("loaded config", zap.String("path", cfg.Path))
	}

	m := metrics.New()
	store := openCache(ctx, cfg, log)
	if store != nil {
		defer store.Close()
	}

	client := gitlab.New(gitlab.Options{
		BaseURL:     cfg.APIURL,
		Token:       token,
		IgnoreCert:  cfg.IgnoreCert,
		MaxRequests: cfg.MaxRequests,
		HTTPTimeout: time.Duration(cfg.HTTPTimeoutSec) * time.Second,
		RetryMax:    cfg.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
		RequestID:   runID,
		UserAgent:   version.UserAgent(),
		Cache:       store,
		Metrics:     m,
		Logger:      log,
	})

	printer, err := output.New(q.Format, stdout, output.Options{Color: q.Color})
	if err != nil {
		return err
	}
	err = search.New(client, printer, m).Run(ctx, q)
	if cerr := printer.Close(); err == nil {
		err = cerr
	}
	if errors.Is(err, search.ErrNoQuery) {
		printUsage(stderr)
	}
	if werr := m.WriteFile(q.MetricsFile); werr != nil {
		fmt.Fprintf(stderr, "⚠ Warning: %v\n", werr)
	}
	return err
}

// applyOverrides lets command line options win over file and environment.
func applyOverrides(cfg *cfgpkg.Config, q *query.Command) {
	if q.APIURL != "" {
		cfg.APIURL = q.APIURL
	}
	if q.IgnoreCert {
		cfg.IgnoreCert = true
	}
	if q.MaxRequests > 0 {
		cfg.MaxRequests = q.MaxRequests
	}
	if q.Cache != "" {
		cfg.Cache = q.Cache
	}
	if q.NoCache {
		cfg.Cache = cache.None
	}
}

// openCache returns nil when caching is off or the backend is unavailable;
// the search then runs uncached.
func openCache(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) cache.Store {
	store, err := cache.Open(ctx, cache.Options{
		Backend:       cfg.Cache,
		TTL:           time.Duration(cfg.CacheTTLSec) * time.Second,
		Path:          cfg.CachePath,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		Logger:        log,
	})
	if err != nil {
		log.Warn("response cache disabled", zap.String("backend", cfg.Cache), zap.Error(err))
		return nil
	}
	return store
}
