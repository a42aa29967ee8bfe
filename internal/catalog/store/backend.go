package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"meddir-workers/internal/catalog"
	"meddir-workers/internal/common/config"
	"meddir-workers/internal/common/database"
	"meddir-workers/internal/common/logger"
)

// Backend is the catalog store selected by configuration, plus the
// connections it owns.
type Backend struct {
	Store catalog.Store
	// Search is set when the backend is Elasticsearch.
	Search *Elasticsearch

	checks  map[string]func(context.Context) error
	closers []func() error
}

type BackendOption func(*backendOptions)

type backendOptions struct {
	esTransport http.RoundTripper
}

// WithESTransport replaces the Elasticsearch HTTP transport.
func WithESTransport(rt http.RoundTripper) BackendOption {
	return func(o *backendOptions) {
		o.esTransport = rt
	}
}

// OpenBackend connects the configured catalog store, verifies it is reachable
// and wraps it in the Redis cache when enabled.
func OpenBackend(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...BackendOption) (*Backend, error) {
	var o backendOptions
	for _, opt := range opts {
		opt(&o)
	}

	b := &Backend{checks: map[string]func(context.Context) error{}}

	switch strings.ToLower(cfg.Catalog.Backend) {
	case config.BackendPostgres:
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pg.Close)
		if err := pg.Ping(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.checks["postgres"] = pg.Ping
		b.Store = NewPostgres(pg, DefaultTables())

	case config.BackendElasticsearch:
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch, o.esTransport)
		if err != nil {
			return nil, err
		}
		if err := es.Ping(ctx); err != nil {
			return nil, err
		}
		search := NewElasticsearch(es.Client, DefaultIndexes(cfg.Catalog.PlacesIndex, cfg.Catalog.ProgramsIndex))
		for _, name := range []string{catalog.Places.Name, catalog.Programs.Name} {
			if err := search.EnsureIndex(ctx, name); err != nil {
				return nil, err
			}
		}
		b.checks["elasticsearch"] = es.Ping
		b.Search = search
		b.Store = search

	case config.BackendMemory:
		mem, err := LoadFixturesFile(cfg.Catalog.FixturesPath)
		if err != nil {
			return nil, err
		}
		b.Store = mem

	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}

	if cfg.Catalog.Cache.Enabled {
		rdb := database.NewRedis(cfg.Database.Redis)
		b.closers = append(b.closers, rdb.Close)
		if err := rdb.Ping(ctx); err != nil {
			log.Warn("catalog cache unreachable, reads fall through until it recovers", map[string]interface{}{
				"error": err.Error(),
			})
		}
		b.checks["redis"] = rdb.Ping
		b.Store = NewCached(b.Store, rdb.Client, config.GetDuration(cfg.Catalog.Cache.TTL), log)
	}

	log.Info("catalog store ready", map[string]interface{}{
		"backend": cfg.Catalog.Backend,
		"cache":   cfg.Catalog.Cache.Enabled,
	})
	return b, nil
}

// Ready pings every connection the backend owns. The cache is optional and
// reported separately by name so callers can decide.
func (b *Backend) Ready(ctx context.Context) map[string]error {
	out := make(map[string]error, len(b.checks))
	for name, ping := range b.checks {
		out[name] = ping(ctx)
	}
	return out
}

func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
