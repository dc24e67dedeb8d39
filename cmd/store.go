package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/los-review/internal/config"
	"github.com/sells-group/los-review/internal/pipeline"
	"github.com/sells-group/los-review/internal/registry"
	"github.com/sells-group/los-review/internal/resilience"
	"github.com/sells-group/los-review/internal/store"
)

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "los-review.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for postgres (LOSREVIEW_STORE_DATABASE_URL)")
		}
		retry := resilience.DefaultRetryConfig()
		if c.Store.RetryAttempts > 0 {
			retry.MaxAttempts = c.Store.RetryAttempts
		}
		retry.OnRetry = resilience.RetryLogger("postgres connect")
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (store.Store, error) {
			return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
				MaxConns: c.Store.MaxConns,
				MinConns: c.Store.MinConns,
			})
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// pipelineEnv holds the store, registry and pipeline shared by the
// reconcile, sample, export and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Registry *registry.VersionRegistry
	Pipeline *pipeline.Pipeline
}

// Close releases the store.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline opens the store, loads the version registry, and builds the
// pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, c *config.Config) (*pipelineEnv, error) {
	reg, err := c.LoadRegistry()
	if err != nil {
		return nil, err
	}
	if reg.Len() == 0 {
		zap.L().Warn("version registry is empty; no final predictions will be admitted")
	}

	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}

	return &pipelineEnv{
		Store:    st,
		Registry: reg,
		Pipeline: pipeline.New(c, st, reg),
	}, nil
}
