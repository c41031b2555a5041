package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/indicators-cli/internal/db"
	"github.com/sells-group/indicators-cli/internal/fetcher"
	"github.com/sells-group/indicators-cli/internal/pipeline"
	"github.com/sells-group/indicators-cli/internal/store"
)

// pipelineEnv holds everything a pipeline run needs, plus cleanup.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	closers  []func()
}

// Close releases the store and any database pools.
func (e *pipelineEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initStore opens the run log store for the configured driver.
func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
}

// initResolver builds the input resolver from the fetch settings.
func initResolver() *fetcher.Resolver {
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
	return &fetcher.Resolver{
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout:    timeout,
			MaxRetries: cfg.Fetch.MaxRetries,
			RatePerSec: cfg.Fetch.RatePerSec,
			Burst:      cfg.Fetch.Burst,
		}),
		FTP:     fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
		TempDir: cfg.Fetch.TempDir,
	}
}

// initPipeline validates the config and wires the store, resolver and the
// optional PostGIS sink into a Pipeline.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	env := &pipelineEnv{Store: st, closers: []func(){func() { _ = st.Close() }}}

	var sink pipeline.HexSink
	if cfg.Output.PostGIS {
		pool, closePool, err := postgisPool(ctx, st)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.closers = append(env.closers, closePool)
		w := db.NewHexWriter(pool)
		if err := w.Migrate(ctx); err != nil {
			env.Close()
			return nil, eris.Wrap(err, "migrate postgis")
		}
		sink = w
	}

	env.Pipeline = pipeline.New(cfg, st, initResolver(), sink)
	return env, nil
}

// postgisPool reuses the store's pool when it points at the same database.
func postgisPool(ctx context.Context, st store.Store) (db.Pool, func(), error) {
	url := cfg.PostGISURL()
	if pg, ok := st.(*store.PostgresStore); ok && url == cfg.Store.DatabaseURL {
		return pg.Pool(), func() {}, nil
	}
	pool, err := db.Connect(ctx, url)
	if err != nil {
		return nil, nil, eris.Wrap(err, "postgis: connect")
	}
	zap.L().Info("connected to postgis")
	return pool, pool.Close, nil
}
