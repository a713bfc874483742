package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"rowgraph/internal/dbexec"
	"rowgraph/internal/hydration"
	"rowgraph/internal/loader"
	"rowgraph/internal/logging"
	"rowgraph/internal/mapping"
	"rowgraph/internal/metadata"
	"rowgraph/internal/render"
	"rowgraph/internal/sqlutil"
)

// Hydrate runs the configured query, hydrates its rows into an object graph
// and writes the rendered graph.
func (a *App) Hydrate(ctx context.Context) error {
	ctx = a.startRun(ctx)
	if a.cfg.Hydrate.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Hydrate.Timeout)
		defer cancel()
	}

	registry, query, rsm, err := a.loadMappings()
	if err != nil {
		return err
	}

	handle, err := openDatabase(ctx, a.cfg, logging.FromContext(ctx))
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			a.logger.Warn("failed to close database", slog.String("error", err.Error()))
		}
	}()

	return a.hydrate(ctx, dbexec.NewStandardExecutor(handle.DB), handle.Dialect, registry, query, rsm)
}

// loadMappings reads the class mapping documents and the query document.
func (a *App) loadMappings() (*metadata.MemoryRegistry, *mapping.Query, *mapping.ResultSetMapping, error) {
	registry := metadata.NewMemoryRegistry()
	for _, path := range a.cfg.Hydrate.Metadata {
		if err := registry.LoadFile(path); err != nil {
			return nil, nil, nil, err
		}
	}

	query, err := mapping.LoadQueryFile(a.cfg.Hydrate.Query)
	if err != nil {
		return nil, nil, nil, err
	}
	rsm, err := query.Mapping()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", a.cfg.Hydrate.Query, err)
	}
	if err := rsm.Validate(registry); err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", a.cfg.Hydrate.Query, err)
	}
	return registry, query, rsm, nil
}

func (a *App) hydrate(ctx context.Context, executor dbexec.QueryExecutor, dialect sqlutil.Dialect, registry *metadata.MemoryRegistry, query *mapping.Query, rsm *mapping.ResultSetMapping) error {
	logger := logging.FromContext(ctx)

	rows, err := executor.QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		return fmt.Errorf("failed to run query: %w", err)
	}
	cursor, err := hydration.NewSQLCursor(rows)
	if err != nil {
		return err
	}
	defer cursor.Close()

	uow := hydration.NewIdentityMap()
	opts := []hydration.Option{
		hydration.WithLogger(logger.Logger),
		hydration.WithMetrics(a.hydrationMetrics),
	}
	var sqlLoader *loader.SQLLoader
	if a.cfg.Hydrate.EagerLoading {
		sqlLoader = loader.New(executor, registry, dialect, logger.Logger)
		opts = append(opts, hydration.WithEagerLoader(sqlLoader))
	}
	hydrator := hydration.New(registry, uow, opts...)
	if sqlLoader != nil {
		sqlLoader.Attach(hydrator)
	}

	result, err := hydrator.HydrateAll(ctx, cursor, rsm, hydration.Hints{
		PartialObjects:  a.cfg.Hydrate.PartialObjects,
		Refresh:         a.cfg.Hydrate.Refresh,
		DeferEagerLoads: a.cfg.Hydrate.DeferEager,
	})
	if err != nil {
		return err
	}

	tree, err := render.New(registry).Result(result)
	if err != nil {
		return err
	}
	format, err := render.ParseFormat(a.cfg.Hydrate.Format)
	if err != nil {
		return err
	}
	if err := a.writeOutput(a.cfg.Hydrate.Output, func(w io.Writer) error {
		return render.Write(w, tree, format)
	}); err != nil {
		return err
	}

	logger.Info("hydration completed",
		slog.Int("results", result.Len()),
		slog.Int("managed_entities", uow.Len()),
	)
	return nil
}
