// Package hydration turns flat, joined SQL result rows into graphs of related
// entities with one instance per identity.
//
// A Hydrator is long-lived and safe for concurrent use; it caches class
// metadata across runs. Each call to HydrateAll (or NewRun) owns a Run that
// holds every piece of per-run state and is discarded afterwards.
package hydration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rowgraph/internal/logging"
	"rowgraph/internal/mapping"
	"rowgraph/internal/metadata"
	"rowgraph/internal/observability"
)

// Hints adjust the behavior of a run.
type Hints struct {
	// PartialObjects skips initialization of associations that are not fetch-joined.
	PartialObjects bool
	// Refresh overwrites fields of entities already managed by the unit of work.
	Refresh bool
	// DeferEagerLoads runs eager association loads after the last row instead
	// of inside the row loop.
	DeferEagerLoads bool
}

// Hydrator builds entity graphs from result rows.
type Hydrator struct {
	registry metadata.Registry
	uow      UnitOfWork
	proxies  ProxyFactory
	loader   EagerLoader
	logger   *slog.Logger
	metrics  *observability.HydrationMetrics

	mu      sync.RWMutex
	classes map[string]*metadata.ClassMetadata
}

// Option configures a Hydrator.
type Option func(*Hydrator)

// WithProxyFactory replaces the default ReferenceFactory.
func WithProxyFactory(factory ProxyFactory) Option {
	return func(h *Hydrator) { h.proxies = factory }
}

// WithEagerLoader sets the loader used for eager associations. Without a
// loader eager associations are treated as lazy.
func WithEagerLoader(loader EagerLoader) Option {
	return func(h *Hydrator) { h.loader = loader }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hydrator) { h.logger = logger }
}

// WithMetrics records run metrics.
func WithMetrics(metrics *observability.HydrationMetrics) Option {
	return func(h *Hydrator) { h.metrics = metrics }
}

// New creates a Hydrator reading class metadata from registry and managing
// instances through uow.
func New(registry metadata.Registry, uow UnitOfWork, opts ...Option) *Hydrator {
	h := &Hydrator{
		registry: registry,
		uow:      uow,
		proxies:  ReferenceFactory{},
		logger:   slog.Default(),
		classes:  make(map[string]*metadata.ClassMetadata),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// classMetadata returns cached class metadata, consulting the registry once per class.
func (h *Hydrator) classMetadata(name string) (*metadata.ClassMetadata, error) {
	h.mu.RLock()
	class, ok := h.classes[name]
	h.mu.RUnlock()
	if ok {
		return class, nil
	}

	class, err := h.registry.ClassMetadata(name)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.classes[name] = class
	h.mu.Unlock()
	return class, nil
}

// HydrateAll consumes cursor and returns the hydrated result. Hydration
// errors abort the run and return no result. If ctx is cancelled the partial
// result built so far is returned together with the context error.
func (h *Hydrator) HydrateAll(ctx context.Context, cursor Cursor, rsm *mapping.ResultSetMapping, hints Hints) (*Result, error) {
	runID := logging.GetRunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx, span := startSpan(ctx, "hydration.run",
		attribute.String("hydration.run_id", runID),
		attribute.String("hydration.root_aliases", strings.Join(rsm.RootAliases(), ",")),
	)
	defer span.End()

	start := time.Now()
	logger := h.logger.With(slog.String("run_id", runID))

	run, err := h.NewRun(ctx, rsm, hints)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	for {
		row, ok, err := cursor.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				h.finishRun(ctx, run, start, logger, err)
				return run.Result(), err
			}
			err = fmt.Errorf("failed to fetch row: %w", err)
			h.finishRun(ctx, run, start, logger, err)
			recordSpanError(span, err)
			return nil, err
		}
		if !ok {
			break
		}
		if err := run.HydrateRow(ctx, row); err != nil {
			h.finishRun(ctx, run, start, logger, err)
			recordSpanError(span, err)
			return nil, err
		}
	}

	result, err := run.Finish(ctx)
	h.finishRun(ctx, run, start, logger, err)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("hydration.rows", run.stats.Rows),
		attribute.Int("hydration.results", result.Len()),
	)
	return result, nil
}

func (h *Hydrator) finishRun(ctx context.Context, run *Run, start time.Time, logger *slog.Logger, err error) {
	duration := time.Since(start)
	if h.metrics != nil {
		h.metrics.RecordRun(ctx, run.rootClass(), duration, run.stats, err == nil)
	}
	if err != nil {
		logger.Warn("hydration run aborted",
			slog.Int64("rows", run.stats.Rows),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("hydration run finished",
		slog.Int64("rows", run.stats.Rows),
		slog.Int64("entities", run.stats.Entities),
		slog.Int64("collections", run.stats.Collections),
		slog.Duration("duration", duration),
	)
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("rowgraph/hydration")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
