package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HydrationMetrics holds metrics for hydration runs.
type HydrationMetrics struct {
	runCounter        metric.Int64Counter
	errorCounter      metric.Int64Counter
	rowCounter        metric.Int64Counter
	entityCounter     metric.Int64Counter
	collectionCounter metric.Int64Counter
	eagerLoadCounter  metric.Int64Counter
	durationHist      metric.Float64Histogram
}

// RunStats summarizes one hydration run.
type RunStats struct {
	Rows        int64
	Entities    int64
	Collections int64
}

// InitHydrationMetrics initializes hydration metrics on the global meter provider.
func InitHydrationMetrics() (*HydrationMetrics, error) {
	meter := otel.Meter("rowgraph")

	runCounter, err := meter.Int64Counter(
		"hydration.runs.total",
		metric.WithDescription("Total number of hydration runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hydration run counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"hydration.errors.total",
		metric.WithDescription("Total number of aborted hydration runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hydration error counter: %w", err)
	}

	rowCounter, err := meter.Int64Counter(
		"hydration.rows.total",
		metric.WithDescription("Total number of result rows consumed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hydration row counter: %w", err)
	}

	entityCounter, err := meter.Int64Counter(
		"hydration.entities.created",
		metric.WithDescription("Total number of entity instances constructed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hydration entity counter: %w", err)
	}

	collectionCounter, err := meter.Int64Counter(
		"hydration.collections.snapshotted",
		metric.WithDescription("Total number of collections snapshotted at run end"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hydration collection counter: %w", err)
	}

	eagerLoadCounter, err := meter.Int64Counter(
		"hydration.eager_loads.total",
		metric.WithDescription("Total number of eager association loads"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hydration eager load counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"hydration.run.duration",
		metric.WithDescription("Duration of hydration runs in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hydration duration histogram: %w", err)
	}

	return &HydrationMetrics{
		runCounter:        runCounter,
		errorCounter:      errorCounter,
		rowCounter:        rowCounter,
		entityCounter:     entityCounter,
		collectionCounter: collectionCounter,
		eagerLoadCounter:  eagerLoadCounter,
		durationHist:      durationHist,
	}, nil
}

// RecordRun records a finished or aborted hydration run.
func (m *HydrationMetrics) RecordRun(ctx context.Context, rootClass string, duration time.Duration, stats RunStats, success bool) {
	attrs := metric.WithAttributes(
		attribute.String("root_class", rootClass),
		attribute.Bool("success", success),
	)
	m.runCounter.Add(ctx, 1, attrs)
	m.rowCounter.Add(ctx, stats.Rows, attrs)
	m.entityCounter.Add(ctx, stats.Entities, attrs)
	m.collectionCounter.Add(ctx, stats.Collections, attrs)
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), attrs)
	if !success {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("root_class", rootClass)))
	}
}

// RecordEagerLoad records one eager association load.
func (m *HydrationMetrics) RecordEagerLoad(ctx context.Context, kind string) {
	m.eagerLoadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
