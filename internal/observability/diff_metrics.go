package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DiffMetrics holds metrics for schema diff runs.
type DiffMetrics struct {
	runCounter      metric.Int64Counter
	errorCounter    metric.Int64Counter
	changeCounter   metric.Int64Counter
	durationHist    metric.Float64Histogram
	lastSuccessUnix atomic.Int64
}

// InitDiffMetrics initializes schema diff metrics.
func InitDiffMetrics(logger *slog.Logger) (*DiffMetrics, error) {
	meter := otel.Meter("rowgraph")

	runCounter, err := meter.Int64Counter(
		"schema.diff.total",
		metric.WithDescription("Total number of schema diff runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema diff counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"schema.diff.errors.total",
		metric.WithDescription("Total number of failed schema diff runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema diff error counter: %w", err)
	}

	changeCounter, err := meter.Int64Counter(
		"schema.diff.changes.total",
		metric.WithDescription("Total number of schema changes found, by category"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema diff change counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"schema.diff.duration",
		metric.WithDescription("Duration of schema diff runs in milliseconds, including snapshot loading"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema diff duration histogram: %w", err)
	}

	lastSuccessGauge, err := meter.Int64ObservableGauge(
		"schema.diff.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful schema diff"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema diff last success gauge: %w", err)
	}

	metrics := &DiffMetrics{
		runCounter:    runCounter,
		errorCounter:  errorCounter,
		changeCounter: changeCounter,
		durationHist:  durationHist,
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			value := metrics.lastSuccessUnix.Load()
			if value > 0 {
				observer.ObserveInt64(lastSuccessGauge, value)
			}
			return nil
		},
		lastSuccessGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register schema diff gauge callback: %w", err)
	}

	logger.Debug("schema diff metrics initialized")
	return metrics, nil
}

// RecordDiff records a schema diff run. changes holds the number of entries
// per change category and is ignored for failed runs.
func (m *DiffMetrics) RecordDiff(ctx context.Context, duration time.Duration, success bool, trigger string, changes map[string]int) {
	attrs := []attribute.KeyValue{
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
	}

	m.runCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if !success {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
		return
	}

	for category, n := range changes {
		if n == 0 {
			continue
		}
		m.changeCounter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("category", category)))
	}
	m.lastSuccessUnix.Store(time.Now().Unix())
}
