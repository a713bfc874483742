// Package app wires configuration, observability and the rowgraph engines
// into the diff and hydrate commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"rowgraph/internal/config"
	"rowgraph/internal/logging"
	"rowgraph/internal/observability"
	"rowgraph/internal/schemadiff"
)

// ErrChangesFound is returned by Diff when the change set is not empty and
// diff.fail_on_changes is set.
var ErrChangesFound = errors.New("schema changes found")

// App owns runtime resources for one command invocation.
type App struct {
	cfg    *config.Config
	logger *logging.Logger
	stdout io.Writer

	loggerProvider *observability.LoggerProvider

	meterProvider    *observability.MeterProvider
	tracerProvider   *observability.TracerProvider
	diffMetrics      *observability.DiffMetrics
	hydrationMetrics *observability.HydrationMetrics

	// onDiff observes every diff run in watch mode.
	onDiff func(*schemadiff.ChangeSet, error)

	cleanup cleanupStack

	stateMu     sync.Mutex
	initialized bool

	shutdownOnce sync.Once
}

// Option configures an App.
type Option func(*App)

// WithOutput sets where results go when no output file is configured.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.stdout = w }
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	a := &App{cfg: cfg, logger: logger, stdout: os.Stdout}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// MeterProvider returns the meter provider, or nil when metrics are disabled.
func (a *App) MeterProvider() *observability.MeterProvider {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.meterProvider
}

// startRun attaches a fresh run ID, and a logger carrying it, to ctx.
func (a *App) startRun(ctx context.Context) context.Context {
	runID := logging.NewRunID()
	ctx = logging.WithRunIDContext(ctx, runID)
	return logging.WithLogger(ctx, a.logger.WithRunID(runID))
}
