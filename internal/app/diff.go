package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"rowgraph/internal/logging"
	"rowgraph/internal/schemadiff"
	"rowgraph/internal/schemasource"
)

const (
	triggerRun   = "run"
	triggerWatch = "watch"
)

func (a *App) schemaLoader() *schemasource.Loader {
	return schemasource.NewLoader(schemasource.Config{
		Filter:   a.cfg.Diff.Filters,
		Naming:   a.cfg.Diff.Naming,
		S3:       a.cfg.Diff.S3,
		Database: a.cfg.OpenOptions(),
	}, schemasource.WithLogger(a.logger.Logger))
}

func (a *App) differ() *schemadiff.Differ {
	return schemadiff.New(schemadiff.Options{
		FromPrefix:   a.cfg.Diff.FromPrefix,
		ToPrefix:     a.cfg.Diff.ToPrefix,
		IgnoreTables: a.cfg.Diff.IgnoreTables,
	}, a.logger.Logger)
}

// Diff loads both schema locations, writes their change set and returns it.
// With diff.fail_on_changes set, a non-empty change set is reported as
// ErrChangesFound after it has been written.
func (a *App) Diff(ctx context.Context) (*schemadiff.ChangeSet, error) {
	changes, err := a.runDiff(ctx, a.schemaLoader(), triggerRun)
	if err != nil {
		return nil, err
	}
	if a.cfg.Diff.FailOnChanges && !changes.IsEmpty() {
		return changes, ErrChangesFound
	}
	return changes, nil
}

func (a *App) runDiff(ctx context.Context, loader *schemasource.Loader, trigger string) (*schemadiff.ChangeSet, error) {
	ctx = a.startRun(ctx)
	logger := logging.FromContext(ctx)
	start := time.Now()

	changes, err := a.computeDiff(ctx, loader)
	if err == nil {
		err = a.writeChangeSet(changes)
	}
	duration := time.Since(start)

	if a.diffMetrics != nil {
		var counts map[string]int
		if changes != nil {
			counts = changes.Counts()
		}
		a.diffMetrics.RecordDiff(ctx, duration, err == nil, trigger, counts)
	}
	if err != nil {
		logger.Error("schema diff failed",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	logger.Info("schema diff completed",
		slog.String("trigger", trigger),
		slog.Int("changes", changes.Count()),
		slog.Duration("duration", duration),
	)
	return changes, nil
}

func (a *App) computeDiff(ctx context.Context, loader *schemasource.Loader) (*schemadiff.ChangeSet, error) {
	from, to, err := loader.LoadPair(ctx, a.cfg.Diff.From, a.cfg.Diff.To)
	if err != nil {
		return nil, err
	}
	return a.differ().Diff(ctx, from, to)
}

func (a *App) writeChangeSet(changes *schemadiff.ChangeSet) error {
	format, err := schemadiff.ParseFormat(a.cfg.Diff.Format)
	if err != nil {
		return err
	}
	return a.writeOutput(a.cfg.Diff.Output, func(w io.Writer) error {
		return changes.Encode(w, format)
	})
}

// writeOutput writes to path, or to the app output when path is empty.
func (a *App) writeOutput(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(a.stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
