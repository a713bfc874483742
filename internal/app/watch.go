package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"rowgraph/internal/config"
	"rowgraph/internal/schemadiff"
)

const defaultWatchDebounce = 250 * time.Millisecond

// watchTarget is one watched location. Files are watched through their
// directory so editors that replace files on save keep triggering.
type watchTarget struct {
	dir  string
	file string // empty for a directory location
}

func (t watchTarget) matches(name string) bool {
	name = filepath.Clean(name)
	if t.file != "" {
		return name == t.file
	}
	if filepath.Dir(name) != t.dir {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func watchTargets(locations ...string) ([]watchTarget, error) {
	var targets []watchTarget
	for _, location := range locations {
		if !config.IsLocalLocation(location) {
			continue
		}
		path := location
		if scheme, rest, ok := strings.Cut(location, "://"); ok && strings.EqualFold(scheme, "file") {
			path = rest
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", location, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to watch %s: %w", location, err)
		}
		if info.IsDir() {
			targets = append(targets, watchTarget{dir: abs})
		} else {
			targets = append(targets, watchTarget{dir: filepath.Dir(abs), file: abs})
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no local schema location to watch")
	}
	return targets, nil
}

// Watch runs the diff once, then again whenever a local schema location
// changes, until ctx is done. Failed re-runs are logged and do not stop the
// watch. Bursts of events within the debounce window cause a single run.
func (a *App) Watch(ctx context.Context) error {
	targets, err := watchTargets(a.cfg.Diff.From, a.cfg.Diff.To)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	added := make(map[string]bool)
	for _, target := range targets {
		if added[target.dir] {
			continue
		}
		if err := watcher.Add(target.dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", target.dir, err)
		}
		added[target.dir] = true
	}

	debounce := a.cfg.Diff.WatchDebounce
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}

	loader := a.schemaLoader()
	a.notify(a.runDiff(ctx, loader, triggerRun))
	a.logger.Info("watching schema locations",
		slog.Int("directories", len(added)),
		slog.Duration("debounce", debounce),
	)

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, targets) {
				continue
			}
			a.logger.Debug("schema location changed",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()),
			)
			fire = time.After(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("file watcher error", slog.String("error", err.Error()))
		case <-fire:
			fire = nil
			a.notify(a.runDiff(ctx, loader, triggerWatch))
		}
	}
}

func relevant(event fsnotify.Event, targets []watchTarget) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	for _, target := range targets {
		if target.matches(event.Name) {
			return true
		}
	}
	return false
}

func (a *App) notify(changes *schemadiff.ChangeSet, err error) {
	if a.onDiff != nil {
		a.onDiff(changes, err)
	}
}
