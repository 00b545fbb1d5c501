package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ariaworks/aria/internal/storage"
)

const watchDebounce = 250 * time.Millisecond

// WatchCatalog watches the catalog source files named by cfg and re-runs
// Sync (never forced — an app_managed row in the database always wins over
// a concurrent file edit, per spec.md §4.2) on every write. It blocks until
// ctx is cancelled. Grounded on the teacher's skills.Manager.watchLoop
// debounce-then-refresh shape.
func WatchCatalog(ctx context.Context, stores storage.StoreSet, cfg CatalogConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	for _, path := range []string{cfg.AgentsPath, cfg.ModelsPath} {
		if path == "" {
			continue
		}
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			logger.Warn("catalog watch: failed to watch directory", "path", path, "error", err)
		}
	}

	var timer *time.Timer
	scheduleSync := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			agents, models, err := Sync(context.Background(), stores, cfg, false)
			if err != nil {
				logger.Warn("catalog watch: sync failed", "error", err)
				return
			}
			logger.Info("catalog watch: re-synced",
				"agents_inserted", agents.Inserted, "agents_updated", agents.Updated, "agents_skipped", agents.Skipped,
				"models_inserted", models.Inserted, "models_updated", models.Updated, "models_skipped", models.Skipped,
			)
		})
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if isCatalogWrite(event, cfg) {
				scheduleSync()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("catalog watch: error", "error", err)
		}
	}
}

func isCatalogWrite(event fsnotify.Event, cfg CatalogConfig) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	return event.Name == cfg.AgentsPath || event.Name == cfg.ModelsPath
}
