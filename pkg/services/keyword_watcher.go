package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/menkyo-prep/sign-engine/pkg/logging"
)

// seedDebounce coalesces the burst of events editors emit for one save.
const seedDebounce = 250 * time.Millisecond

// KeywordSeedWatcher re-imports the keyword seed file when it changes.
type KeywordSeedWatcher struct {
	keywords KeywordService
	path     string
	debounce time.Duration
	logger   *zap.Logger

	// reloaded is signalled after each import attempt. Used by tests.
	reloaded chan error
}

// NewKeywordSeedWatcher creates a watcher for the seed file at path.
func NewKeywordSeedWatcher(keywords KeywordService, path string, logger *zap.Logger) *KeywordSeedWatcher {
	return &KeywordSeedWatcher{
		keywords: keywords,
		path:     path,
		debounce: seedDebounce,
		logger:   logger.Named("keyword-watcher"),
	}
}

// Run blocks until ctx is cancelled. The parent directory is watched
// rather than the file so atomic rename-on-save is still observed.
// A failed import is logged and the previous keyword map stays in place.
func (w *KeywordSeedWatcher) Run(ctx context.Context) error {
	absPath, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("failed to resolve seed path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	w.logger.Info("Watching keyword seed file", zap.String("path", absPath))

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() { w.reload(ctx, absPath) })
			mu.Unlock()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}

func (w *KeywordSeedWatcher) reload(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	n, err := w.keywords.ImportFile(ctx, path)
	if err != nil {
		w.logger.Error("Failed to reload keyword seed",
			zap.String("path", path),
			zap.String("error", logging.SanitizeError(err)))
	} else {
		w.logger.Info("Reloaded keyword seed", zap.Int("entries", n))
	}
	if w.reloaded != nil {
		select {
		case w.reloaded <- err:
		default:
		}
	}
}
