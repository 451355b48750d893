package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// Watcher watches a directory tree and keeps embeddings in sync: changed
// files are re-embedded, removed files are deleted for every model.
type Watcher struct {
	ingester *Ingester
	root     string
	fs       *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time
	settle  time.Duration
}

// NewWatcher creates a watcher over root. A zero debounce defaults to 500ms.
func NewWatcher(ing *Ingester, root string, debounce time.Duration) (*Watcher, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		ingester: ing,
		root:     root,
		fs:       fsw,
		pending:  make(map[string]time.Time),
		settle:   debounce,
	}, nil
}

// Watch starts watching for file changes. It blocks until the context is
// cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.watchTree(w.root); err != nil {
		return err
	}

	slog.Info("watching for file changes", "dir", w.root)

	go w.flushLoop(ctx)

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.noteEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)

		case <-ctx.Done():
			slog.Info("watcher shutting down")
			return w.fs.Close()
		}
	}
}

// watchTree registers dir and every non-excluded directory below it.
func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") && path != w.root {
			return filepath.SkipDir
		}
		relPath, _ := filepath.Rel(w.root, path)
		relPath = filepath.ToSlash(relPath)
		for _, pattern := range w.ingester.exclude {
			if matchGlob(pattern, relPath+"/") {
				return filepath.SkipDir
			}
		}

		if err := w.fs.Add(path); err != nil {
			slog.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// noteEvent records a relevant file change for debounced processing.
func (w *Watcher) noteEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
		return
	}

	path := event.Name

	// New directories join the watch list so files created inside them are
	// seen
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.watchTree(path); err != nil {
				slog.Warn("failed to watch new directory", "path", path, "error", err)
			}
			return
		}
	}

	relPath, err := filepath.Rel(w.root, path)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)

	if !w.ingester.shouldInclude(relPath) {
		return
	}

	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()

	slog.Debug("queued changed file", "uri", relPath, "op", event.Op.String())
}

// flushLoop periodically syncs pending files that have gone quiet for the
// settle interval.
func (w *Watcher) flushLoop(ctx context.Context) {
	interval := w.settle / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			for _, path := range w.takeSettled() {
				if ctx.Err() != nil {
					return
				}
				w.syncFile(ctx, path)
			}
		case <-ctx.Done():
			return
		}
	}
}

// takeSettled removes and returns the paths whose last event is older than
// the settle interval.
func (w *Watcher) takeSettled() []string {
	cutoff := time.Now().Add(-w.settle)

	w.mu.Lock()
	defer w.mu.Unlock()
	var due []string
	for path, last := range w.pending {
		if !last.After(cutoff) {
			due = append(due, path)
			delete(w.pending, path)
		}
	}
	return due
}

// syncFile re-embeds one file, or removes its records when it no longer
// exists.
func (w *Watcher) syncFile(ctx context.Context, path string) {
	relPath, err := filepath.Rel(w.root, path)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		n, delErr := w.ingester.service.DeleteByURI(ctx, relPath)
		if delErr != nil {
			slog.Warn("failed to delete removed file", "uri", relPath, "error", delErr)
			return
		}
		if n > 0 {
			slog.Info("removed embeddings for deleted file", "uri", relPath, "records", n)
		}
		return
	}
	if err != nil {
		slog.Warn("failed to stat file", "file", path, "error", err)
		return
	}
	if info.IsDir() {
		return
	}

	text, ok := w.ingester.readFile(path)
	if !ok {
		return
	}

	batch, err := w.ingester.service.CreateBatch(ctx, types.BatchCreateRequest{
		ModelName: w.ingester.model,
		TaskType:  w.ingester.taskType,
		Texts:     []types.BatchText{{URI: relPath, Text: text}},
	})
	if err != nil {
		slog.Warn("failed to re-embed file", "uri", relPath, "error", err)
		return
	}
	if batch.Failed > 0 {
		slog.Warn("failed to re-embed file", "uri", relPath, "error", batch.Results[0].Error)
		return
	}
	slog.Info("re-embedded changed file", "uri", relPath)
}

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
