// Package watch re-runs an action whenever files under a directory tree
// change, coalescing bursts of filesystem events.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/yaklabco/buildhook/internal/log"
)

// Action is run once at start and again after each settled burst of changes.
type Action func(ctx context.Context) error

// Watcher watches a directory tree recursively.
type Watcher struct {
	root     string
	debounce time.Duration
	ignored  func(rel string) bool
	action   Action
}

// New returns a Watcher on root. ignored receives slash-separated paths
// relative to root and may be nil.
func New(root string, debounce time.Duration, ignored func(rel string) bool, action Action) *Watcher {
	return &Watcher{
		root:     root,
		debounce: debounce,
		ignored:  ignored,
		action:   action,
	}
}

func (w *Watcher) isIgnored(path string) bool {
	if w.ignored == nil {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	return w.ignored(filepath.ToSlash(rel))
}

// addTree registers dir and every non-ignored directory below it.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.isIgnored(path) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) runAction(ctx context.Context) {
	if err := w.action(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "watch action failed", slog.Any(log.Error, err))
	}
}

// Run runs the action, then watches until ctx is cancelled. Action errors
// are logged and watching continues.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("watching %s: %w", w.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watching %s: not a directory", w.root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addTree(fsw, w.root); err != nil {
		return fmt.Errorf("watching %s: %w", w.root, err)
	}

	w.runAction(ctx)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ctx, fsw, event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case werr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "watcher error", slog.Any(log.Error, werr))

		case <-fire:
			fire = nil
			w.runAction(ctx)
		}
	}
}

// relevant filters events and starts watching newly created directories.
func (w *Watcher) relevant(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	if w.isIgnored(event.Name) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fsw, event.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.WarnContext(ctx, "cannot watch new directory",
					slog.String(log.Path, event.Name), slog.Any(log.Error, err))
			}
		}
	}

	slog.DebugContext(ctx, "data changed",
		slog.String(log.Path, event.Name),
		slog.String(log.Event, event.Op.String()),
	)
	return true
}
