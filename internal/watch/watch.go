// Package watch reruns work when query source files change.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/logging"
	"github.com/hpungsan/qlib/internal/source"
)

// DefaultDebounce is the quiet period after the last event before a batch fires.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc receives the sorted, de-duplicated paths that changed in a batch.
type ChangeFunc func(ctx context.Context, changed []string)

// Watcher watches every source directory under a repository root.
type Watcher struct {
	root     string
	libDir   string
	debounce time.Duration
	fsw      *fsnotify.Watcher
}

// New creates a watcher over the sources discovered under root. The library
// directory is never watched.
func New(root, libDir string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	sources, err := source.Discover(root, libDir)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	w := &Watcher{root: root, libDir: libDir, debounce: debounce, fsw: fsw}

	for _, src := range sources {
		if err := w.addTree(src.Path); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Watched returns the directories currently being watched.
func (w *Watcher) Watched() []string {
	list := w.fsw.WatchList()
	sort.Strings(list)
	return list
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return errors.NewInternal(err)
		}
		return nil
	})
}

// Run delivers debounced batches of changed query files to fn until ctx is
// done. It closes the underlying watcher before returning.
func (w *Watcher) Run(ctx context.Context, fn ChangeFunc) error {
	defer w.fsw.Close()
	logger := logging.L()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			logger.Debug("source changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			fn(ctx, changed)
		}
	}
}

// relevant reports whether an event should trigger a rerun. New directories
// are added to the watch set and count as a change.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				logging.L().Warn("watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
			return true
		}
	}
	switch strings.ToLower(filepath.Ext(event.Name)) {
	case ".sql", ".yml", ".yaml", ".json", ".conf":
		return true
	}
	return false
}
