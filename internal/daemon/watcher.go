package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/docsdeploy/internal/logfields"
	"git.home.luguber.info/inful/docsdeploy/internal/trigger"
)

// Watcher monitors a local docs tree and synthesizes push events from
// file changes. Rapid edit bursts are debounced into one event carrying
// the accumulated changed paths, which then pass through the regular
// trigger filter.
type Watcher struct {
	root       string // repository working copy root; changed paths are relative to it
	watchDir   string
	debounce   time.Duration
	dispatcher Dispatcher
	branch     string

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// NewWatcher creates a watcher over root/dir. Changed paths are reported
// relative to root so they match the configured trigger globs.
func NewWatcher(root, dir string, debounce time.Duration, dispatcher Dispatcher, branch string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	return &Watcher{
		root:       absRoot,
		watchDir:   filepath.Join(absRoot, filepath.FromSlash(dir)),
		debounce:   debounce,
		dispatcher: dispatcher,
		branch:     branch,
		watcher:    fsw,
		stopChan:   make(chan struct{}),
		pending:    map[string]struct{}{},
	}, nil
}

// Start registers the watch tree and begins the event loop. fsnotify
// watches are per-directory, so the tree is walked and subdirectories
// created later are added as they appear.
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", w.watchDir, err)
	}

	slog.Info("Starting docs watcher",
		logfields.Path(w.watchDir),
		slog.Duration("debounce", w.debounce))
	go w.watchLoop(context.WithoutCancel(ctx))
	return nil
}

// Stop shuts the watcher down. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stopChan) })

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	slog.Info("Stopping docs watcher")
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(runCtx context.Context) {
	for {
		select {
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(runCtx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Docs watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(runCtx context.Context, event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				slog.Warn("Failed to watch new directory", logfields.Path(event.Name), logfields.Error(err))
			}
			return
		}
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	w.record(runCtx, filepath.ToSlash(rel))
}

// record adds one changed path and (re)arms the debounce timer.
func (w *Watcher) record(runCtx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.flush(runCtx) })
}

// flush dispatches the accumulated changes as one synthetic push event.
func (w *Watcher) flush(runCtx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = map[string]struct{}{}
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}

	slog.Info("Docs changes detected",
		logfields.Branch(w.branch),
		slog.Int("changed_files", len(paths)))

	ev := trigger.PushEvent{
		Branch:       w.branch,
		ChangedPaths: paths,
		Source:       trigger.SourceWatch,
		ReceivedAt:   time.Now(),
	}
	if _, err := w.dispatcher.HandleEvent(runCtx, ev); err != nil {
		slog.Error("Watch-triggered run failed", logfields.Error(err))
	}
}
