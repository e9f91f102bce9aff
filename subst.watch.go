package subst

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchConfig holds watcher configuration options.
type WatchConfig struct {
	// Dir is the template directory to watch.
	Dir string

	// Ext is the template file extension.
	// Default: ".tmpl"
	Ext string

	// Debounce is how long the directory must be quiet before a sync.
	// Default: 250ms
	Debounce time.Duration
}

// Watcher keeps a TemplateManager in sync with a template directory. Changed
// template files are re-loaded as new versions and deleted files are removed.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	manager   *TemplateManager
	config    WatchConfig
	logger    *zap.Logger
	onChange  chan []string
	done      chan struct{}
	stopOnce  sync.Once
	stopErr   error
}

// NewWatcher creates a watcher for manager.
func NewWatcher(manager *TemplateManager, config WatchConfig) (*Watcher, error) {
	if config.Ext == "" {
		config.Ext = DefaultTemplateExt
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultWatchDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, NewWatchError(ErrMsgWatcherCreateFailed, config.Dir, err)
	}

	return &Watcher{
		fsWatcher: fsw,
		manager:   manager,
		config:    config,
		logger:    manager.logger,
		onChange:  make(chan []string, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. The returned channel receives the names of the
// templates touched by each debounced sync. It is closed when the watcher
// stops.
func (w *Watcher) Start(ctx context.Context) (<-chan []string, error) {
	if err := w.fsWatcher.Add(w.config.Dir); err != nil {
		return nil, NewWatchError(ErrMsgWatchDirFailed, w.config.Dir, err)
	}

	go w.loop(ctx)

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources. It is safe to call
// more than once and from several goroutines.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
		w.stopErr = w.fsWatcher.Close()
	})
	return w.stopErr
}

// loop processes file system events with debouncing.
func (w *Watcher) loop(ctx context.Context) {
	defer close(w.onChange)

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending = make(map[string]struct{})
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isRelevantEvent(event) {
				continue
			}
			pending[event.Name] = struct{}{}

			if timer == nil {
				timer = time.NewTimer(w.config.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.config.Debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			names := w.sync(ctx, pending)
			pending = make(map[string]struct{})
			if len(names) == 0 {
				continue
			}
			select {
			case w.onChange <- names:
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(LogMsgWatcherSyncFailed, zap.Error(err))

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// sync applies pending paths to the manager and returns the affected names
// in sorted order.
func (w *Watcher) sync(ctx context.Context, pending map[string]struct{}) []string {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var names []string
	for _, path := range paths {
		w.logger.Debug(LogMsgWatcherEvent, zap.String(LogFieldPath, path))

		if _, err := os.Stat(path); os.IsNotExist(err) {
			base := filepath.Base(path)
			name := strings.TrimSuffix(base, filepath.Ext(base))
			if err := w.manager.Remove(ctx, name); err != nil {
				w.logger.Warn(LogMsgWatcherSyncFailed, zap.String(LogFieldPath, path), zap.Error(err))
				continue
			}
			names = append(names, name)
			continue
		}

		name, err := w.manager.LoadFile(ctx, path)
		if err != nil {
			w.logger.Warn(LogMsgWatcherSyncFailed, zap.String(LogFieldPath, path), zap.Error(err))
			continue
		}
		names = append(names, name)
	}
	return names
}

// isRelevantEvent checks if the event touches a template file.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Ext(event.Name) == w.config.Ext
}
