// Package notify turns file system changes to the store file into "refetch"
// signals, so edits made by another process (or by hand) reach open views.
package notify

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "dayline/internal/log"
	"dayline/internal/model"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher watches a single file. The parent directory is watched rather
// than the file itself because atomic writes replace the inode.
type Watcher struct {
	path     string
	debounce time.Duration

	fsWatcher *fsnotify.Watcher
	events    chan model.Change
	done      chan struct{}
	stopOnce  sync.Once

	timerMu sync.Mutex
	timer   *time.Timer
}

// New creates a watcher for path. Call Start to begin delivering events.
func New(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:      abs,
		debounce:  defaultDebounce,
		fsWatcher: fsw,
		events:    make(chan model.Change, 16),
		done:      make(chan struct{}),
	}, nil
}

// Events returns the channel of change signals. It is never closed; select
// on your own context alongside it.
func (w *Watcher) Events() <-chan model.Change {
	return w.events
}

// Start begins watching the file's directory.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	appLog.Info("notify: watching", "path", w.path)
	go w.loop()
	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsWatcher.Close()
		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timerMu.Unlock()
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			appLog.Error("notify: watcher error", err, "path", w.path)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	// Rename covers temp-file + rename writes landing on the target.
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	if filepath.Clean(ev.Name) != w.path {
		return
	}
	appLog.Debug("notify: fsnotify", "op", ev.Op.String(), "name", ev.Name)

	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	select {
	case <-w.done:
		return
	default:
	}
	select {
	case w.events <- model.Change{Op: model.OpExternal}:
	default:
		// A signal is already pending; one is enough to trigger a refetch.
	}
}
