package watcher

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cyfung/portfolio-helper-sub000/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watcher observes a single file for create/modify events and invokes
// the registered callbacks once per settled change. Bursts of events
// closer together than the debounce window collapse into one invocation,
// fired after the window elapses following the last event.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   logger.Logger

	mu        sync.Mutex
	callbacks []func() error
	started   bool

	fsw      *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

func New(path string, debounce time.Duration, logger logger.Logger) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (w *Watcher) Path() string {
	return w.path
}

// OnChange registers a callback. Callbacks run in registration order;
// a failing callback is logged and does not stop the others.
func (w *Watcher) OnChange(fn func() error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start registers the filesystem watch and begins the debounce loop.
// The watch is set on the parent directory so delete+recreate of the
// file keeps being observed. Idempotent per instance.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: can't create fs watcher", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("%w: can't watch %s", err, filepath.Dir(w.path))
	}

	w.fsw = fsw
	w.started = true
	go w.run()

	return nil
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.fsw != nil {
			if err := w.fsw.Close(); err != nil {
				w.logger.Errorf("%s: can't close fs watcher for %s", err, w.path)
			}
		}
	})
}

func (w *Watcher) run() {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			// last-write-wins: every new event pushes the trigger out
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("%s: watch error for %s", err, w.path)
		case <-fire:
			timer = nil
			fire = nil
			w.invoke()
		}
	}
}

func (w *Watcher) invoke() {
	w.mu.Lock()
	callbacks := slices.Clone(w.callbacks)
	w.mu.Unlock()

	for _, fn := range callbacks {
		if err := fn(); err != nil {
			w.logger.Errorf("%s: change callback failed for %s", err, w.path)
		}
	}
}
