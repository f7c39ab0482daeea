package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives a freshly loaded and validated configuration.
type ReloadFunc func(*Config)

// ErrorFunc receives load failures; the previous configuration stays active.
type ErrorFunc func(error)

// Watcher reloads the config file on change. fsnotify watches the parent
// directory so editors that replace the file atomically are seen.
type Watcher struct {
	loader   *Loader
	fileName string
	dirPath  string
	debounce time.Duration
	onReload ReloadFunc
	onError  ErrorFunc

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	running bool
	done    chan struct{}
}

func NewWatcher(loader *Loader, onReload ReloadFunc, onError ErrorFunc) (*Watcher, error) {
	if loader == nil || onReload == nil {
		return nil, fmt.Errorf("loader and reload callback are required")
	}
	abs, err := filepath.Abs(loader.Path())
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return &Watcher{
		loader:   loader,
		fileName: filepath.Base(abs),
		dirPath:  filepath.Dir(abs),
		debounce: 200 * time.Millisecond,
		onReload: onReload,
		onError:  onError,
	}, nil
}

// Start begins watching until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("config watcher already running")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(w.dirPath); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.dirPath, err)
	}

	w.watcher = fw
	w.running = true
	w.done = make(chan struct{})
	go w.loop(ctx, fw, w.done)
	return nil
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	fw, done := w.watcher, w.done
	w.mu.Unlock()

	fw.Close()
	<-done
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fw.Close()
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.fileName {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

func (w *Watcher) reload() {
	res, err := w.loader.Load()
	if err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	w.onReload(res.Config)
}
