package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a config file when it changes. Writes are debounced, and
// the parent directory is watched so editors that replace the file by
// rename are picked up too.
type Watcher struct {
	path     string
	onReload func(Config, error)
	debounce time.Duration
	log      zerolog.Logger

	fw      *fsnotify.Watcher
	mu      sync.RWMutex
	current Config
	reloads atomic.Uint32
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher loads path and starts watching it. onReload receives every
// successfully finalized config, or the error of a failed reload.
func NewWatcher(path string, log zerolog.Logger, onReload func(Config, error)) (*Watcher, error) {
	return newWatcher(path, log, onReload, defaultDebounce)
}

func newWatcher(path string, log zerolog.Logger, onReload func(Config, error), debounce time.Duration) (*Watcher, error) {
	cfg, err := loadFinal(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	if onReload == nil {
		onReload = func(Config, error) {}
	}
	w := &Watcher{path: abs, onReload: onReload, debounce: debounce, log: log, fw: fw, current: cfg, done: make(chan struct{})}
	w.wg.Add(1)
	go w.watch()
	return w, nil
}

func loadFinal(path string) (Config, error) {
	cfg, err := Prepare(path)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Finalize()
}

func (w *Watcher) watch() {
	defer w.wg.Done()
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	count := w.reloads.Add(1)
	cfg, err := loadFinal(w.path)
	if err != nil {
		w.log.Error().Err(err).Str("path", w.path).Msg("config reload failed")
		w.onReload(Config{}, err)
		return
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	w.log.Info().Str("path", w.path).Uint32("count", count).Msg("config reloaded")
	w.onReload(cfg, nil)
}

// Snapshot returns the last successfully loaded config.
func (w *Watcher) Snapshot() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// ReloadCount returns the number of reload attempts.
func (w *Watcher) ReloadCount() uint32 { return w.reloads.Load() }

// Close stops watching.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	err := w.fw.Close()
	w.wg.Wait()
	return err
}
