// Package configwatch implements the File Watcher & Debouncer: it watches
// the JSON configuration path (file or directory) and, once writes go
// quiescent for a debounce window, parses the file and hands the result to
// the Config Aggregator. Grounded on the teacher's internal/config/watcher.go
// (fsnotify + time.AfterFunc debounce + directory watch for atomic writes).
package configwatch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gateway/internal/jsonconfig"
)

// Config configures the watcher's timing, grounded on spec.md §6's
// environment settings (watch-timeout, watch-interval).
type Config struct {
	Path string // file or directory

	DebounceTimeout time.Duration // default 300ms
	PollInterval    time.Duration // default 200ms; 0 disables the polling fallback

	OnChange func(*jsonconfig.Document)
	OnError  func(error) // parse errors: the previous snapshot stays in place
}

func (c *Config) setDefaults() {
	if c.DebounceTimeout <= 0 {
		c.DebounceTimeout = 300 * time.Millisecond
	}
	if c.PollInterval < 0 {
		c.PollInterval = 0
	}
}

// Watcher owns the fsnotify subscription and the optional polling fallback.
type Watcher struct {
	cfg     Config
	logger  *slog.Logger
	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	debounce *time.Timer
	stopCh  chan struct{}
	wg      sync.WaitGroup
	lastModTime time.Time
}

// New creates a Watcher and starts its fsnotify subscription; it does not
// begin watching until Start is called.
func New(cfg Config, logger *slog.Logger) (*Watcher, error) {
	cfg.setDefaults()

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("configwatch: resolve path: %w", err)
	}
	cfg.Path = absPath

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("configwatch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:    cfg,
		logger: logger.With("component", "config-watcher"),
		fsw:    fsw,
		stopCh: make(chan struct{}),
	}

	if err := fsw.Add(absPath); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("configwatch: watch %s: %w", absPath, err)
	}
	// Editors that write atomically (rename into place) only emit events on
	// the containing directory, so watch it too; failure here is non-fatal.
	if dir := filepath.Dir(absPath); dir != absPath {
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("failed to watch config directory", "dir", dir, "error", err)
		}
	}

	return w, nil
}

// Start begins watching for changes and performs an initial parse.
func (w *Watcher) Start() {
	w.reload()

	w.wg.Add(1)
	go w.fsLoop()

	if w.cfg.PollInterval > 0 {
		w.wg.Add(1)
		go w.pollLoop()
	}

	w.logger.Info("configuration watcher started", "path", w.cfg.Path)
}

// Stop halts the watcher and releases its file descriptors.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	w.wg.Wait()

	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()

	return w.fsw.Close()
}

func (w *Watcher) fsLoop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name != w.cfg.Path {
				continue
			}
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				w.scheduleReload()
			case event.Op&fsnotify.Remove != 0:
				w.logger.Warn("config path removed", "path", event.Name)
				w.fsw.Add(event.Name)
			case event.Op&fsnotify.Rename != 0:
				w.fsw.Add(w.cfg.Path)
				w.scheduleReload()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.cfg.OnError != nil {
				w.cfg.OnError(fmt.Errorf("configwatch: fsnotify error: %w", err))
			}
		case <-w.stopCh:
			return
		}
	}
}

// pollLoop is the polling fallback for platforms where native change
// notifications are unreliable: a ticker-driven stat-and-compare loop.
func (w *Watcher) pollLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			info, err := os.Stat(w.cfg.Path)
			if err != nil {
				continue
			}
			if info.ModTime().After(w.lastModTime) {
				w.scheduleReload()
			}
		case <-w.stopCh:
			return
		}
	}
}

// scheduleReload restarts the debounce timer; the file is parsed once it
// expires quiescent.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.cfg.DebounceTimeout, w.reload)
}

func (w *Watcher) reload() {
	f, err := os.Open(w.cfg.Path)
	if err != nil {
		if w.cfg.OnError != nil {
			w.cfg.OnError(fmt.Errorf("configwatch: open %s: %w", w.cfg.Path, err))
		}
		return
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil {
		w.lastModTime = info.ModTime()
	}

	doc, err := jsonconfig.Parse(f)
	if err != nil {
		if w.cfg.OnError != nil {
			w.cfg.OnError(fmt.Errorf("configwatch: parse %s: %w", w.cfg.Path, err))
		}
		return
	}

	if w.cfg.OnChange != nil {
		w.cfg.OnChange(&doc)
	}
}
