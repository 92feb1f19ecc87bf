package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// defaultPollInterval is how often the watcher re-examines the config file.
const defaultPollInterval = 5 * time.Second

// fileStamp identifies one observed state of the config file. The mtime
// short-circuits polling; the content hash decides whether anything
// actually changed.
type fileStamp struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher polls a config file and reports content changes through a
// callback. Polling works on every filesystem and needs no dependencies;
// an assistant config changes rarely enough that a few seconds of latency
// does not matter.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	seen    fileStamp

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides the default 5s polling interval.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it in the background. The
// initial load must succeed; later loads that fail to read, parse or
// validate are logged and the previous config stays current.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultPollInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.seen = stamp

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) run() {
	tick := time.NewTicker(w.interval)
	defer tick.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-tick.C:
			if old, next, changed := w.refresh(); changed && w.onChange != nil {
				w.onChange(old, next)
			}
		}
	}
}

// refresh re-examines the file and swaps in a new config when the content
// changed and still validates. The callback decision is returned rather
// than invoked so it runs outside the lock and may call Current.
func (w *Watcher) refresh() (old, next *Config, changed bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: stat failed", "path", w.path, "err", err)
		return nil, nil, false
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.seen.mtime)
	w.mu.Unlock()
	if unchanged {
		return nil, nil, false
	}

	cfg, stamp, err := w.load()
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return nil, nil, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if stamp.sum == w.seen.sum {
		// Touched without a content change.
		w.seen.mtime = stamp.mtime
		return nil, nil, false
	}

	old = w.current
	w.current = cfg
	w.seen = stamp
	slog.Info("config watcher: configuration reloaded", "path", w.path)
	return old, cfg, true
}

// load reads, parses and validates the config file, returning the config
// together with the stamp it was read at. Stat goes through the open
// handle so the mtime belongs to the bytes that were actually read.
func (w *Watcher) load() (*Config, fileStamp, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fileStamp{}, err
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
