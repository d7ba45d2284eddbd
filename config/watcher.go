package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileOp is the kind of change a FileEvent reports.
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
)

func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed file change.
type FileEvent struct {
	Path      string
	Op        FileOp
	Timestamp time.Time
}

// FileWatcher polls configuration files and fires callbacks on change.
// Bursts of writes are debounced into a single event per path.
type FileWatcher struct {
	mu           sync.RWMutex
	paths        []string
	interval     time.Duration
	debounce     time.Duration
	running      bool
	callbacks    []func(FileEvent)
	lastModTimes map[string]time.Time
	events       chan FileEvent
	stop         chan struct{}
	logger       *zap.Logger
}

// WatcherOption configures a FileWatcher.
type WatcherOption func(*FileWatcher)

// WithPollInterval sets the polling cadence, default 1s.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.interval = d }
}

// WithDebounce sets the event debounce window, default 100ms.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.debounce = d }
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) { w.logger = logger }
}

// NewFileWatcher creates a watcher over the given paths. Paths that do not
// exist yet are watched for creation.
func NewFileWatcher(paths []string, opts ...WatcherOption) *FileWatcher {
	w := &FileWatcher{
		paths:        paths,
		interval:     time.Second,
		debounce:     100 * time.Millisecond,
		lastModTimes: make(map[string]time.Time),
		events:       make(chan FileEvent, 16),
		stop:         make(chan struct{}),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnChange registers a callback invoked for each debounced change.
func (w *FileWatcher) OnChange(fn func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start begins polling. It fails when already running. A stopped watcher
// can be started again.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	stop := make(chan struct{})
	w.stop = stop
	w.lastModTimes = make(map[string]time.Time)
	for _, path := range w.paths {
		if info, err := os.Stat(path); err == nil {
			w.lastModTimes[path] = info.ModTime()
		}
	}
	w.mu.Unlock()

	go w.pollLoop(ctx, stop)
	go w.dispatchLoop(ctx, stop)

	w.logger.Info("config watcher started",
		zap.Strings("paths", w.paths),
		zap.Duration("interval", w.interval))
	return nil
}

// Stop halts polling. Safe to call more than once.
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stop)
}

func (w *FileWatcher) pollLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			w.checkFiles()
		}
	}
}

func (w *FileWatcher) checkFiles() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			if _, tracked := w.lastModTimes[path]; tracked && os.IsNotExist(err) {
				delete(w.lastModTimes, path)
				w.emit(FileEvent{Path: path, Op: FileOpRemove, Timestamp: time.Now()})
			}
			continue
		}

		last, tracked := w.lastModTimes[path]
		switch {
		case !tracked:
			w.lastModTimes[path] = info.ModTime()
			w.emit(FileEvent{Path: path, Op: FileOpCreate, Timestamp: time.Now()})
		case info.ModTime().After(last):
			w.lastModTimes[path] = info.ModTime()
			w.emit(FileEvent{Path: path, Op: FileOpWrite, Timestamp: time.Now()})
		}
	}
}

func (w *FileWatcher) emit(event FileEvent) {
	select {
	case w.events <- event:
	default:
		w.logger.Warn("event queue full, dropping change", zap.String("path", event.Path))
	}
}

func (w *FileWatcher) dispatchLoop(ctx context.Context, stop <-chan struct{}) {
	pending := make(map[string]FileEvent)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case event := <-w.events:
			pending[event.Path] = event
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C
		case <-fire:
			w.mu.RLock()
			callbacks := append(([]func(FileEvent))(nil), w.callbacks...)
			w.mu.RUnlock()

			for _, event := range pending {
				w.logger.Debug("config file changed",
					zap.String("path", event.Path),
					zap.Stringer("op", event.Op))
				for _, cb := range callbacks {
					cb(event)
				}
			}
			pending = make(map[string]FileEvent)
			fire = nil
		}
	}
}

// WatchAndReload starts a watcher over the loader's config file and invokes
// onReload with the freshly loaded configuration after each change. Load
// failures keep the previous configuration and are reported to onError,
// which may be nil.
func (l *Loader) WatchAndReload(ctx context.Context, onReload func(*Config), onError func(error), opts ...WatcherOption) (*FileWatcher, error) {
	if l.configPath == "" {
		return nil, fmt.Errorf("no config path to watch")
	}

	w := NewFileWatcher([]string{l.configPath}, opts...)
	w.OnChange(func(event FileEvent) {
		if event.Op == FileOpRemove {
			return
		}
		cfg, err := l.Load()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onReload(cfg)
	})
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
