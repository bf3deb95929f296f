// Package watcher follows file changes under the roots of file datasources
// and reports them to the index manager once a debounce window closes.
package watcher

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
)

// Operation is the kind of a file event.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a change of one file.
type FileEvent struct {
	// Path is absolute.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a batch is emitted.
	Debounce time.Duration
	// EventBufferSize bounds the batches waiting to be consumed.
	EventBufferSize int
	// SkipDir reports directories that are not watched. Nil watches all.
	SkipDir func(path string) bool
	Logger  *slog.Logger
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:        500 * time.Millisecond,
		EventBufferSize: 100,
	}
}

// WithDefaults fills in zero values.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Watcher watches directory trees recursively with fsnotify.
type Watcher struct {
	fs        *fsnotify.Watcher
	debouncer *Debouncer
	opts      Options
	logger    *slog.Logger

	events chan []FileEvent
	errors chan error
	stopCh chan struct{}

	mu      sync.Mutex
	roots   []string
	stopped bool
}

// New creates a watcher. Roots are added with Add.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{
		fs:        fsw,
		debouncer: NewDebouncer(opts.Debounce, opts.Logger),
		opts:      opts,
		logger:    opts.Logger,
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}, nil
}

// Add watches root and every directory below it.
func (w *Watcher) Add(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root, err)
	}
	if err := w.addRecursive(abs); err != nil {
		return fmt.Errorf("watch %s: %w", abs, err)
	}
	w.mu.Lock()
	w.roots = append(w.roots, abs)
	w.mu.Unlock()
	return nil
}

// Roots returns the watched roots.
func (w *Watcher) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.opts.SkipDir != nil && w.opts.SkipDir(path) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// Run forwards events until ctx is cancelled or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	go w.forward(ctx)
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}
	now := time.Now()

	switch {
	case ev.Op&fsnotify.Create != 0:
		if isDir {
			w.created(ev.Name, now)
			return
		}
		w.debouncer.Add(FileEvent{Path: ev.Name, Operation: OpCreate, Timestamp: now})
	case ev.Op&fsnotify.Write != 0:
		if !isDir {
			w.debouncer.Add(FileEvent{Path: ev.Name, Operation: OpModify, Timestamp: now})
		}
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A renamed file shows up again as a create on its new path.
		w.debouncer.Add(FileEvent{Path: ev.Name, Operation: OpDelete, Timestamp: now})
	}
}

// created watches a new directory and reports the files already in it,
// which happens when a directory is moved into a watched tree.
func (w *Watcher) created(dir string, now time.Time) {
	if w.opts.SkipDir != nil && w.opts.SkipDir(dir) {
		return
	}
	if err := w.addRecursive(dir); err != nil {
		w.emitError(err)
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && w.opts.SkipDir != nil && w.opts.SkipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		w.debouncer.Add(FileEvent{Path: path, Operation: OpCreate, Timestamp: now})
		return nil
	})
}

func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emit(batch)
		}
	}
}

func (w *Watcher) emit(batch []FileEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.events <- batch:
	default:
		w.logger.Warn("watch_batch_dropped", slog.Int("events", len(batch)))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Events returns debounced event batches. It is closed by Stop.
func (w *Watcher) Events() <-chan []FileEvent { return w.events }

// Errors returns non-fatal watcher errors. It is closed by Stop.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Stop releases the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	err := w.fs.Close()
	close(w.events)
	close(w.errors)
	return err
}
