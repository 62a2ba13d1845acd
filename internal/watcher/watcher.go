// Package watcher monitors the corpus directory and triggers index
// rebuilds when lesson files change. Rapid edit bursts are debounced so
// one save-heavy editing session causes one rebuild, not dozens.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation is the kind of change observed on a corpus file.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns a human-readable operation name.
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

// FileEvent is one observed corpus file change.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures the corpus watcher.
type Options struct {
	// DebounceWindow is how long to wait for a burst of events to settle
	// before emitting one batch. Default 500ms.
	DebounceWindow time.Duration
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{DebounceWindow: 500 * time.Millisecond}
}

// CorpusWatcher watches a corpus directory tree for YAML file changes.
type CorpusWatcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	errs      chan error
	logger    *slog.Logger
	stopOnce  sync.Once
	done      chan struct{}
}

// NewCorpusWatcher creates a watcher. Start must be called before any
// events flow.
func NewCorpusWatcher(opts Options) (*CorpusWatcher, error) {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultOptions().DebounceWindow
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &CorpusWatcher{
		fsw:       fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		errs:      make(chan error, 16),
		logger:    slog.Default().With(slog.String("component", "watcher")),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching dir and its subdirectories. The watcher runs
// until Stop is called or the context is cancelled.
func (w *CorpusWatcher) Start(ctx context.Context, dir string) error {
	if err := w.addRecursive(dir); err != nil {
		return err
	}

	go w.loop(ctx)

	w.logger.Info("watching corpus", slog.String("dir", dir))
	return nil
}

func (w *CorpusWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *CorpusWatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
				w.logger.Warn("watcher error dropped", slog.String("error", err.Error()))
			}
		}
	}
}

func (w *CorpusWatcher) handle(event fsnotify.Event) {
	// New subdirectories need their own watch before files inside them
	// produce events.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
			return
		}
	}

	if !isCorpusFile(event.Name) {
		return
	}

	var op Operation
	switch {
	case event.Op.Has(fsnotify.Create):
		op = OpCreate
	case event.Op.Has(fsnotify.Write):
		op = OpModify
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}

	w.debouncer.Add(FileEvent{
		Path:      event.Name,
		Operation: op,
		Timestamp: time.Now(),
	})
}

// Batches returns the channel of debounced event batches.
func (w *CorpusWatcher) Batches() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns non-fatal watcher errors.
func (w *CorpusWatcher) Errors() <-chan error {
	return w.errs
}

// Stop stops the watcher. Safe to call multiple times.
func (w *CorpusWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.debouncer.Stop()
		err = w.fsw.Close()
	})
	return err
}

// isCorpusFile reports whether the path is a lesson YAML file.
func isCorpusFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return !strings.HasPrefix(filepath.Base(path), ".")
	}
	return false
}

// RunRebuilds consumes debounced batches and invokes rebuild once per
// batch until the context ends or the watcher stops. Rebuild failures
// are logged and the loop continues; the next change gets another try.
func RunRebuilds(ctx context.Context, w *CorpusWatcher, rebuild func(context.Context) error) {
	logger := slog.Default().With(slog.String("component", "watcher"))
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.Batches():
			if !ok {
				return
			}
			logger.Info("corpus changed, rebuilding index",
				slog.Int("changes", len(batch)))
			if err := rebuild(ctx); err != nil {
				logger.Error("rebuild failed",
					slog.String("error", err.Error()))
			}
		}
	}
}
