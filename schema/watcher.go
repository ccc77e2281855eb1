package schema

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Invalidator drops cached state for a source. *CachedLoader implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, source string) error
}

// ChangeOp is the kind of change the watcher observed.
type ChangeOp int

const (
	ChangeCreate ChangeOp = iota
	ChangeWrite
	ChangeRemove
)

func (op ChangeOp) String() string {
	switch op {
	case ChangeCreate:
		return "CREATE"
	case ChangeWrite:
		return "WRITE"
	case ChangeRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// ChangeEvent describes one observed change of a watched document.
type ChangeEvent struct {
	Path      string    `json:"path"`
	Op        ChangeOp  `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

type fileState struct {
	modTime time.Time
	size    int64
}

// =============================================================================
// 👀 Watcher
// =============================================================================

// Watcher polls local schema documents and reports changes after a debounce
// window. Events for the same path inside one window are coalesced.
type Watcher struct {
	mu sync.RWMutex

	paths    []string
	interval time.Duration
	debounce time.Duration

	running bool
	stop    chan struct{}
	done    chan struct{}

	callbacks []func(ChangeEvent)
	states    map[string]fileState

	logger *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithPollInterval sets how often files are stat'ed.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithDebounce sets the quiet period before events are dispatched.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher for the given local document paths. URL
// sources cannot be watched and are rejected.
func NewWatcher(paths []string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		interval: time.Second,
		debounce: 100 * time.Millisecond,
		states:   make(map[string]fileState),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "schema_watcher"))

	for _, p := range paths {
		if err := w.addPath(p); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// OnChange registers a callback for change events.
func (w *Watcher) OnChange(cb func(ChangeEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// InvalidateOnChange drops source from inv whenever any watched path changes.
// A document's external references live in other files, so any change can
// affect the resolved tree.
func (w *Watcher) InvalidateOnChange(inv Invalidator, source string) {
	w.OnChange(func(evt ChangeEvent) {
		if err := inv.Invalidate(context.Background(), source); err != nil {
			w.logger.Warn("schema cache invalidation failed",
				zap.String("source", source),
				zap.String("changed", evt.Path),
				zap.Error(err))
			return
		}
		w.logger.Info("schema cache invalidated",
			zap.String("source", source),
			zap.String("changed", evt.Path),
			zap.String("op", evt.Op.String()))
	})
}

// Start begins polling. It returns an error if the watcher is already running.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	for _, p := range w.paths {
		w.states[p], _ = statFile(p)
	}
	stop, done := w.stop, w.done
	w.mu.Unlock()

	go w.loop(ctx, stop, done)

	w.logger.Info("schema watcher started",
		zap.Strings("paths", w.Paths()),
		zap.Duration("interval", w.interval),
		zap.Duration("debounce", w.debounce))
	return nil
}

// Stop stops polling and waits for the loop to exit. Pending events are
// discarded.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	close(w.stop)
	w.running = false
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("schema watcher stopped")
	return nil
}

// IsRunning reports whether Start was called without a matching Stop.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// AddPath starts watching path; adding a watched path is a no-op.
func (w *Watcher) AddPath(path string) error {
	return w.addPath(path)
}

func (w *Watcher) addPath(path string) error {
	if isURL(path) {
		return fmt.Errorf("cannot watch remote document %s", path)
	}
	abs, err := filepath.Abs(normalizeLocation(path))
	if err != nil {
		return fmt.Errorf("resolve path %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.paths {
		if p == abs {
			return nil
		}
	}

	st, err := statFile(abs)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("stat %s: %w", abs, err)
		}
		w.logger.Warn("schema document does not exist, watching for creation", zap.String("path", abs))
	}
	w.paths = append(w.paths, abs)
	w.states[abs] = st
	return nil
}

// RemovePath stops watching path.
func (w *Watcher) RemovePath(path string) error {
	abs, err := filepath.Abs(normalizeLocation(path))
	if err != nil {
		return fmt.Errorf("resolve path %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for i, p := range w.paths {
		if p == abs {
			w.paths = append(w.paths[:i], w.paths[i+1:]...)
			delete(w.states, abs)
			return nil
		}
	}
	return fmt.Errorf("path not found: %s", path)
}

// Paths returns the watched absolute paths.
func (w *Watcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(w.paths))
	copy(out, w.paths)
	return out
}

// loop owns the pending set; callbacks run on this goroutine only.
func (w *Watcher) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	pending := make(map[string]ChangeEvent)
	var (
		timer  *time.Timer
		flushC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			events := w.scan()
			if len(events) == 0 {
				continue
			}
			for _, evt := range events {
				pending[evt.Path] = evt
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			flushC = timer.C
		case <-flushC:
			flushC = nil
			w.dispatch(pending)
			pending = make(map[string]ChangeEvent)
		}
	}
}

// scan compares every watched path against its last known state.
func (w *Watcher) scan() []ChangeEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	var events []ChangeEvent
	for _, p := range w.paths {
		prev := w.states[p]
		cur, err := statFile(p)
		switch {
		case err != nil && prev.modTime.IsZero():
			// still missing
		case err != nil:
			events = append(events, ChangeEvent{Path: p, Op: ChangeRemove, Timestamp: now})
		case prev.modTime.IsZero():
			events = append(events, ChangeEvent{Path: p, Op: ChangeCreate, Timestamp: now})
		case !cur.modTime.Equal(prev.modTime) || cur.size != prev.size:
			events = append(events, ChangeEvent{Path: p, Op: ChangeWrite, Timestamp: now})
		}
		w.states[p] = cur
	}
	return events
}

func (w *Watcher) dispatch(pending map[string]ChangeEvent) {
	w.mu.RLock()
	callbacks := make([]func(ChangeEvent), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, evt := range pending {
		w.logger.Debug("dispatching schema change",
			zap.String("path", evt.Path),
			zap.String("op", evt.Op.String()))
		for _, cb := range callbacks {
			cb(evt)
		}
	}
}

func statFile(path string) (fileState, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}, err
	}
	return fileState{modTime: info.ModTime(), size: info.Size()}, nil
}
