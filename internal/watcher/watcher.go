// Package watcher watches files with fsnotify and reloads the provider
// manifest when it changes.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/docfeat/internal/logging"
)

// Op is the kind of change seen on a path.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	}
	return "unknown"
}

// ChangeEvent is one change after debouncing. A path appears at most once per
// batch, with its latest op.
type ChangeEvent struct {
	Op   Op
	Path string
}

// FileFilter reports whether changes to path are of interest. Every filter
// must accept a path for its changes to be delivered.
type FileFilter func(path string) bool

// ChangeHandler receives a batch of debounced changes. Handlers run one
// batch at a time, in the order they were added.
type ChangeHandler func(events []ChangeEvent) error

// FileWatcher delivers debounced file changes to its handlers.
type FileWatcher struct {
	fs     *fsnotify.Watcher
	delay  time.Duration
	logger logging.Logger

	mu       sync.RWMutex
	filters  []FileFilter
	handlers []ChangeHandler

	stopOnce sync.Once
	stopErr  error
}

// NewFileWatcher creates a watcher that waits for delay without further
// changes before delivering a batch.
func NewFileWatcher(delay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &FileWatcher{fs: fs, delay: delay, logger: logger.WithComponent("watcher")}, nil
}

// AddFilter adds a filter.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a handler.
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddPath watches a file or a directory (not recursively).
func (fw *FileWatcher) AddPath(path string) error {
	path = filepath.Clean(path)
	if err := fw.fs.Add(path); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	return nil
}

// Start delivers changes until ctx is done or Stop is called.
func (fw *FileWatcher) Start(ctx context.Context) {
	go fw.run(ctx)
}

// Stop releases the fsnotify watcher. It is safe to call more than once.
func (fw *FileWatcher) Stop() error {
	fw.stopOnce.Do(func() {
		fw.stopErr = fw.fs.Close()
	})
	return fw.stopErr
}

func (fw *FileWatcher) run(ctx context.Context) {
	var (
		pending batch
		timer   *time.Timer
		fire    <-chan time.Time
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

		case ev, ok := <-fw.fs.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod || !fw.accepts(ev.Name) {
				continue
			}
			pending.add(ChangeEvent{Op: opOf(ev.Op), Path: ev.Name})
			if timer == nil {
				timer = time.NewTimer(fw.delay)
			} else {
				timer.Reset(fw.delay)
			}
			fire = timer.C

		case err, ok := <-fw.fs.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")

		case <-fire:
			fire = nil
			fw.dispatch(ctx, pending.drain())
		}
	}
}

func (fw *FileWatcher) accepts(path string) bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	for _, f := range fw.filters {
		if !f(path) {
			return false
		}
	}
	return true
}

func (fw *FileWatcher) dispatch(ctx context.Context, events []ChangeEvent) {
	if len(events) == 0 {
		return
	}
	fw.mu.RLock()
	handlers := fw.handlers
	fw.mu.RUnlock()

	for _, h := range handlers {
		if err := h(events); err != nil {
			fw.logger.Warn(ctx, err, "Change handler failed", "events", len(events))
		}
	}
}

func opOf(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	}
	return OpWrite
}

// batch coalesces changes by path, keeping first-seen order.
type batch struct {
	index  map[string]int
	events []ChangeEvent
}

func (b *batch) add(ev ChangeEvent) {
	if i, ok := b.index[ev.Path]; ok {
		b.events[i] = ev
		return
	}
	if b.index == nil {
		b.index = make(map[string]int)
	}
	b.index[ev.Path] = len(b.events)
	b.events = append(b.events, ev)
}

func (b *batch) drain() []ChangeEvent {
	out := b.events
	b.index, b.events = nil, nil
	return out
}

// BaseNameFilter accepts only paths whose base name is name.
func BaseNameFilter(name string) FileFilter {
	return func(path string) bool {
		return filepath.Base(path) == name
	}
}

// YAMLFilter accepts .yml and .yaml files.
func YAMLFilter(path string) bool {
	switch filepath.Ext(path) {
	case ".yml", ".yaml":
		return true
	}
	return false
}
