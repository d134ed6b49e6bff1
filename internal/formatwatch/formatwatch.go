// Package formatwatch resolves (uri, config) pairs to *async.Format
// values and, optionally, watches a directory of ".format" files so new
// table signatures can be declared without restarting the dispatcher.
// The debounce-and-reload shape is the same one the teacher's procedure
// watcher uses for hot-reloading .sql files, generalized here to a
// different file suffix and a different payload.
package formatwatch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ha1tch/asyncstore/async"
	"github.com/ha1tch/asyncstore/pkg/log"
)

// Registry resolves table signatures to async.Format values and keeps
// them immutable once registered: redeclaring the same name with a
// different URI or config does not change any cursor already opened
// against the old Format (spec.md §3's format immutability), it only
// affects what a later Resolve call returns.
type Registry struct {
	mu      sync.RWMutex
	formats map[string]*async.Format // name -> format

	root          string
	logger        *log.Logger
	fsWatcher     *fsnotify.Watcher
	stopCh        chan struct{}
	doneCh        chan struct{}
	debounceDelay time.Duration
	pendingPaths  map[string]struct{}
	eventTimer    *time.Timer

	onLoad func(name string, format *async.Format)
}

// Option configures a Registry.
type Option func(*Registry)

// WithDebounceDelay sets the debounce delay for batching file events.
// Default is 100ms, matching the teacher's procedure watcher default.
func WithDebounceDelay(d time.Duration) Option {
	return func(r *Registry) { r.debounceDelay = d }
}

// WithOnLoad sets a callback invoked after a format file is (re)loaded.
func WithOnLoad(fn func(name string, format *async.Format)) Option {
	return func(r *Registry) { r.onLoad = fn }
}

// New creates a Registry with no formats registered yet.
func New(logger *log.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	r := &Registry{
		formats:       make(map[string]*async.Format),
		logger:        logger,
		debounceDelay: 100 * time.Millisecond,
		pendingPaths:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a named format. It does not affect any
// cursor already opened against a previous Format under the same name.
func (r *Registry) Register(name, uri, config string) *async.Format {
	f := async.NewFormat(uri, config)
	r.mu.Lock()
	r.formats[name] = f
	r.mu.Unlock()
	return f
}

// Resolve returns the currently registered format for name, if any.
func (r *Registry) Resolve(name string) (*async.Format, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formats[name]
	return f, ok
}

// LoadDir reads every *.format file in dir and registers it, without
// starting a watch. Each file is "name\nuri\nconfig"; the config line is
// optional and defaults to "".
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("formatwatch: read dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".format") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := r.loadFile(path); err != nil {
			r.logger.Worker().Warn("failed to load format file", "path", path, "error", err.Error())
		}
	}
	return nil
}

// Watch starts watching dir for *.format file changes, loading any that
// already exist first. Stop with Close.
func (r *Registry) Watch(dir string) error {
	if err := r.LoadDir(dir); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("formatwatch: new watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("formatwatch: watch %s: %w", dir, err)
	}

	r.root = dir
	r.fsWatcher = fsw
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.processEvents()

	r.logger.Dispatch().Info("format watcher started", "root", dir)
	return nil
}

// Close stops the watcher, if one is running.
func (r *Registry) Close() error {
	if r.fsWatcher == nil {
		return nil
	}
	close(r.stopCh)
	<-r.doneCh
	return r.fsWatcher.Close()
}

func (r *Registry) processEvents() {
	defer close(r.doneCh)
	for {
		select {
		case <-r.stopCh:
			if r.eventTimer != nil {
				r.eventTimer.Stop()
			}
			return

		case event, ok := <-r.fsWatcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".format") {
				continue
			}
			r.mu.Lock()
			r.pendingPaths[event.Name] = struct{}{}
			if r.eventTimer != nil {
				r.eventTimer.Stop()
			}
			r.eventTimer = time.AfterFunc(r.debounceDelay, r.flushPending)
			r.mu.Unlock()

		case err, ok := <-r.fsWatcher.Errors:
			if !ok {
				return
			}
			r.logger.Dispatch().Error("format watcher error", err)
		}
	}
}

func (r *Registry) flushPending() {
	r.mu.Lock()
	paths := r.pendingPaths
	r.pendingPaths = make(map[string]struct{})
	r.mu.Unlock()

	for path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := r.loadFile(path); err != nil {
			r.logger.Dispatch().Error("failed to reload format file", err, "path", path)
		}
	}
}

// loadFile parses one ".format" file and registers it. File format:
//
//	name
//	uri
//	config
func (r *Registry) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	lines := make([]string, 0, 3)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(lines) < 3 {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if len(lines) < 2 {
		return fmt.Errorf("malformed format file %s: need at least name and uri", path)
	}

	name := lines[0]
	uri := lines[1]
	config := ""
	if len(lines) == 3 {
		config = lines[2]
	}

	format := r.Register(name, uri, config)
	if r.onLoad != nil {
		r.onLoad(name, format)
	}
	r.logger.Dispatch().Debug("format loaded", "name", name, "uri", uri)
	return nil
}
