// Package watch reloads configuration files when they change on disk.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"resumelens/internal/errors"
)

// DefaultDebounce is used when no delay is given. Editors and secret
// syncers often write a file in several steps.
const DefaultDebounce = time.Second

// Watcher calls onChange with the files whose modification time moved,
// once per burst of events.
type Watcher struct {
	mu sync.Mutex

	name     string
	files    []string
	modTimes map[string]time.Time

	fsWatcher *fsnotify.Watcher
	debounce  time.Duration
	timer     *time.Timer

	stop   chan struct{}
	done   chan struct{}
	reload chan struct{}

	onChange func(changed []string)
	logger   *errors.Logger
	running  bool
}

// New creates a watcher for files. name labels log lines.
func New(name string, files []string, debounce time.Duration, onChange func(changed []string), logger *errors.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	abs := make([]string, 0, len(files))
	for _, f := range files {
		if f == "" {
			continue
		}
		if p, err := filepath.Abs(f); err == nil {
			f = p
		}
		if !slices.Contains(abs, f) {
			abs = append(abs, f)
		}
	}

	return &Watcher{
		name:     name,
		files:    abs,
		modTimes: make(map[string]time.Time),
		debounce: debounce,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		reload:   make(chan struct{}, 1),
		onChange: onChange,
		logger:   logger,
	}
}

// Files returns the watched paths.
func (w *Watcher) Files() []string {
	return slices.Clone(w.files)
}

// Start begins watching. A watcher with no files does nothing.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("%s watcher is already running", w.name)
	}
	if len(w.files) == 0 {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.fsWatcher = fsw

	for _, file := range w.files {
		if stat, err := os.Stat(file); err == nil {
			w.modTimes[file] = stat.ModTime()
		}
		w.add(file)
	}

	w.running = true
	go w.loop()

	w.logger.Info("File watcher started",
		"watcher", w.name,
		"files", w.files,
		"debounce_delay", w.debounce)
	return nil
}

// add watches the directory of file, which also catches atomic renames such
// as Kubernetes secret updates
func (w *Watcher) add(file string) {
	dir := filepath.Dir(file)
	if slices.Contains(w.fsWatcher.WatchList(), dir) {
		return
	}
	if err := w.fsWatcher.Add(dir); err != nil {
		w.logger.Warn("Failed to watch directory", "watcher", w.name, "directory", dir, "error", err)
	}
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stop)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	<-w.done
	err := w.fsWatcher.Close()
	if err != nil {
		w.logger.LogError(err, "Failed to close file watcher", "watcher", w.name)
	}
	w.logger.Info("File watcher stopped", "watcher", w.name)
	return err
}

// IsRunning reports whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				w.schedule()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.LogError(err, "File watcher error", "watcher", w.name)

		case <-w.reload:
			if changed := w.changed(); len(changed) > 0 {
				w.logger.Info("Watched files changed, reloading", "watcher", w.name, "files", changed)
				w.onChange(changed)
			}

		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		name = event.Name
	}
	for _, file := range w.files {
		if name == file || filepath.Base(name) == "..data" {
			return true
		}
	}
	return false
}

// schedule restarts the debounce timer
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.reload <- struct{}{}:
		default:
		}
	})
}

// changed returns the files whose modification time differs from the last
// one seen. Deleted files are not reported until they reappear.
func (w *Watcher) changed() []string {
	var out []string
	for _, file := range w.files {
		stat, err := os.Stat(file)
		if err != nil {
			delete(w.modTimes, file)
			continue
		}
		if last, ok := w.modTimes[file]; !ok || !stat.ModTime().Equal(last) {
			w.modTimes[file] = stat.ModTime()
			out = append(out, file)
		}
	}
	return out
}
