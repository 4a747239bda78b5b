// Package watch reruns work when a fixed set of files changes on disk.
package watch

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDelay is how long the watcher waits for a burst of saves to settle
const DefaultDelay = 100 * time.Millisecond

// FileWatcher monitors a set of files and reports changes in batches.
// Parent directories are watched instead of the files themselves so that
// editors which save through a rename are still noticed.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	logger    *zap.Logger

	// files maps cleaned absolute paths to the path as given by the caller
	files map[string]string
	dirs  []string

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFileWatcher creates a watcher for paths. onChange receives the changed
// paths, in the form they were passed in, sorted.
func NewFileWatcher(paths []string, delay time.Duration, logger *zap.Logger, onChange func([]string)) (*FileWatcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if delay <= 0 {
		delay = DefaultDelay
	}

	files := make(map[string]string, len(paths))
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		files[abs] = p
		if dir := filepath.Dir(abs); !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher:  watcher,
		logger:   logger,
		files:    files,
		dirs:     dirs,
		stopChan: make(chan struct{}),
	}
	fw.debouncer = NewDebouncer(delay, func(changed []string) {
		sort.Strings(changed)
		onChange(changed)
	})
	return fw, nil
}

// Start begins watching in the background
func (fw *FileWatcher) Start() error {
	for _, dir := range fw.dirs {
		if err := fw.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
		fw.logger.Debug("watching directory", zap.String("dir", dir))
	}

	fw.wg.Add(1)
	go fw.watch()
	return nil
}

// Stop stops the watcher. Pending changes are dropped. It is safe to call
// more than once.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.stopChan)
		fw.wg.Wait()
		fw.debouncer.Stop()
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watch() {
	defer fw.wg.Done()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if original, ok := fw.match(event.Name); ok {
				fw.logger.Debug("file changed", zap.String("path", original), zap.Stringer("op", event.Op))
				fw.debouncer.Add(original)
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("file watcher error", zap.Error(err))

		case <-fw.stopChan:
			return
		}
	}
}

// match maps an event path to a watched file
func (fw *FileWatcher) match(name string) (string, bool) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return "", false
	}
	original, ok := fw.files[abs]
	return original, ok
}

// Debouncer collects values and hands them to a callback once no new value
// has arrived for the configured duration.
type Debouncer struct {
	duration time.Duration
	callback func([]string)

	mutex   sync.Mutex
	timer   *time.Timer
	files   map[string]struct{}
	stopped bool
}

// NewDebouncer creates a debouncer
func NewDebouncer(duration time.Duration, callback func([]string)) *Debouncer {
	return &Debouncer{
		duration: duration,
		callback: callback,
		files:    make(map[string]struct{}),
	}
}

// Add records a file and restarts the timer
func (d *Debouncer) Add(file string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}
	d.files[file] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	if d.stopped || len(d.files) == 0 {
		d.mutex.Unlock()
		return
	}
	files := make([]string, 0, len(d.files))
	for file := range d.files {
		files = append(files, file)
	}
	d.files = make(map[string]struct{})
	d.mutex.Unlock()

	d.callback(files)
}

// Stop cancels any pending flush
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
