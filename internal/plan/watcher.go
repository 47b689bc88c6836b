package plan

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/pkg/models"
)

// Watcher monitors a plan file and delivers tasks that appear in it
// after the initial load. Editors replace files on save, so the parent
// directory is watched rather than the file itself.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	tasks   chan []*models.Task
	done    chan struct{}
	logf    func(format string, args ...interface{})

	mu   sync.Mutex
	seen map[string]bool
}

// Watch starts watching the plan file. Tasks already in the file are
// considered seen; only entries added later are delivered on Tasks().
func Watch(path string, logf func(format string, args ...interface{})) (*Watcher, error) {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:    path,
		watcher: fsw,
		tasks:   make(chan []*models.Task, 1),
		done:    make(chan struct{}),
		logf:    logf,
		seen:    make(map[string]bool, len(initial)),
	}
	for _, t := range initial {
		w.seen[t.ID] = true
	}

	go w.watch()
	return w, nil
}

// Tasks delivers batches of newly appeared tasks.
func (w *Watcher) Tasks() <-chan []*models.Task {
	return w.tasks
}

// Close stops watching. The Tasks channel is closed after the watch
// goroutine drains.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) watch() {
	defer close(w.tasks)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logf("[plan] watch error: %v", err)
		}
	}
}

// reload re-parses the plan and delivers entries not seen before. A
// half-written file parses as an error; skip it and catch the next
// write event.
func (w *Watcher) reload() {
	tasks, err := Load(w.path)
	if err != nil {
		w.logf("[plan] reload skipped: %v", err)
		return
	}

	w.mu.Lock()
	var fresh []*models.Task
	for _, t := range tasks {
		if !w.seen[t.ID] {
			w.seen[t.ID] = true
			fresh = append(fresh, t)
		}
	}
	w.mu.Unlock()

	if len(fresh) == 0 {
		return
	}
	w.logf("[plan] %d new task(s) in %s", len(fresh), w.path)

	select {
	case w.tasks <- fresh:
	case <-w.done:
	}
}
