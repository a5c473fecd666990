package workflowstate

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/skillforge/skillforge/internal/logging"
)

// debounce gives editors time to finish a save before the file is re-read.
const debounce = 100 * time.Millisecond

// Watcher re-parses the legacy state file whenever it is written and
// delivers the result on States. A paused build can pick up hand edits
// this way without polling.
type Watcher struct {
	States <-chan *WorkflowState

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Watch observes the legacy state file inside workdir. The directory is
// watched rather than the file so the watch survives rename-based saves.
func Watch(workdir string, log *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fw.Add(workdir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", workdir, err)
	}

	states := make(chan *WorkflowState, 1)
	w := &Watcher{
		States:  states,
		watcher: fw,
		done:    make(chan struct{}),
	}
	go w.run(workdir, states, log.WithComponent("statewatch"))
	return w, nil
}

func (w *Watcher) run(workdir string, states chan<- *WorkflowState, log *logging.Logger) {
	defer close(states)
	target := filepath.Join(workdir, StateFileName)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(target) {
				continue
			}
			time.Sleep(debounce)
			state, err := Load(workdir)
			if err != nil {
				log.Warn("state file reload failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			if state == nil {
				continue
			}
			select {
			case states <- state:
			case <-w.done:
				return
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

// Close stops watching. The States channel is closed afterwards.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
