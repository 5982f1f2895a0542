// Package watch provides an optional directory watcher that reports
// settled file drops in the vault's inbox directory. It is a thin
// generalization of the teacher's internal/watcher/watcher.go: the
// same fsnotify-events-into-a-debounce-timer loop, lifted out of a
// single-shot Bubble Tea tea.Cmd into a long-lived goroutine with an
// explicit stop channel, since there is no TUI event loop to return a
// tea.Msg into here.
package watch

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event reports one settled file in the watched directory, or a
// terminal error from the underlying watcher.
type Event struct {
	Path string
	Err  error
}

// Watcher watches one directory for file drops and emits a debounced
// Event once writes to a path have settled.
type Watcher struct {
	dir      string
	debounce time.Duration
	fsw      *fsnotify.Watcher
	stop     chan struct{}
	done     chan struct{}
}

// New constructs a Watcher for dir. settle is the debounce window
// (500ms matches the teacher's own debounce, a fine default for local
// filesystem drops).
func New(dir string, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	return &Watcher{dir: dir, debounce: settle}
}

// Start begins watching and returns a channel of settled-file events.
// The channel is closed when Stop is called or ctx is canceled.
func (w *Watcher) Start(ctx context.Context) (<-chan Event, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w.fsw = fsw
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	events := make(chan Event)

	go func() {
		defer close(events)
		defer close(w.done)
		defer fsw.Close()

		pending := make(map[string]struct{})
		debounce := time.NewTimer(time.Hour)
		debounce.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				pending[ev.Name] = struct{}{}
				debounce.Reset(w.debounce)
			case <-debounce.C:
				for p := range pending {
					events <- Event{Path: p}
					delete(pending, p)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				events <- Event{Err: err}
			}
		}
	}()

	return events, nil
}

// Stop signals the watch goroutine to exit and blocks until it has.
func (w *Watcher) Stop() {
	if w.stop == nil {
		return
	}
	close(w.stop)
	<-w.done
}
