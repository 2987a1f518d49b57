package plan

import (
	"context"
	"log"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher surfaces external edits to plan documents. Each write or create of
// a .md file under the plan root is reported with the owning session id
// (the file's parent directory name).
type Watcher struct {
	root    string
	fsw     *fsnotify.Watcher
	onEvent func(sessionID, path string)
}

// NewWatcher watches the plan root and all existing session subdirectories.
// onEvent is called from the watcher goroutine for every plan document edit.
func NewWatcher(root string, onEvent func(sessionID, path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: root, fsw: fsw, onEvent: onEvent}
	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, err
	}
	entries, err := filepath.Glob(filepath.Join(root, "*"))
	if err == nil {
		for _, e := range entries {
			// Session subdirectories; Add on a plain file is a no-op we
			// tolerate rather than stat each entry.
			if err := fsw.Add(e); err != nil {
				log.Printf("[plan] watch %s: %v", e, err)
			}
		}
	}
	return w, nil
}

// Run drains watcher events until the context is cancelled or the watcher
// closes. It is intended to run as its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[plan] watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	// New session directories need their own watch.
	if ev.Op.Has(fsnotify.Create) && filepath.Dir(ev.Name) == filepath.Clean(w.root) {
		if err := w.fsw.Add(ev.Name); err != nil {
			log.Printf("[plan] watch %s: %v", ev.Name, err)
		}
	}
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
		return
	}
	if !strings.HasSuffix(ev.Name, ".md") {
		return
	}
	sessionID := filepath.Base(filepath.Dir(ev.Name))
	if sessionID == filepath.Base(filepath.Clean(w.root)) {
		// Markdown dropped at the root has no owning session.
		return
	}
	if w.onEvent != nil {
		w.onEvent(sessionID, ev.Name)
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
