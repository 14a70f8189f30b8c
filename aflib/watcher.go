package aflib

import (
	"context"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher is an accounts file connected with a file path watcher, that
// reloads the file when it is modified.
//
// The watcher monitors the directory containing the file, so that it keeps
// working when an editor saves by renaming a new file over the old one.
type Watcher struct {
	path    string
	fw      *fsnotify.Watcher
	changed chan struct{}

	μ         sync.Mutex
	file      *File
	hasUpdate bool
}

// NewWatcher creates a watcher that automatically reloads the specified
// accounts file from its original path when that path is modified.
func NewWatcher(f *File, path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:    filepath.Clean(path),
		fw:      w,
		changed: make(chan struct{}, 1),
		file:    f,
	}, nil
}

// File returns the current accounts file. If an update is available, File
// tries to load it, but in case of error it falls back to the existing value.
func (w *Watcher) File() *File {
	w.μ.Lock()
	defer w.μ.Unlock()

	if w.hasUpdate {
		f, err := LoadFile(w.path)
		if err != nil {
			log.Printf("WARNING: Load accounts: %v (skipped)", err)
			// N.B. Don't reset the flag; it might just be an incomplete update.
		} else {
			log.Printf("Updated accounts %q", w.path)
			w.hasUpdate = false
			w.file = f
		}
	}
	return w.file
}

// Changed returns a channel that receives a value whenever the accounts file
// may have been modified since the last value was received. Multiple changes
// between receives are coalesced.
func (w *Watcher) Changed() <-chan struct{} { return w.changed }

// Run monitors for changes to the accounts path in w, and marks it for reload
// when the underlying file is modified or replaced. Run should be run in a
// separate goroutine.  It exits when the watcher closes, or ctx ends.
func (w *Watcher) Run(ctx context.Context) {
	dir := filepath.Dir(w.path)
	if err := w.fw.Add(dir); err != nil {
		log.Printf("WARNING: Watch %q: %v", dir, err)
	}
	defer w.fw.Close()

	for {
		select {
		case evt, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != w.path {
				continue // some other file in the directory
			} else if evt.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				// The file may be replaced shortly; a Create will follow.
				log.Printf("Accounts file %q was moved or removed", w.path)
				continue
			} else if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Chmod) == 0 {
				continue // not relevant here
			}
			w.μ.Lock()
			w.hasUpdate = true // read by File
			w.μ.Unlock()

			select {
			case w.changed <- struct{}{}:
			default: // a notification is already pending
			}
		case e, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Printf("WARNING: Error watching %q: %v", w.path, e)
		case <-ctx.Done():
			return
		}
	}
}
