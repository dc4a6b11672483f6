package registry

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatching is returned by Watch when the registry is already watching.
var ErrWatching = errors.New("registry is already watching")

// Watch starts watching the template directory and its subdirectories.
// Writing or creating a loaded template's file drops it so the next Load
// reads the new version. Removed files keep serving the last good template.
// Watch returns once the watcher is running; it stops when ctx is done or
// Close is called. Close must be called to release the watcher.
func (r *Registry) Watch(ctx context.Context) error {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	if r.watcher != nil {
		return ErrWatching
	}
	if r.dir == "" {
		return errors.New("registry has no template directory")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	err = filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = w.Close()
		return err
	}

	r.watcher = w
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.run(ctx, w, r.stop, r.done)
	r.logger.Info("watching templates", zap.String("dir", r.dir))
	return nil
}

// Close stops a running Watch. It is safe to call on a registry that is not
// watching.
func (r *Registry) Close() error {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	if r.watcher == nil {
		return nil
	}
	close(r.stop)
	<-r.done
	err := r.watcher.Close()
	r.watcher = nil
	return err
}

func (r *Registry) run(ctx context.Context, w *fsnotify.Watcher, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			r.handleEvent(w, event)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.logger.Warn("template watcher error", zap.Error(err))
		}
	}
}

func (r *Registry) handleEvent(w *fsnotify.Watcher, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		r.logger.Info("template file removed, keeping loaded version", zap.String("path", event.Name))
		return
	default:
		return
	}

	if event.Has(fsnotify.Create) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if err := w.Add(event.Name); err != nil {
				r.logger.Warn("watching new directory", zap.String("path", event.Name), zap.Error(err))
			}
			return
		}
	}

	r.mu.Lock()
	name, ok := r.paths[filepath.Clean(event.Name)]
	if ok {
		delete(r.entries, name)
		delete(r.paths, filepath.Clean(event.Name))
	}
	r.mu.Unlock()
	if ok {
		r.logger.Info("template changed, reloading on next use",
			zap.String("name", name),
			zap.String("path", event.Name))
	}
}
