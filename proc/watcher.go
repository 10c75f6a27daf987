package proc

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leeineian/blare/sys"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".webm": true,
}

// Watcher invalidates cache entries when sound files are edited on disk,
// so an overwritten clip is picked up on the next play without a restart.
type Watcher struct {
	dir         string
	coordinator *Coordinator
}

func NewWatcher(dir string, coordinator *Coordinator) *Watcher {
	return &Watcher{dir: dir, coordinator: coordinator}
}

// Daemon wires the watcher into the daemon registry. It declines to start
// when the sounds directory cannot be watched.
func (w *Watcher) Daemon(ctx context.Context) (bool, func(), func()) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		sys.LogWatcher(sys.MsgWatcherError, err)
		return false, nil, nil
	}

	if err := fw.Add(w.dir); err != nil {
		sys.LogWatcher(sys.MsgWatcherError, err)
		_ = fw.Close()
		return false, nil, nil
	}

	run := func() {
		sys.LogWatcher(sys.MsgWatcherStarted, w.dir)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				w.handleEvent(ctx, event)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				sys.LogWatcher(sys.MsgWatcherError, err)
			}
		}
	}

	shutdown := func() {
		_ = fw.Close()
	}

	return true, run, shutdown
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	fileName := filepath.Base(event.Name)

	// Ignore temporary files and hidden files
	if strings.HasPrefix(fileName, ".") || strings.HasSuffix(fileName, ".tmp") {
		return
	}
	if !audioExtensions[strings.ToLower(filepath.Ext(fileName))] {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	// Let the writer finish before the next play re-resolves the file.
	time.Sleep(500 * time.Millisecond)

	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rec, err := sys.FindSoundByLocation(lookupCtx, fileName)
	if err != nil {
		sys.LogWatcher(sys.MsgWatcherError, err)
		return
	}
	if rec == nil {
		return
	}

	sys.LogWatcher(sys.MsgWatcherInvalidate, rec.Name)
	w.coordinator.Invalidate(rec.Name)
}
