package services

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/phuslu/log"
)

// StaleMarker is told when the reference library changes on disk.
type StaleMarker interface {
	MarkStale(reason string)
}

// CorpusWatcher reports changes to supported files in the library
// directory. It never rebuilds the index itself.
type CorpusWatcher struct {
	dir     string
	watcher *fsnotify.Watcher
	marker  StaleMarker
}

// NewCorpusWatcher starts watching dir. Events are delivered once Run is
// called.
func NewCorpusWatcher(dir string, marker StaleMarker) (*CorpusWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &CorpusWatcher{dir: dir, watcher: watcher, marker: marker}, nil
}

// Run handles events until ctx is cancelled, then closes the watcher.
func (w *CorpusWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	log.Info().Str("dir", w.dir).Msg("watching reference library")

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !IsSupportedFile(event.Name) {
				continue
			}
			var change string
			switch {
			case event.Has(fsnotify.Create):
				change = "created"
			case event.Has(fsnotify.Write):
				change = "modified"
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				change = "removed"
			default:
				continue
			}
			log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("library file event")
			w.marker.MarkStale(fmt.Sprintf("%s %s", filepath.Base(event.Name), change))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("file watcher error")

		case <-ctx.Done():
			log.Info().Msg("file watcher stopped")
			return
		}
	}
}
