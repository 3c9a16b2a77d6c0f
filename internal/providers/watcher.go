package providers

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// debounce window: editors and sync tools fire several events per save.
const reloadDebounce = 500 * time.Millisecond

// WatchDatasets reloads the dataset tables whenever a CSV under the dataset
// directory changes. Blocks until ctx is cancelled; callers run it in a
// goroutine. A missing directory disables watching without error.
func (d *Datasets) WatchDatasets(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("Dataset watcher unavailable")
		return
	}
	defer watcher.Close()

	if err := watcher.Add(d.dir); err != nil {
		log.Debug().Str("dir", d.dir).Err(err).Msg("Dataset directory not watchable")
		return
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".csv" {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			log.Info().Str("dir", d.dir).Msg("Dataset change detected; reloading")
			d.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Dataset watcher error")
		}
	}
}
