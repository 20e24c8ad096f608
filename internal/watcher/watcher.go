// Package watcher repeats a sync on an interval and whenever the playlists
// file changes.
package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SyncFunc runs one sync over all playlists
type SyncFunc func(ctx context.Context, reason string) error

// Watcher triggers syncs. Triggers that arrive while a sync is running are
// coalesced into one follow-up sync.
type Watcher struct {
	interval      time.Duration
	playlistsFile string
	debounce      time.Duration
	sync          SyncFunc
	logger        *logrus.Logger
}

// New creates a watcher. playlistsFile may be empty to disable file
// watching.
func New(interval time.Duration, playlistsFile string, sync SyncFunc, logger *logrus.Logger) *Watcher {
	return &Watcher{
		interval:      interval,
		playlistsFile: playlistsFile,
		debounce:      2 * time.Second,
		sync:          sync,
		logger:        logger,
	}
}

// Run syncs once immediately and then on every trigger until ctx is done.
// Failed syncs are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	triggers := make(chan string, 1)

	var fsw *fsnotify.Watcher
	if w.playlistsFile != "" {
		var err error
		fsw, err = fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer fsw.Close()
		// the directory is watched so editors that replace the file are seen
		if err := fsw.Add(filepath.Dir(w.playlistsFile)); err != nil {
			return err
		}
		g.Go(func() error { return w.watchFile(gctx, fsw, triggers) })
	}

	g.Go(func() error { return w.tick(gctx, triggers) })
	g.Go(func() error { return w.loop(gctx, triggers) })

	w.logger.WithFields(logrus.Fields{
		"interval":       w.interval,
		"playlists_file": w.playlistsFile,
	}).Info("Watch mode started")

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Watcher) loop(ctx context.Context, triggers <-chan string) error {
	w.runSync(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-triggers:
			w.runSync(ctx, reason)
		}
	}
}

func (w *Watcher) runSync(ctx context.Context, reason string) {
	log := w.logger.WithField("reason", reason)
	log.Info("Starting sync")
	if err := w.sync(ctx, reason); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Error("Sync failed")
		return
	}
	log.WithField("next_in", w.interval).Info("Sync finished")
}

func (w *Watcher) tick(ctx context.Context, triggers chan<- string) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			notify(triggers, "interval")
		}
	}
}

// watchFile forwards changes to the playlists file after a quiet period
func (w *Watcher) watchFile(ctx context.Context, fsw *fsnotify.Watcher, triggers chan<- string) error {
	target := filepath.Clean(w.playlistsFile)
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.WithField("event", event.Op.String()).Debug("Playlists file changed")
				pending = time.After(w.debounce)
			}
		case <-pending:
			pending = nil
			w.logger.Info("Playlists file changed, scheduling sync")
			notify(triggers, "playlists file changed")
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Error("File watcher error")
		}
	}
}

// notify never blocks: a trigger already queued covers this one
func notify(triggers chan<- string, reason string) {
	select {
	case triggers <- reason:
	default:
	}
}
