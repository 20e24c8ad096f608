package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"spotisync/internal/cleanup"
	"spotisync/internal/config"
	"spotisync/internal/console"
	"spotisync/internal/database"
	"spotisync/internal/downloader"
	"spotisync/internal/inventory"
	"spotisync/internal/logging"
	"spotisync/internal/metadata"
	"spotisync/internal/playlists"
	"spotisync/internal/reconcile"
	"spotisync/internal/runner"
	"spotisync/internal/spotify"

	"github.com/sirupsen/logrus"
)

// app holds the components shared by all commands
type app struct {
	cfg       *config.Config
	logger    *logrus.Logger
	logCloser io.Closer
	extractor *metadata.Extractor
	scanner   *inventory.Scanner

	source     *spotify.Client
	downloader *downloader.Downloader
	history    *database.Database
}

func newApp(configPath string, debug bool) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	if !console.IsTTY() {
		console.DisableColor()
	}

	extractor := metadata.NewExtractor(cfg.Scan.AudioExtensions, logger)
	return &app{
		cfg:       cfg,
		logger:    logger,
		logCloser: closer,
		extractor: extractor,
		scanner:   inventory.NewScanner(extractor, logger),
	}, nil
}

func (a *app) Close() {
	if a.source != nil {
		a.source.Close()
	}
	if a.history != nil {
		a.history.Close()
	}
	a.logCloser.Close()
}

// connect sets up the remote source and, when acquire is set, the download
// backend
func (a *app) connect(ctx context.Context, acquire bool) error {
	if err := a.cfg.RequireCredentials(); err != nil {
		return err
	}
	source, err := spotify.NewClient(ctx, a.cfg.Spotify, a.logger)
	if err != nil {
		return err
	}
	a.source = source

	if acquire {
		d, err := downloader.NewDownloader(a.cfg.Download, a.extractor, a.logger)
		if err != nil {
			return err
		}
		a.downloader = d
	}
	return nil
}

func (a *app) openHistory() {
	if a.cfg.Paths.HistoryDB == "" {
		return
	}
	db, err := database.NewDatabase(a.cfg.Paths.HistoryDB, a.logger)
	if err != nil {
		a.logger.WithError(err).Warn("Run history disabled")
		return
	}
	a.history = db
}

func (a *app) runner() *runner.Runner {
	var acquirer reconcile.Acquirer
	if a.downloader != nil {
		acquirer = a.downloader
	}
	engine := reconcile.NewEngine(a.source, acquirer, a.scanner, a.logger,
		reconcile.WithAcquireTimeout(time.Duration(a.cfg.Download.TimeoutSeconds)*time.Second),
		reconcile.WithProgress(console.NewProgress(os.Stderr, console.IsTTY())),
	)
	return runner.New(a.cfg, a.source, engine, a.history, a.logger)
}

// playlistIDs returns ids when given, otherwise the playlists file
func (a *app) playlistIDs(ids []string) ([]string, error) {
	if len(ids) > 0 {
		return ids, nil
	}
	created, err := playlists.EnsureFile(a.cfg.Paths.PlaylistsFile)
	if err != nil {
		return nil, err
	}
	if created {
		a.logger.WithField("path", a.cfg.Paths.PlaylistsFile).Info("Created playlists file, add playlist links to it")
	}
	return playlists.Read(a.cfg.Paths.PlaylistsFile)
}

// cleanupPolicy resolves the disposition for removed songs from flags and
// configuration. Without a terminal a prompt falls back to skipping.
func (a *app) cleanupPolicy(autoDelete, keep bool) (cleanup.Policy, error) {
	switch {
	case autoDelete && keep:
		return nil, fmt.Errorf("--auto-delete-removed and --keep-removed are mutually exclusive")
	case autoDelete:
		return cleanup.Static(cleanup.DispositionDelete), nil
	case keep:
		return cleanup.Static(cleanup.DispositionKeep), nil
	}

	if a.cfg.Cleanup.RemovedAction == "prompt" {
		if console.IsTTY() {
			return console.NewPrompt(os.Stdout), nil
		}
		a.logger.Warn("No terminal for cleanup prompt, removed songs will be skipped")
		return cleanup.Static(cleanup.DispositionSkip), nil
	}
	d, err := cleanup.ParseDisposition(a.cfg.Cleanup.RemovedAction)
	if err != nil {
		return nil, err
	}
	return cleanup.Static(d), nil
}
