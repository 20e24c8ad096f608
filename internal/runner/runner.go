// Package runner drives reconciliation passes over every configured
// playlist and aggregates their outcomes.
package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"spotisync/internal/cleanup"
	"spotisync/internal/config"
	"spotisync/internal/database"
	"spotisync/internal/ledger"
	"spotisync/internal/normalize"
	"spotisync/internal/reconcile"

	"github.com/sirupsen/logrus"
)

// Options select the optional stages of a sync
type Options struct {
	Mode          string // recorded in history: check, watch
	Cleanup       bool
	Policy        cleanup.Policy
	DeleteOrphans bool
}

// PlaylistResult is the outcome of one playlist
type PlaylistResult struct {
	PlaylistID string
	Name       string
	Dir        string
	Result     *reconcile.Result
	Cleanup    *cleanup.Report
	Err        error
}

// Summary aggregates a sync over all playlists
type Summary struct {
	RunID           string           `json:"runId,omitempty"`
	StartedAt       time.Time        `json:"startedAt"`
	FinishedAt      time.Time        `json:"finishedAt"`
	Processed       int              `json:"processed"`
	PlaylistsFailed int              `json:"playlistsFailed"`
	Acquired        int              `json:"acquired"`
	AlreadyPresent  int              `json:"alreadyPresent"`
	SkippedSticky   int              `json:"skippedSticky"`
	Failed          int              `json:"failed"`
	RemovedFound    int              `json:"removedFound"`
	FilesDeleted    int              `json:"filesDeleted"`
	OrphansFound    int              `json:"orphansFound"`
	OrphansDeleted  int              `json:"orphansDeleted"`
	Playlists       []PlaylistResult `json:"-"`
}

func (s *Summary) add(pr PlaylistResult) {
	s.Playlists = append(s.Playlists, pr)
	if pr.Err != nil {
		s.PlaylistsFailed++
		return
	}
	s.Processed++
	if pr.Result != nil {
		s.Acquired += pr.Result.Stats.Acquired
		s.AlreadyPresent += pr.Result.Stats.AlreadyPresent
		s.SkippedSticky += pr.Result.Stats.SkippedSticky
		s.Failed += pr.Result.Stats.Failed
	}
	if pr.Cleanup != nil {
		s.RemovedFound += pr.Cleanup.RemovedFound
		s.FilesDeleted += pr.Cleanup.FilesDeleted
		s.OrphansFound += pr.Cleanup.OrphansFound
		s.OrphansDeleted += pr.Cleanup.OrphansDeleted
	}
}

// Runner syncs playlists one after another
type Runner struct {
	cfg     *config.Config
	source  reconcile.PlaylistSource
	engine  *reconcile.Engine
	cleaner *cleanup.Reconciler
	history *database.Database
	logger  *logrus.Logger
}

// New creates a runner. history may be nil.
func New(cfg *config.Config, source reconcile.PlaylistSource, engine *reconcile.Engine, history *database.Database, logger *logrus.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		source:  source,
		engine:  engine,
		cleaner: cleanup.NewReconciler(engine.Scanner(), logger),
		history: history,
		logger:  logger,
	}
}

// Resolve looks up a playlist's name and derives its folder and ledger
// location. Without metadata the folder and ledger are named after the ID.
func (r *Runner) Resolve(ctx context.Context, playlistID string) (reconcile.Pass, error) {
	name := ""
	info, err := r.source.PlaylistInfo(ctx, playlistID)
	switch {
	case errors.Is(err, reconcile.ErrPlaylistNotFound):
		r.logger.WithField("playlist", playlistID).Warn("No playlist metadata, naming folder after the playlist ID")
	case err != nil:
		return reconcile.Pass{}, fmt.Errorf("failed to get playlist info: %w", err)
	default:
		name = info.Name
	}
	return reconcile.Pass{
		PlaylistID:   playlistID,
		PlaylistName: name,
		Dir:          filepath.Join(r.cfg.Paths.DownloadsFolder, normalize.FolderName(playlistID, name)),
		LedgerFolder: r.cfg.Paths.LedgerFolder,
	}, nil
}

// SyncPlaylist runs one pass and, when enabled, the cleanup of removed and
// orphaned files using the ledger as it was before the pass
func (r *Runner) SyncPlaylist(ctx context.Context, playlistID string, opts Options) PlaylistResult {
	pr := PlaylistResult{PlaylistID: playlistID}

	pass, err := r.Resolve(ctx, playlistID)
	if err != nil {
		pr.Err = err
		return pr
	}
	pr.Name = pass.PlaylistName
	pr.Dir = pass.Dir

	result, err := r.engine.Run(ctx, pass)
	pr.Result = result
	if err != nil {
		pr.Err = err
		return pr
	}

	if opts.Cleanup {
		report, err := r.cleaner.Run(ctx, cleanup.Request{
			Playlist:      pass.PlaylistName,
			Dir:           pass.Dir,
			Rows:          result.PriorRows,
			Tracks:        result.Tracks,
			Policy:        opts.Policy,
			DeleteOrphans: opts.DeleteOrphans,
		})
		pr.Cleanup = report
		if err != nil {
			r.logger.WithError(err).WithField("playlist", pass.PlaylistName).Warn("Cleanup failed")
		}
	}
	return pr
}

// SyncAll syncs every playlist in order. A failing playlist is logged and
// the rest still run. Cancellation stops before the next playlist and
// returns the partial summary with ctx.Err().
func (r *Runner) SyncAll(ctx context.Context, playlistIDs []string, opts Options) (*Summary, error) {
	summary := &Summary{StartedAt: time.Now()}
	summary.RunID = r.startRun(opts.Mode, summary.StartedAt)

	var runErr error
	for i, id := range playlistIDs {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		log := r.logger.WithFields(logrus.Fields{
			"playlist_id": id,
			"position":    fmt.Sprintf("%d/%d", i+1, len(playlistIDs)),
		})
		log.Info("Syncing playlist")

		pr := r.SyncPlaylist(ctx, id, opts)
		summary.add(pr)
		r.recordPlaylist(summary.RunID, pr)

		if pr.Err != nil {
			if errors.Is(pr.Err, context.Canceled) || errors.Is(pr.Err, context.DeadlineExceeded) {
				runErr = pr.Err
				break
			}
			log.WithError(pr.Err).Error("Playlist sync failed")
		}
	}

	summary.FinishedAt = time.Now()
	r.finishRun(summary, runErr)

	r.logger.WithFields(logrus.Fields{
		"processed":        summary.Processed,
		"playlists_failed": summary.PlaylistsFailed,
		"acquired":         summary.Acquired,
		"already_present":  summary.AlreadyPresent,
		"skipped_sticky":   summary.SkippedSticky,
		"failed":           summary.Failed,
	}).Info("Sync complete")

	return summary, runErr
}

// UpgradeAll replaces files stored as from with what acquirer produces
func (r *Runner) UpgradeAll(ctx context.Context, playlistIDs []string, from string, acquirer reconcile.Acquirer) (reconcile.UpgradeStats, error) {
	var total reconcile.UpgradeStats
	for _, id := range playlistIDs {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		pass, err := r.Resolve(ctx, id)
		if err != nil {
			r.logger.WithError(err).WithField("playlist_id", id).Error("Skipping playlist")
			continue
		}
		stats, err := r.engine.Upgrade(ctx, pass, from, acquirer)
		if stats != nil {
			total.Candidates += stats.Candidates
			total.Upgraded += stats.Upgraded
			total.Failed += stats.Failed
		}
		if err != nil {
			if ctx.Err() != nil {
				return total, err
			}
			r.logger.WithError(err).WithField("playlist", pass.PlaylistName).Error("Upgrade failed")
		}
	}
	return total, nil
}

// RefreshAll re-matches every playlist's ledger against its folder. Only
// the playlist name is fetched remotely.
func (r *Runner) RefreshAll(ctx context.Context, playlistIDs []string) ([]ledger.Change, error) {
	var all []ledger.Change
	for _, id := range playlistIDs {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		pass, err := r.Resolve(ctx, id)
		if err != nil {
			r.logger.WithError(err).WithField("playlist_id", id).Error("Skipping playlist")
			continue
		}
		if err := config.ValidateFolder(pass.Dir, false); err != nil {
			r.logger.WithError(err).WithField("playlist", pass.PlaylistName).Warn("No playlist folder, skipping")
			continue
		}
		changes, err := r.engine.RefreshLedger(pass.Dir, pass.LedgerPath())
		if err != nil {
			r.logger.WithError(err).WithField("playlist", pass.PlaylistName).Error("Ledger refresh failed")
			continue
		}
		all = append(all, changes...)
	}
	return all, nil
}

func (r *Runner) startRun(mode string, started time.Time) string {
	if r.history == nil {
		return ""
	}
	if mode == "" {
		mode = "check"
	}
	id, err := r.history.StartRun(mode, started)
	if err != nil {
		r.logger.WithError(err).Warn("Could not record run start")
		return ""
	}
	return id
}

func (r *Runner) recordPlaylist(runID string, pr PlaylistResult) {
	if r.history == nil || runID == "" {
		return
	}
	rec := database.PlaylistRun{
		RunID:        runID,
		PlaylistID:   pr.PlaylistID,
		PlaylistName: pr.Name,
	}
	if pr.Result != nil {
		rec.Total = pr.Result.Stats.Total
		rec.AlreadyPresent = pr.Result.Stats.AlreadyPresent
		rec.Acquired = pr.Result.Stats.Acquired
		rec.SkippedSticky = pr.Result.Stats.SkippedSticky
		rec.Failed = pr.Result.Stats.Failed
	}
	if pr.Err != nil {
		rec.Error = pr.Err.Error()
	}
	if err := r.history.RecordPlaylist(rec); err != nil {
		r.logger.WithError(err).Warn("Could not record playlist outcome")
	}
}

func (r *Runner) finishRun(s *Summary, runErr error) {
	if r.history == nil || s.RunID == "" {
		return
	}
	finished := s.FinishedAt
	run := database.Run{
		ID:              s.RunID,
		FinishedAt:      &finished,
		PlaylistsOK:     s.Processed,
		PlaylistsFailed: s.PlaylistsFailed,
		Acquired:        s.Acquired,
		AlreadyPresent:  s.AlreadyPresent,
		SkippedSticky:   s.SkippedSticky,
		Failed:          s.Failed,
		RemovedFound:    s.RemovedFound,
		FilesDeleted:    s.FilesDeleted,
		OrphansDeleted:  s.OrphansDeleted,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := r.history.FinishRun(run); err != nil {
		r.logger.WithError(err).Warn("Could not record run result")
	}
}
