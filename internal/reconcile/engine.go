// Package reconcile runs one synchronisation pass over a playlist: it
// compares the remote track list with the playlist folder and ledger,
// acquires what is missing and rewrites the ledger.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spotisync/internal/config"
	"spotisync/internal/inventory"
	"spotisync/internal/ledger"
	"spotisync/internal/matcher"
	"spotisync/internal/normalize"
	"spotisync/pkg/models"

	"github.com/sirupsen/logrus"
)

// ErrPlaylistNotFound is returned by a PlaylistSource for unknown playlists
var ErrPlaylistNotFound = errors.New("playlist not found")

// PlaylistSource lists remote playlists
type PlaylistSource interface {
	PlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error)
	PlaylistInfo(ctx context.Context, playlistID string) (*models.PlaylistInfo, error)
}

// Acquirer materialises one track as an audio file in dir. A nil error
// means a new audio file is present; on failure no partial file may remain.
type Acquirer interface {
	Acquire(ctx context.Context, track models.Track, dir string) error
}

// Progress reports acquisition progress
type Progress interface {
	Increment()
	Finish()
}

// ProgressFunc starts a progress indicator for total acquisitions
type ProgressFunc func(total int, label string) Progress

// TrackState is where a track ended up in a pass
type TrackState string

const (
	StateAlreadyPresent TrackState = "already_present"
	StateSkippedSticky  TrackState = "skipped_sticky"
	StateToAcquire      TrackState = "to_acquire"
	StateAcquired       TrackState = "acquired"
	StateFailed         TrackState = "failed"
)

// Outcome is the final state of one track
type Outcome struct {
	Track models.Track
	State TrackState
	Err   error
}

// Stats are the aggregate counts of a pass
type Stats struct {
	Total          int `json:"total"`
	AlreadyPresent int `json:"alreadyPresent"`
	ToAcquire      int `json:"toAcquire"`
	Acquired       int `json:"acquired"`
	SkippedSticky  int `json:"skippedSticky"`
	Failed         int `json:"failed"`
}

// Pass identifies the playlist and locations for one run
type Pass struct {
	PlaylistID   string
	PlaylistName string
	Dir          string // playlist download folder
	LedgerFolder string // empty: the ledger lives in Dir
}

func (p Pass) ledgerFolder() string {
	if p.LedgerFolder != "" {
		return p.LedgerFolder
	}
	return p.Dir
}

// LedgerPath is where the pass reads and writes its ledger
func (p Pass) LedgerPath() string {
	return ledger.Path(p.PlaylistID, p.PlaylistName, p.ledgerFolder())
}

// Result is everything a pass produced
type Result struct {
	Stats      Stats
	Outcomes   []Outcome
	Tracks     []models.Track
	LedgerPath string
	PriorRows  []models.LedgerRow
	Rows       []models.LedgerRow
}

// Engine runs reconciliation passes
type Engine struct {
	source         PlaylistSource
	acquirer       Acquirer
	scanner        *inventory.Scanner
	logger         *logrus.Logger
	acquireTimeout time.Duration
	progress       ProgressFunc
}

// Option configures an Engine
type Option func(*Engine)

// WithAcquireTimeout bounds each acquisition call
func WithAcquireTimeout(d time.Duration) Option {
	return func(e *Engine) { e.acquireTimeout = d }
}

// WithProgress installs a progress indicator for the acquisition loop
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// NewEngine creates a reconciliation engine
func NewEngine(source PlaylistSource, acquirer Acquirer, scanner *inventory.Scanner, logger *logrus.Logger, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		acquirer: acquirer,
		scanner:  scanner,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one pass. Setup failures (track list, folder, scan) abort
// the pass. Individual acquisition failures are recorded and the pass
// continues. If ctx is cancelled between tracks or during an acquisition
// the ledger is left as it was and ctx.Err() is returned with the partial
// result. A track listed more than once is acquired at most once and its
// repeats are not counted in ToAcquire.
func (e *Engine) Run(ctx context.Context, p Pass) (*Result, error) {
	log := e.logger.WithField("playlist", playlistLabel(p))

	fetched, err := e.source.PlaylistTracks(ctx, p.PlaylistID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist tracks: %w", err)
	}
	tracks := validTracks(fetched, log)

	if err := config.ValidateFolder(p.Dir, true); err != nil {
		return nil, err
	}

	inv, err := e.scanner.Scan(p.Dir)
	if err != nil {
		return nil, err
	}

	ledgerPath := p.LedgerPath()
	priorRows, err := ledger.ReadRows(ledgerPath)
	if err != nil {
		log.WithError(err).Warn("Could not read ledger, classifying all tracks fresh")
		priorRows = nil
	}
	prior := make(map[string]models.Status, len(priorRows))
	for _, row := range priorRows {
		prior[normalize.LegacyKey(row.Artist, row.Title)] = row.Status
	}

	result := &Result{
		Tracks:     tracks,
		LedgerPath: ledgerPath,
		PriorRows:  priorRows,
		Outcomes:   make([]Outcome, len(tracks)),
	}
	result.Stats.Total = len(tracks)

	unable := make(map[string]bool)
	var pending []int
	queued := make(map[string]int)
	repeats := make(map[int]int)
	for i, track := range tracks {
		result.Outcomes[i].Track = track
		key := legacyKey(track)

		if first, ok := queued[key]; ok {
			// same track listed again, it follows the first listing
			repeats[i] = first
			result.Outcomes[i].State = StateToAcquire
			continue
		}

		switch {
		case matcher.IsDownloaded(track, inv):
			result.Outcomes[i].State = StateAlreadyPresent
			result.Stats.AlreadyPresent++
		case prior[key] == models.StatusUnable:
			result.Outcomes[i].State = StateSkippedSticky
			result.Stats.SkippedSticky++
			unable[key] = true
			log.WithField("track", track.DisplayName()).Debug("Skipping track previously marked unable to be found")
		default:
			result.Outcomes[i].State = StateToAcquire
			result.Stats.ToAcquire++
			pending = append(pending, i)
			queued[key] = i
		}
	}

	log.WithFields(logrus.Fields{
		"total":           result.Stats.Total,
		"already_present": result.Stats.AlreadyPresent,
		"skipped_sticky":  result.Stats.SkippedSticky,
		"to_acquire":      result.Stats.ToAcquire,
	}).Info("Classified playlist tracks")

	if len(pending) > 0 {
		var bar Progress
		if e.progress != nil {
			bar = e.progress(len(pending), playlistLabel(p))
		}
		for _, i := range pending {
			if err := ctx.Err(); err != nil {
				if bar != nil {
					bar.Finish()
				}
				log.Warn("Pass interrupted, ledger left unchanged")
				return result, err
			}

			outcome := &result.Outcomes[i]
			if err := e.acquire(ctx, outcome.Track, p.Dir); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					// interrupted mid-acquisition: the track stays to acquire
					if bar != nil {
						bar.Finish()
					}
					log.WithField("track", outcome.Track.DisplayName()).Warn("Pass interrupted during acquisition, ledger left unchanged")
					return result, ctxErr
				}
				outcome.State = StateFailed
				outcome.Err = err
				result.Stats.Failed++
				unable[legacyKey(outcome.Track)] = true
				log.WithError(err).WithField("track", outcome.Track.DisplayName()).Warn("Failed to acquire track")
			} else {
				outcome.State = StateAcquired
				result.Stats.Acquired++
				log.WithField("track", outcome.Track.DisplayName()).Info("Acquired track")
			}
			if bar != nil {
				bar.Increment()
			}
		}
		if bar != nil {
			bar.Finish()
		}

		if inv, err = e.scanner.Scan(p.Dir); err != nil {
			return result, err
		}
	}

	for i, first := range repeats {
		result.Outcomes[i].State = result.Outcomes[first].State
		result.Outcomes[i].Err = result.Outcomes[first].Err
	}

	_, rows, err := ledger.RewriteAll(p.PlaylistID, tracks, inv, unable, p.PlaylistName, p.ledgerFolder())
	if err != nil {
		return result, fmt.Errorf("failed to write ledger: %w", err)
	}
	result.Rows = rows

	log.WithFields(logrus.Fields{
		"acquired": result.Stats.Acquired,
		"failed":   result.Stats.Failed,
		"ledger":   ledgerPath,
	}).Info("Playlist pass complete")

	return result, nil
}

func (e *Engine) acquire(ctx context.Context, track models.Track, dir string) error {
	return callAcquirer(ctx, e.acquirer, e.acquireTimeout, track, dir)
}

// callAcquirer applies the per-track timeout and converts a panic into an
// error so one track cannot end the pass.
func callAcquirer(ctx context.Context, acquirer Acquirer, timeout time.Duration, track models.Track, dir string) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("acquirer panicked: %v", r)
		}
	}()
	return acquirer.Acquire(ctx, track, dir)
}

func legacyKey(t models.Track) string {
	return normalize.LegacyKey(t.PrimaryArtist(), t.Title)
}

// Scanner exposes the engine's inventory scanner
func (e *Engine) Scanner() *inventory.Scanner {
	return e.scanner
}

func validTracks(tracks []models.Track, log *logrus.Entry) []models.Track {
	valid := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		if err := t.Validate(); err != nil {
			log.WithError(err).WithField("remote_id", t.RemoteID).Warn("Ignoring invalid track")
			continue
		}
		valid = append(valid, t)
	}
	return valid
}

func playlistLabel(p Pass) string {
	if p.PlaylistName != "" {
		return p.PlaylistName
	}
	return p.PlaylistID
}
