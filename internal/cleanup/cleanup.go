// Package cleanup detects drift between a playlist's ledger, its current
// remote track list and the files in its folder, and applies a disposition
// to the files of tracks that left the playlist.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"spotisync/internal/inventory"
	"spotisync/internal/matcher"
	"spotisync/internal/normalize"
	"spotisync/pkg/models"

	"github.com/sirupsen/logrus"
)

// Disposition is what to do with the files of removed tracks
type Disposition string

const (
	DispositionDelete Disposition = "delete"
	DispositionKeep   Disposition = "keep"
	DispositionSkip   Disposition = "skip"
)

// ParseDisposition converts a configured action to a Disposition
func ParseDisposition(s string) (Disposition, error) {
	switch d := Disposition(strings.ToLower(strings.TrimSpace(s))); d {
	case DispositionDelete, DispositionKeep, DispositionSkip:
		return d, nil
	default:
		return "", fmt.Errorf("unknown disposition %q", s)
	}
}

// RemovedSong is a ledger row marked downloaded whose track is no longer in
// the playlist, with the local file it maps to when one was found
type RemovedSong struct {
	Row  models.LedgerRow
	File *models.FileDescriptor
}

// Policy chooses the disposition for a set of removed songs
type Policy interface {
	Decide(ctx context.Context, playlist string, removed []RemovedSong) (Disposition, error)
}

// Static always returns the same disposition
type Static Disposition

// Decide implements Policy
func (s Static) Decide(ctx context.Context, playlist string, removed []RemovedSong) (Disposition, error) {
	return Disposition(s), nil
}

// Request scopes one cleanup run to a playlist. Rows is the ledger as it
// was before the current pass rewrote it.
type Request struct {
	Playlist      string
	Dir           string
	Rows          []models.LedgerRow
	Tracks        []models.Track
	Policy        Policy
	DeleteOrphans bool
}

// Report summarises a cleanup run
type Report struct {
	RemovedFound      int         `json:"removedFound"`
	RemovedFilesFound int         `json:"removedFilesFound"`
	FilesDeleted      int         `json:"filesDeleted"`
	FilesKept         int         `json:"filesKept"`
	DeleteFailed      int         `json:"deleteFailed"`
	OrphansFound      int         `json:"orphansFound"`
	OrphansDeleted    int         `json:"orphansDeleted"`
	Action            Disposition `json:"action"`
	Removed           []RemovedSong
	Orphans           []models.FileDescriptor
}

// Reconciler runs removed and orphaned file detection
type Reconciler struct {
	scanner *inventory.Scanner
	logger  *logrus.Logger
}

// NewReconciler creates a cleanup reconciler
func NewReconciler(scanner *inventory.Scanner, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		scanner: scanner,
		logger:  logger,
	}
}

// FindRemoved returns downloaded ledger rows whose legacy key is absent from
// tracks. A row's file is located with the track matcher on the recorded
// title; files that also satisfy a current track are never attributed to a
// removed row.
func FindRemoved(tracks []models.Track, rows []models.LedgerRow, inv *inventory.Inventory) []RemovedSong {
	current := make(map[string]bool, len(tracks))
	protected := make(map[string]bool)
	for _, t := range tracks {
		current[normalize.LegacyKey(t.PrimaryArtist(), t.Title)] = true
		if fd, ok := matcher.FindMatch(t, inv); ok {
			protected[fd.Path] = true
		}
	}

	var removed []RemovedSong
	claimed := make(map[string]bool)
	for _, row := range rows {
		if row.Status != models.StatusDownloaded || current[normalize.LegacyKey(row.Artist, row.Title)] {
			continue
		}
		song := RemovedSong{Row: row}
		if m, ok := matcher.FindTitle(row.Title, inv); ok && !protected[m.File.Path] && !claimed[m.File.Path] {
			fd := m.File
			song.File = &fd
			claimed[fd.Path] = true
		}
		removed = append(removed, song)
	}
	return removed
}

// Run detects removed songs and orphaned files for one playlist, asks the
// policy for a disposition and applies it. Deletions are best-effort and
// reported per file.
func (r *Reconciler) Run(ctx context.Context, req Request) (*Report, error) {
	log := r.logger.WithField("playlist", req.Playlist)

	rows := req.Rows
	inv, err := r.scanner.Scan(req.Dir)
	if err != nil {
		return nil, err
	}

	report := &Report{Action: DispositionSkip}
	report.Removed = FindRemoved(req.Tracks, rows, inv)
	report.RemovedFound = len(report.Removed)

	var removedFiles []models.FileDescriptor
	for _, song := range report.Removed {
		if song.File != nil {
			removedFiles = append(removedFiles, *song.File)
		}
	}
	report.RemovedFilesFound = len(removedFiles)

	if report.RemovedFound > 0 {
		log.WithFields(logrus.Fields{
			"removed": report.RemovedFound,
			"files":   report.RemovedFilesFound,
		}).Warn("Found songs removed from playlist")

		if report.RemovedFilesFound > 0 && req.Policy != nil {
			action, err := req.Policy.Decide(ctx, req.Playlist, report.Removed)
			if err != nil {
				return report, fmt.Errorf("failed to choose cleanup action: %w", err)
			}
			report.Action = action
		}

		switch report.Action {
		case DispositionDelete:
			deleted, failed := r.deleteFiles(removedFiles, log)
			report.FilesDeleted += deleted
			report.DeleteFailed += failed
		case DispositionKeep:
			report.FilesKept = report.RemovedFilesFound
			log.WithField("files", report.FilesKept).Info("Keeping files of removed songs")
			if req.DeleteOrphans && report.FilesKept > 0 {
				// the next ledger no longer lists these songs
				log.WithField("files", report.FilesKept).Warn("Kept files will count as orphans on the next pass and be deleted while orphan deletion is on")
			}
		}
	}

	handled := make(map[string]bool, len(removedFiles))
	for _, fd := range removedFiles {
		handled[fd.Path] = true
	}
	for _, fd := range r.FindOrphaned(req.Tracks, rows, inv) {
		if !handled[fd.Path] {
			report.Orphans = append(report.Orphans, fd)
		}
	}
	report.OrphansFound = len(report.Orphans)

	if report.OrphansFound > 0 {
		if req.DeleteOrphans {
			deleted, failed := r.deleteFiles(report.Orphans, log)
			report.OrphansDeleted = deleted
			report.DeleteFailed += failed
		} else {
			for _, fd := range report.Orphans {
				log.WithField("file_path", fd.Path).Info("Orphaned file")
			}
		}
	}

	return report, nil
}

func (r *Reconciler) deleteFiles(files []models.FileDescriptor, log *logrus.Entry) (deleted, failed int) {
	for _, fd := range files {
		if err := os.Remove(fd.Path); err != nil {
			log.WithError(err).WithField("file_path", fd.Path).Error("Failed to delete file")
			failed++
			continue
		}
		log.WithField("file", filepath.Base(fd.Path)).Info("Deleted file")
		deleted++
	}
	return deleted, failed
}
