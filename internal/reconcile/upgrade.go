package reconcile

import (
	"context"
	"fmt"
	"os"

	"spotisync/internal/ledger"
	"spotisync/internal/matcher"
	"spotisync/pkg/models"

	"github.com/sirupsen/logrus"
)

// UpgradeStats counts a format upgrade pass
type UpgradeStats struct {
	Candidates int `json:"candidates"`
	Upgraded   int `json:"upgraded"`
	Failed     int `json:"failed"`
}

// Upgrade re-acquires every present track stored as fromFormat using the
// given acquirer, which is expected to produce a different format. The old
// file is removed once the replacement exists, then the ledger is rewritten
// keeping prior unable-to-find rows sticky.
func (e *Engine) Upgrade(ctx context.Context, p Pass, fromFormat string, acquirer Acquirer) (*UpgradeStats, error) {
	log := e.logger.WithField("playlist", playlistLabel(p))

	fetched, err := e.source.PlaylistTracks(ctx, p.PlaylistID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist tracks: %w", err)
	}
	tracks := validTracks(fetched, log)

	inv, err := e.scanner.Scan(p.Dir)
	if err != nil {
		return nil, err
	}

	ledgerPath := p.LedgerPath()
	prior, err := ledger.ReadAll(ledgerPath)
	if err != nil {
		log.WithError(err).Warn("Could not read ledger")
	}
	unable := make(map[string]bool)
	for key, status := range prior {
		if status == models.StatusUnable {
			unable[key] = true
		}
	}

	stats := &UpgradeStats{}
	for _, track := range tracks {
		fd, ok := matcher.FindMatch(track, inv)
		if !ok || fd.Format != fromFormat {
			continue
		}
		stats.Candidates++

		if err := ctx.Err(); err != nil {
			return stats, err
		}

		fields := logrus.Fields{"track": track.DisplayName(), "file_path": fd.Path}
		if err := callAcquirer(ctx, acquirer, e.acquireTimeout, track, p.Dir); err != nil {
			stats.Failed++
			log.WithError(err).WithFields(fields).Warn("Upgrade failed, keeping existing file")
			continue
		}
		if err := os.Remove(fd.Path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithFields(fields).Warn("Upgraded but could not remove old file")
		}
		stats.Upgraded++
		log.WithFields(fields).Info("Upgraded track")
	}

	if stats.Upgraded > 0 {
		if inv, err = e.scanner.Scan(p.Dir); err != nil {
			return stats, err
		}
	}
	if _, _, err := ledger.RewriteAll(p.PlaylistID, tracks, inv, unable, p.PlaylistName, p.ledgerFolder()); err != nil {
		return stats, fmt.Errorf("failed to write ledger: %w", err)
	}
	return stats, nil
}

// RefreshLedger re-matches a ledger against the playlist folder without any
// remote calls
func (e *Engine) RefreshLedger(dir, ledgerPath string) ([]ledger.Change, error) {
	inv, err := e.scanner.Scan(dir)
	if err != nil {
		return nil, err
	}
	changes, err := ledger.Refresh(ledgerPath, inv)
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		e.logger.WithFields(logrus.Fields{
			"ledger": ledgerPath,
			"track":  c.Row.Artist + " - " + c.Row.Title,
			"from":   c.From,
			"to":     c.Row.Status,
		}).Info("Updated ledger row")
	}
	return changes, nil
}
