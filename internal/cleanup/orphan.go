package cleanup

import (
	"path/filepath"
	"strings"

	"spotisync/internal/inventory"
	"spotisync/internal/ledger"
	"spotisync/internal/metadata"
	"spotisync/internal/normalize"
	"spotisync/pkg/models"
)

type trackedSong struct {
	artist string
	title  string
}

// FindRemovedSongs reads the ledger at ledgerPath and scans dir before
// running FindRemoved
func (r *Reconciler) FindRemovedSongs(tracks []models.Track, ledgerPath, dir string) ([]RemovedSong, error) {
	rows, err := ledger.ReadRows(ledgerPath)
	if err != nil {
		return nil, err
	}
	inv, err := r.scanner.Scan(dir)
	if err != nil {
		return nil, err
	}
	return FindRemoved(tracks, rows, inv), nil
}

// FindOrphaned returns files in inv that match neither a ledger row nor a
// current track. Each file is tried by its scanned title and file name
// against every tracked title (exact, substring either way, name
// containment), then by its embedded artist and title.
func (r *Reconciler) FindOrphaned(tracks []models.Track, rows []models.LedgerRow, inv *inventory.Inventory) []models.FileDescriptor {
	tracked := make([]trackedSong, 0, len(tracks)+len(rows))
	for _, t := range tracks {
		tracked = append(tracked, trackedSong{normalize.ForMatch(t.PrimaryArtist()), normalize.ForMatch(t.Title)})
	}
	for _, row := range rows {
		tracked = append(tracked, trackedSong{normalize.ForMatch(row.Artist), normalize.ForMatch(row.Title)})
	}

	var orphans []models.FileDescriptor
	for _, fd := range inv.Files() {
		if r.isTracked(fd, tracked) {
			continue
		}
		orphans = append(orphans, fd)
	}
	return orphans
}

func (r *Reconciler) isTracked(fd models.FileDescriptor, tracked []trackedSong) bool {
	titleKey := normalize.ForMatch(fd.Title)
	stemKey := normalize.ForMatch(metadata.Stem(fd.Path))
	baseKey := normalize.ForMatch(filepath.Base(fd.Path))

	for _, song := range tracked {
		if song.title == "" {
			continue
		}
		if overlaps(titleKey, song.title) || overlaps(stemKey, song.title) || strings.Contains(baseKey, song.title) {
			return true
		}
	}

	tagTitle, tagArtist, err := r.scanner.Extractor().Tags(fd.Path)
	if err != nil || tagTitle == "" {
		return false
	}
	title := normalize.ForMatch(tagTitle)
	artist := normalize.ForMatch(tagArtist)
	for _, song := range tracked {
		if song.title == "" {
			continue
		}
		if artist != "" && artist == song.artist && title == song.title {
			return true
		}
		if overlaps(title, song.title) || overlaps(artist+title, song.artist+song.title) {
			return true
		}
	}
	return false
}

// overlaps reports exact equality or containment in either direction of two
// non-empty keys
func overlaps(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}
