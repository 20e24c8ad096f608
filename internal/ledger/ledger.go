// Package ledger persists the per-playlist status table as CSV.
//
// A ledger is always written in full: rows are rebuilt from the current
// track list, sorted, written to a temporary file in the same directory and
// renamed over the previous ledger.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"spotisync/internal/inventory"
	"spotisync/internal/matcher"
	"spotisync/internal/normalize"
	"spotisync/pkg/models"
)

// Header is the exact column row of every ledger file
var Header = []string{"Artist", "Song Title", "Status", "Format"}

// ReadError reports a ledger that exists but cannot be parsed or read.
// Callers treat it as if no prior ledger existed.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read ledger %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Path returns the ledger location for a playlist. folder defaults to the
// current directory.
func Path(playlistID, playlistName, folder string) string {
	if folder == "" {
		folder = "."
	}
	return filepath.Join(folder, normalize.FolderName(playlistID, playlistName)+".csv")
}

// ReadRows loads every row of a ledger. A missing file yields no rows and no
// error. Rows without a title or status are skipped and rows with an
// unrecognised status are read as missing. ReadError is only returned when
// the file itself cannot be read or parsed.
func ReadRows(path string) ([]models.LedgerRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &ReadError{Path: path, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	head, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &ReadError{Path: path, Err: err}
	}
	columns := make(map[string]int, len(head))
	for i, name := range head {
		columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, required := range Header[:3] {
		if _, ok := columns[required]; !ok {
			return nil, &ReadError{Path: path, Err: fmt.Errorf("missing column %q", required)}
		}
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var rows []models.LedgerRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ReadError{Path: path, Err: err}
		}

		title := field(record, "Song Title")
		rawStatus := field(record, "Status")
		if title == "" || rawStatus == "" {
			continue
		}
		status, err := models.ParseStatus(rawStatus)
		if err != nil {
			// an unrecognised status carries no stickiness
			status = models.StatusMissing
		}
		artist := field(record, "Artist")
		if artist == "" {
			artist = models.UnknownArtist
		}

		rows = append(rows, models.LedgerRow{
			Artist: artist,
			Title:  title,
			Status: status,
			Format: field(record, "Format"),
		})
	}

	return rows, nil
}

// ReadAll returns the status of every row keyed by normalize.LegacyKey
func ReadAll(path string) (map[string]models.Status, error) {
	rows, err := ReadRows(path)
	if err != nil {
		return map[string]models.Status{}, err
	}

	statuses := make(map[string]models.Status, len(rows))
	for _, row := range rows {
		statuses[normalize.LegacyKey(row.Artist, row.Title)] = row.Status
	}
	return statuses, nil
}

// Build classifies every track against inv. unable holds legacy keys of
// tracks whose acquisition is exhausted. A match always wins over the
// unable flag, which wins over missing. Duplicate (artist, title) pairs
// collapse to the first occurrence. The result is sorted.
func Build(tracks []models.Track, inv *inventory.Inventory, unable map[string]bool) []models.LedgerRow {
	seen := make(map[string]bool, len(tracks))
	rows := make([]models.LedgerRow, 0, len(tracks))

	for _, track := range tracks {
		artist := track.PrimaryArtist()
		key := normalize.LegacyKey(artist, track.Title)
		if seen[key] {
			continue
		}
		seen[key] = true

		row := models.LedgerRow{Artist: artist, Title: track.Title, Status: models.StatusMissing}
		if fd, ok := matcher.FindMatch(track, inv); ok {
			row.Status = models.StatusDownloaded
			row.Format = fd.Format
		} else if unable[key] {
			row.Status = models.StatusUnable
		}
		rows = append(rows, row)
	}

	Sort(rows)
	return rows
}

// Sort orders rows case-insensitively by "artist - title"
func Sort(rows []models.LedgerRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return normalize.LegacyKey(rows[i].Artist, rows[i].Title) < normalize.LegacyKey(rows[j].Artist, rows[j].Title)
	})
}

// RewriteAll rebuilds the ledger for a playlist from its current tracks and
// returns the path written with the rows it contains.
func RewriteAll(playlistID string, tracks []models.Track, inv *inventory.Inventory, unable map[string]bool, playlistName, folder string) (string, []models.LedgerRow, error) {
	path := Path(playlistID, playlistName, folder)
	rows := Build(tracks, inv, unable)
	if err := WriteRows(path, rows); err != nil {
		return path, nil, err
	}
	return path, rows, nil
}

// WriteRows atomically replaces the ledger at path with rows
func WriteRows(path string, rows []models.LedgerRow) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary ledger: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	writer := csv.NewWriter(tmp)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write ledger header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write([]string{row.Artist, row.Title, string(row.Status), row.Format}); err != nil {
			return fmt.Errorf("failed to write ledger row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	committed = true
	return nil
}

// Counts tallies rows by status
func Counts(rows []models.LedgerRow) map[models.Status]int {
	counts := make(map[models.Status]int, 3)
	for _, row := range rows {
		counts[row.Status]++
	}
	return counts
}
