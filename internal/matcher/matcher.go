// Package matcher decides whether a remote track already exists in a
// playlist folder.
//
// Matching is by title only, in three layers: exact normalized key,
// substring containment in either direction, then containment within the
// normalized file name. Artists are not consulted, so two tracks sharing a
// title in one playlist are both satisfied by the first file that matches.
package matcher

import (
	"path/filepath"
	"strings"

	"spotisync/internal/inventory"
	"spotisync/internal/normalize"
	"spotisync/pkg/models"
)

// Strategy identifies which layer produced a match
type Strategy string

const (
	StrategyNone      Strategy = ""
	StrategyExact     Strategy = "exact"
	StrategySubstring Strategy = "substring"
	StrategyFilename  Strategy = "filename"
)

// Match is a successful lookup
type Match struct {
	File     models.FileDescriptor
	Strategy Strategy
}

// FindTitle runs the layered lookup for a raw title
func FindTitle(title string, inv *inventory.Inventory) (Match, bool) {
	key := normalize.ForMatch(title)
	if key == "" || inv == nil {
		return Match{}, false
	}

	if fd, ok := inv.Lookup(key); ok {
		return Match{File: fd, Strategy: StrategyExact}, true
	}

	for _, candidate := range inv.Keys() {
		if strings.Contains(candidate, key) || strings.Contains(key, candidate) {
			fd, _ := inv.Lookup(candidate)
			return Match{File: fd, Strategy: StrategySubstring}, true
		}
	}

	for _, fd := range inv.Files() {
		if strings.Contains(normalize.ForMatch(filepath.Base(fd.Path)), key) {
			return Match{File: fd, Strategy: StrategyFilename}, true
		}
	}

	return Match{}, false
}

// FindMatch returns the local file satisfying track, if any
func FindMatch(track models.Track, inv *inventory.Inventory) (models.FileDescriptor, bool) {
	m, ok := FindTitle(track.Title, inv)
	return m.File, ok
}

// IsDownloaded reports whether track is present in inv
func IsDownloaded(track models.Track, inv *inventory.Inventory) bool {
	_, ok := FindMatch(track, inv)
	return ok
}
