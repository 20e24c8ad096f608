// Package playlists reads the list of playlists to keep in sync.
package playlists

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"spotisync/internal/normalize"
)

// ErrNoPlaylists is returned when the playlists file lists nothing
var ErrNoPlaylists = errors.New("no playlists configured")

const template = `# One playlist per line: a share URL, a spotify:playlist: URI or a bare ID.
# Lines starting with # are ignored.
`

// Read returns the playlist IDs listed in path in file order. Blank lines
// and lines starting with # are skipped, share URLs and URIs are reduced to
// their IDs and duplicates are dropped.
func Read(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open playlists file: %w", err)
	}
	defer file.Close()

	var ids []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id := normalize.PlaylistID(line)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read playlists file: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNoPlaylists
	}
	return ids, nil
}

// EnsureFile creates a commented playlists file at path when none exists.
// It reports whether a file was created.
func EnsureFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := os.WriteFile(path, []byte(template), 0644); err != nil {
		return false, fmt.Errorf("failed to create playlists file: %w", err)
	}
	return true, nil
}
