// Package normalize turns titles and names into filesystem-safe strings and
// comparison keys.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	filesystemReplacer = strings.NewReplacer(
		":", "-",
		"/", "-",
		"\\", "-",
		"|", "-",
		"?", "",
		"*", "",
		"\"", "",
		"<", "",
		">", "",
	)

	whitespaceRun = regexp.MustCompile(`\s+`)
)

// SanitizeForFilesystem replaces or drops characters that are invalid in
// filenames on common filesystems.
func SanitizeForFilesystem(s string) string {
	return filesystemReplacer.Replace(s)
}

// ForMatch lowercases s and keeps only letters and digits from any script.
// Decomposed input is composed first so that both forms compare equal.
func ForMatch(s string) string {
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CollapseWhitespace repairs filenames where an upstream tool substituted
// forbidden characters with " _ " and left doubled spaces behind.
func CollapseWhitespace(name string) string {
	cleaned := strings.ReplaceAll(name, " _ ", " ")
	cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")

	if i := strings.LastIndex(cleaned, "."); i >= 0 {
		base := strings.TrimSpace(cleaned[:i])
		return strings.TrimSpace(base + "." + cleaned[i+1:])
	}
	return strings.TrimSpace(cleaned)
}

// LegacyKey is the ledger lookup key: "artist - title", lowercased.
func LegacyKey(artist, title string) string {
	return strings.ToLower(artist + " - " + title)
}

// SongFilename returns the conventional file stem "artist - title" with the
// title made filesystem safe.
func SongFilename(artist, title string) string {
	return artist + " - " + SanitizeForFilesystem(title)
}

// PlaylistID extracts the bare playlist identifier from a share URL. Plain
// identifiers are returned unchanged.
func PlaylistID(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.LastIndex(ref, "playlist/"); i >= 0 {
		ref = ref[i+len("playlist/"):]
		if j := strings.Index(ref, "?"); j >= 0 {
			ref = ref[:j]
		}
	} else if strings.HasPrefix(ref, "spotify:playlist:") {
		ref = strings.TrimPrefix(ref, "spotify:playlist:")
	}
	return ref
}

// FolderName derives the per-playlist folder and ledger name. The playlist
// name is preferred; the identifier is used when no name is known.
func FolderName(playlistID, playlistName string) string {
	if playlistName != "" {
		var b strings.Builder
		for _, r := range playlistName {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
				b.WriteRune(r)
			}
		}
		if safe := strings.TrimSpace(b.String()); safe != "" {
			return safe
		}
	}
	return PlaylistID(playlistID)
}
