package matcher

import (
	"testing"

	"spotisync/internal/inventory"
	"spotisync/pkg/models"
)

func buildInventory(files ...models.FileDescriptor) *inventory.Inventory {
	inv := inventory.New()
	for _, fd := range files {
		inv.Add(fd)
	}
	return inv
}

func TestFindTitle(t *testing.T) {
	inv := buildInventory(
		models.FileDescriptor{Title: "song title", Path: "/p/Artist - Song Title.mp3", Format: "mp3"},
		models.FileDescriptor{Title: "Bohemian Rhapsody - Remastered 2011", Path: "/p/Queen - Bohemian Rhapsody.flac", Format: "flac"},
		models.FileDescriptor{Title: "Intro", Path: "/p/Band - Totally Different Name.mp3", Format: "mp3"},
		models.FileDescriptor{Title: "リライト", Path: "/p/asian kung-fu generation - リライト.mp3", Format: "mp3"},
		models.FileDescriptor{Title: "???", Path: "/p/Someone - Hidden Gem.ogg", Format: "ogg"},
	)

	testCases := []struct {
		title    string
		found    bool
		strategy Strategy
		path     string
	}{
		{"Song: Title", true, StrategyExact, "/p/Artist - Song Title.mp3"},
		{"SONG TITLE", true, StrategyExact, "/p/Artist - Song Title.mp3"},
		{"Bohemian Rhapsody", true, StrategySubstring, "/p/Queen - Bohemian Rhapsody.flac"},
		{"Intro (Extended Version)", true, StrategySubstring, "/p/Band - Totally Different Name.mp3"},
		{"Totally Different", true, StrategyFilename, "/p/Band - Totally Different Name.mp3"},
		{"Hidden Gem", true, StrategyFilename, "/p/Someone - Hidden Gem.ogg"},
		{"リライト", true, StrategyExact, "/p/asian kung-fu generation - リライト.mp3"},
		{"Not Here", false, StrategyNone, ""},
		{"?!", false, StrategyNone, ""},
		{"", false, StrategyNone, ""},
	}

	for _, tc := range testCases {
		m, ok := FindTitle(tc.title, inv)
		if ok != tc.found {
			t.Errorf("FindTitle(%s): expected found=%v, got %v", tc.title, tc.found, ok)
			continue
		}
		if m.Strategy != tc.strategy {
			t.Errorf("FindTitle(%s): expected strategy %q, got %q", tc.title, tc.strategy, m.Strategy)
		}
		if m.File.Path != tc.path {
			t.Errorf("FindTitle(%s): expected path %s, got %s", tc.title, tc.path, m.File.Path)
		}
	}
}

func TestIsDownloaded(t *testing.T) {
	t.Run("NilAndEmptyInventory", func(t *testing.T) {
		track := models.Track{Title: "Anything"}
		if IsDownloaded(track, nil) {
			t.Error("Expected false for nil inventory")
		}
		if IsDownloaded(track, inventory.New()) {
			t.Error("Expected false for empty inventory")
		}
	})

	t.Run("PunctuationAndCaseInsensitive", func(t *testing.T) {
		inv := buildInventory(models.FileDescriptor{Title: "don't stop me now", Path: "/p/x.mp3", Format: "mp3"})
		if !IsDownloaded(models.Track{Title: "Don't Stop Me Now!", Artists: []string{"Queen"}}, inv) {
			t.Error("Expected punctuation-insensitive match")
		}
	})

	t.Run("SameTitleDifferentArtist", func(t *testing.T) {
		inv := buildInventory(models.FileDescriptor{Title: "Home", Artist: "Artist A", Path: "/p/Artist A - Home.mp3", Format: "mp3"})
		a := models.Track{Title: "Home", Artists: []string{"Artist A"}}
		b := models.Track{Title: "Home", Artists: []string{"Artist B"}}

		fdA, okA := FindMatch(a, inv)
		fdB, okB := FindMatch(b, inv)
		if !okA || !okB {
			t.Fatal("Expected both tracks to match the single file")
		}
		if fdA.Path != fdB.Path {
			t.Errorf("Expected the same file for both, got %s and %s", fdA.Path, fdB.Path)
		}
	})
}
