package database

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := NewDatabase(filepath.Join(t.TempDir(), "history.db"), logger)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunHistory(t *testing.T) {
	db := newTestDatabase(t)

	if _, err := db.LastRun(); !IsNotFound(err) {
		t.Errorf("Expected not found on empty history, got %v", err)
	}

	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	first, err := db.StartRun("check", started)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	second, err := db.StartRun("watch", started.Add(time.Hour))
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if first == second {
		t.Fatal("Expected distinct run IDs")
	}

	t.Run("FinishRun", func(t *testing.T) {
		finished := started.Add(2 * time.Hour)
		err := db.FinishRun(Run{
			ID: second, FinishedAt: &finished, PlaylistsOK: 2, PlaylistsFailed: 1,
			Acquired: 5, AlreadyPresent: 10, SkippedSticky: 1, Failed: 2, Error: "one playlist failed",
		})
		if err != nil {
			t.Fatalf("FinishRun failed: %v", err)
		}

		last, err := db.LastRun()
		if err != nil {
			t.Fatalf("LastRun failed: %v", err)
		}
		if last.ID != second || last.Mode != "watch" {
			t.Errorf("Expected newest run, got %+v", last)
		}
		if last.FinishedAt == nil || last.Acquired != 5 || last.PlaylistsFailed != 1 || last.Error != "one playlist failed" {
			t.Errorf("Unexpected run %+v", last)
		}

		runs, err := db.RecentRuns(10)
		if err != nil {
			t.Fatalf("RecentRuns failed: %v", err)
		}
		if len(runs) != 2 || runs[1].ID != first || runs[1].FinishedAt != nil {
			t.Errorf("Unexpected runs %+v", runs)
		}
	})

	t.Run("FinishUnknownRun", func(t *testing.T) {
		if err := db.FinishRun(Run{ID: "missing"}); err == nil {
			t.Error("Expected error for unknown run")
		}
	})

	t.Run("PlaylistHistory", func(t *testing.T) {
		for i, runID := range []string{first, second} {
			err := db.RecordPlaylist(PlaylistRun{
				RunID: runID, PlaylistID: "pl", PlaylistName: "Mix",
				Total: 10 + i, Acquired: i, RecordedAt: started.Add(time.Duration(i) * time.Hour),
			})
			if err != nil {
				t.Fatalf("RecordPlaylist failed: %v", err)
			}
		}
		if err := db.RecordPlaylist(PlaylistRun{RunID: second, PlaylistID: "other", Error: "not found"}); err != nil {
			t.Fatalf("RecordPlaylist failed: %v", err)
		}

		history, err := db.PlaylistHistory("pl", 5)
		if err != nil {
			t.Fatalf("PlaylistHistory failed: %v", err)
		}
		if len(history) != 2 || history[0].RunID != second || history[0].Total != 11 {
			t.Errorf("Unexpected history %+v", history)
		}

		other, err := db.PlaylistHistory("other", 5)
		if err != nil || len(other) != 1 || other[0].Error != "not found" {
			t.Errorf("Unexpected history %+v (%v)", other, err)
		}
	})
}
