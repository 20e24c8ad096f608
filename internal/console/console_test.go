package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"spotisync/internal/cleanup"
	"spotisync/internal/database"
	"spotisync/internal/reconcile"
	"spotisync/internal/runner"
	"spotisync/pkg/models"

	"github.com/AlecAivazis/survey/v2"
)

func init() {
	DisableColor()
}

func TestPromptDecide(t *testing.T) {
	removed := []cleanup.RemovedSong{
		{Row: models.LedgerRow{Artist: "Artist A", Title: "Song X"}, File: &models.FileDescriptor{Path: "/music/Artist A - Song X.mp3"}},
		{Row: models.LedgerRow{Artist: "Artist C", Title: "Song Z"}},
	}

	testCases := []struct {
		name     string
		answer   int
		askErr   error
		expected cleanup.Disposition
	}{
		{"Delete", 0, nil, cleanup.DispositionDelete},
		{"Keep", 1, nil, cleanup.DispositionKeep},
		{"Skip", 2, nil, cleanup.DispositionSkip},
		{"Interrupted", 0, errors.New("interrupt"), cleanup.DispositionSkip},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompt(&out)
			p.ask = func(prompt survey.Prompt, response interface{}, opts ...survey.AskOpt) error {
				if tc.askErr != nil {
					return tc.askErr
				}
				*(response.(*int)) = tc.answer
				return nil
			}

			got, err := p.Decide(context.Background(), "Road Trip", removed)
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, got)
			}
			listing := out.String()
			if !strings.Contains(listing, "Artist A - Song X (/music/Artist A - Song X.mp3)") || !strings.Contains(listing, "Song Z (no file found)") {
				t.Errorf("Unexpected listing %q", listing)
			}
		})
	}
}

func TestPrintSummary(t *testing.T) {
	now := time.Now()
	s := &runner.Summary{
		StartedAt:       now.Add(-3 * time.Second),
		FinishedAt:      now,
		Processed:       1,
		PlaylistsFailed: 1,
		Acquired:        2,
		Failed:          1,
		Playlists: []runner.PlaylistResult{
			{
				PlaylistID: "a", Name: "Road Trip",
				Result:  &reconcile.Result{Stats: reconcile.Stats{Total: 4, AlreadyPresent: 1, Acquired: 2, Failed: 1}},
				Cleanup: &cleanup.Report{RemovedFound: 1, FilesDeleted: 1},
			},
			{PlaylistID: "gone", Err: reconcile.ErrPlaylistNotFound},
		},
	}

	var out bytes.Buffer
	PrintSummary(&out, s)
	text := out.String()
	for _, want := range []string{
		"Road Trip: 4 tracks, 1 present, 2 acquired, 0 skipped, 1 failed",
		"removed: 1 (deleted 1, kept 0)",
		"gone: playlist not found",
		"Playlists: 1 synced, 1 failed",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in summary:\n%s", want, text)
		}
	}
}

func TestPrintHistory(t *testing.T) {
	var out bytes.Buffer
	PrintHistory(&out, nil)
	if !strings.Contains(out.String(), "No sync runs") {
		t.Errorf("Unexpected empty history output %q", out.String())
	}

	out.Reset()
	finished := time.Now()
	PrintHistory(&out, []database.Run{{Mode: "watch", StartedAt: finished.Add(-time.Minute), FinishedAt: &finished, PlaylistsOK: 3, Acquired: 4}})
	if !strings.Contains(out.String(), "playlists 3 ok / 0 failed, tracks +4") {
		t.Errorf("Unexpected history output %q", out.String())
	}
}

func TestNoProgress(t *testing.T) {
	progress := NewProgress(&bytes.Buffer{}, false)(3, "Mix")
	progress.Increment()
	progress.Finish()
}

func TestPrintLedgerCounts(t *testing.T) {
	var out bytes.Buffer
	PrintLedgerCounts(&out, "Road Trip", map[models.Status]int{
		models.StatusDownloaded: 3,
		models.StatusUnable:     1,
	})
	text := out.String()
	if !strings.Contains(text, "4 tracks") || !strings.Contains(text, "3 downloaded  0 missing  1 unable to be found") {
		t.Errorf("Unexpected ledger counts %q", text)
	}
}
