// Package console renders progress, prompts and summaries for terminal use.
package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"spotisync/internal/database"
	"spotisync/internal/runner"
	"spotisync/pkg/models"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	colorInfo    = color.New(color.FgCyan)
	colorSuccess = color.New(color.FgGreen)
	colorWarning = color.New(color.FgYellow)
	colorError   = color.New(color.FgRed)
	colorPrompt  = color.New(color.FgBlue, color.Bold)
)

// IsTTY reports whether stdout is an interactive terminal
func IsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// DisableColor turns colored output off, e.g. when stdout is redirected
func DisableColor() {
	color.NoColor = true
}

// PrintSummary writes the aggregate outcome of a sync
func PrintSummary(w io.Writer, s *runner.Summary) {
	colorInfo.Fprintf(w, "\nSync summary (%s)\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))

	for _, pr := range s.Playlists {
		name := pr.Name
		if name == "" {
			name = pr.PlaylistID
		}
		if pr.Err != nil {
			colorError.Fprintf(w, "  ✗ %s: %v\n", name, pr.Err)
			continue
		}
		st := pr.Result.Stats
		line := fmt.Sprintf("  ✓ %s: %d tracks, %d present, %d acquired, %d skipped, %d failed",
			name, st.Total, st.AlreadyPresent, st.Acquired, st.SkippedSticky, st.Failed)
		if st.Failed > 0 {
			colorWarning.Fprintln(w, line)
		} else {
			colorSuccess.Fprintln(w, line)
		}
		if pr.Cleanup != nil && (pr.Cleanup.RemovedFound > 0 || pr.Cleanup.OrphansFound > 0) {
			fmt.Fprintf(w, "      removed: %d (deleted %d, kept %d), orphans: %d (deleted %d)\n",
				pr.Cleanup.RemovedFound, pr.Cleanup.FilesDeleted, pr.Cleanup.FilesKept,
				pr.Cleanup.OrphansFound, pr.Cleanup.OrphansDeleted)
		}
	}

	fmt.Fprintf(w, "\nPlaylists: %d synced", s.Processed)
	if s.PlaylistsFailed > 0 {
		colorError.Fprintf(w, ", %d failed", s.PlaylistsFailed)
	}
	fmt.Fprintf(w, "\nTracks: %d acquired, %d already present, %d skipped, %d failed\n",
		s.Acquired, s.AlreadyPresent, s.SkippedSticky, s.Failed)
}

// PrintHistory writes recent runs, newest first
func PrintHistory(w io.Writer, runs []database.Run) {
	if len(runs) == 0 {
		colorWarning.Fprintln(w, "No sync runs recorded yet")
		return
	}
	colorInfo.Fprintln(w, "Recent runs:")
	for _, r := range runs {
		state := "running"
		if r.FinishedAt != nil {
			state = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		line := fmt.Sprintf("  %s  %-5s  %-8s  playlists %d ok / %d failed, tracks +%d (%d failed)",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.Mode, state,
			r.PlaylistsOK, r.PlaylistsFailed, r.Acquired, r.Failed)
		if r.Error != "" {
			colorError.Fprintf(w, "%s: %s\n", line, r.Error)
		} else {
			fmt.Fprintln(w, line)
		}
	}
}

// PrintLedgerCounts writes one playlist's ledger totals by status
func PrintLedgerCounts(w io.Writer, name string, counts map[models.Status]int) {
	total := 0
	for _, n := range counts {
		total += n
	}
	fmt.Fprintf(w, "%-30s %4d tracks  ", name, total)
	colorSuccess.Fprintf(w, "%d downloaded  ", counts[models.StatusDownloaded])
	colorWarning.Fprintf(w, "%d missing  ", counts[models.StatusMissing])
	colorError.Fprintf(w, "%d unable to be found\n", counts[models.StatusUnable])
}
