package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"spotisync/internal/config"
	"spotisync/internal/console"
	"spotisync/internal/runner"
	"spotisync/internal/watcher"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	debug        bool
	playlistArgs []string

	cleanupRemoved    bool
	autoDeleteRemoved bool
	keepRemoved       bool
	deleteOrphans     bool

	intervalMinutes int
	upgradeFrom     string
	upgradeTo       string
	historyLimit    int
)

// fatal logs through a bare logger when the app could not be set up
func fatal(err error, msg string) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.WithError(err).Fatal(msg)
}

func setup() *app {
	a, err := newApp(configPath, debug)
	if err != nil {
		fatal(err, "Error loading configuration")
	}
	return a
}

var rootCmd = &cobra.Command{
	Use:   "spotisync",
	Short: "Keep local folders in sync with remote playlists",
	Long: `spotisync mirrors remote playlists into per-playlist folders. Each pass
acquires the tracks that are missing locally and records every track's status
in a CSV ledger next to the downloads.`,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one sync pass over all playlists",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup()
		defer a.Close()
		ctx := cmd.Context()

		ids, err := a.playlistIDs(playlistArgs)
		if err != nil {
			a.logger.WithError(err).Fatal("Error reading playlists")
		}
		if err := a.connect(ctx, true); err != nil {
			a.logger.WithError(err).Fatal("Error initializing sync")
		}
		a.openHistory()

		opts, err := syncOptions(a, "check")
		if err != nil {
			a.logger.WithError(err).Fatal("Invalid cleanup options")
		}

		summary, err := a.runner().SyncAll(ctx, ids, opts)
		console.PrintSummary(os.Stdout, summary)
		if err != nil {
			a.logger.WithError(err).Warn("Sync interrupted")
			os.Exit(130)
		}
		if summary.PlaylistsFailed > 0 {
			os.Exit(1)
		}
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync on an interval and when the playlists file changes",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup()
		defer a.Close()
		ctx := cmd.Context()

		if _, err := a.playlistIDs(nil); err != nil {
			a.logger.WithError(err).Warn("Playlists file has no playlists yet")
		}
		if err := a.connect(ctx, true); err != nil {
			a.logger.WithError(err).Fatal("Error initializing sync")
		}
		a.openHistory()

		opts, err := syncOptions(a, "watch")
		if err != nil {
			a.logger.WithError(err).Fatal("Invalid cleanup options")
		}

		interval := a.cfg.Watcher.IntervalMinutes
		if cmd.Flags().Changed("interval") {
			interval = config.ClampInterval(intervalMinutes)
		}

		r := a.runner()
		sync := func(ctx context.Context, reason string) error {
			ids, err := a.playlistIDs(nil)
			if err != nil {
				return err
			}
			summary, err := r.SyncAll(ctx, ids, opts)
			if summary != nil {
				console.PrintSummary(os.Stdout, summary)
			}
			return err
		}

		file := ""
		if a.cfg.Watcher.WatchPlaylistsFile {
			file = a.cfg.Paths.PlaylistsFile
		}
		w := watcher.New(time.Duration(interval)*time.Minute, file, sync, a.logger)
		if err := w.Run(ctx); err != nil {
			a.logger.WithError(err).Fatal("Watch mode failed")
		}
		a.logger.Info("Watch mode stopped")
	},
}

var updateLedgerCmd = &cobra.Command{
	Use:   "update-ledger",
	Short: "Re-match every ledger against the files on disk without downloading",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup()
		defer a.Close()
		ctx := cmd.Context()

		ids, err := a.playlistIDs(playlistArgs)
		if err != nil {
			a.logger.WithError(err).Fatal("Error reading playlists")
		}
		if err := a.connect(ctx, false); err != nil {
			a.logger.WithError(err).Fatal("Error initializing sync")
		}

		changes, err := a.runner().RefreshAll(ctx, ids)
		if err != nil {
			a.logger.WithError(err).Fatal("Ledger update interrupted")
		}
		fmt.Printf("Updated %d ledger row(s)\n", len(changes))
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Re-acquire tracks stored in one format as another",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup()
		defer a.Close()
		ctx := cmd.Context()

		to := a.cfg.Download.UpgradeFormat
		if cmd.Flags().Changed("to") {
			to = upgradeTo
		}
		from := normalizeFormat(upgradeFrom)
		to = normalizeFormat(to)
		if from == "" || to == "" || from == to {
			a.logger.WithFields(logrus.Fields{"from": from, "to": to}).Fatal("Upgrade needs two different formats")
		}

		ids, err := a.playlistIDs(playlistArgs)
		if err != nil {
			a.logger.WithError(err).Fatal("Error reading playlists")
		}
		if err := a.connect(ctx, true); err != nil {
			a.logger.WithError(err).Fatal("Error initializing sync")
		}

		stats, err := a.runner().UpgradeAll(ctx, ids, from, a.downloader.WithFormat(to))
		fmt.Printf("Upgrade %s -> %s: %d candidate(s), %d upgraded, %d failed\n", from, to, stats.Candidates, stats.Upgraded, stats.Failed)
		if err != nil {
			a.logger.WithError(err).Fatal("Upgrade interrupted")
		}
	},
}

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize [folder]",
	Short: "Collapse stray whitespace in audio file names",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := setup()
		defer a.Close()

		root := a.cfg.Paths.DownloadsFolder
		if len(args) == 1 {
			root = args[0]
		}
		if err := config.ValidateFolder(root, false); err != nil {
			a.logger.WithError(err).Fatal("Nothing to sanitize")
		}

		stats, err := a.scanner.SanitizeNames(root)
		if err != nil {
			a.logger.WithError(err).Fatal("Sanitize failed")
		}
		fmt.Printf("Scanned %d file(s), renamed %d, %d failed\n", stats.Scanned, stats.Renamed, stats.Failed)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent sync runs and ledger totals",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup()
		defer a.Close()

		a.openHistory()
		if a.history != nil {
			runs, err := a.history.RecentRuns(historyLimit)
			if err != nil {
				a.logger.WithError(err).Error("Could not read run history")
			}
			console.PrintHistory(os.Stdout, runs)
		}

		printLedgerTotals(a)
	},
}

func normalizeFormat(f string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
}

func syncOptions(a *app, mode string) (runner.Options, error) {
	opts := runner.Options{
		Mode:          mode,
		Cleanup:       cleanupRemoved || autoDeleteRemoved || keepRemoved || deleteOrphans || a.cfg.Cleanup.Enabled,
		DeleteOrphans: deleteOrphans || a.cfg.Cleanup.DeleteOrphans,
	}
	if !opts.Cleanup {
		return opts, nil
	}
	policy, err := a.cleanupPolicy(autoDeleteRemoved, keepRemoved)
	if err != nil {
		return opts, err
	}
	opts.Policy = policy
	return opts, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.toml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	for _, cmd := range []*cobra.Command{checkCmd, updateLedgerCmd, upgradeCmd} {
		cmd.Flags().StringSliceVarP(&playlistArgs, "playlist", "p", nil, "Playlist URL or ID to use instead of the playlists file")
	}

	for _, cmd := range []*cobra.Command{checkCmd, watchCmd} {
		cmd.Flags().BoolVar(&cleanupRemoved, "cleanup-removed", false, "Detect songs removed from the playlist")
		cmd.Flags().BoolVar(&autoDeleteRemoved, "auto-delete-removed", false, "Delete files of removed songs without asking")
		cmd.Flags().BoolVar(&keepRemoved, "keep-removed", false, "Keep files of removed songs without asking")
		cmd.Flags().BoolVar(&deleteOrphans, "delete-orphans", false, "Delete audio files no ledger row or track accounts for")
	}

	watchCmd.Flags().IntVarP(&intervalMinutes, "interval", "i", 10, "Minutes between syncs (1-1440)")
	upgradeCmd.Flags().StringVar(&upgradeFrom, "from", "mp3", "Format to replace")
	upgradeCmd.Flags().StringVar(&upgradeTo, "to", "flac", "Format to acquire")
	statusCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to show")

	rootCmd.AddCommand(checkCmd, watchCmd, updateLedgerCmd, upgradeCmd, sanitizeCmd, statusCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
