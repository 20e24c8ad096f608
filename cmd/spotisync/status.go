package main

import (
	"os"
	"path/filepath"
	"strings"

	"spotisync/internal/console"
	"spotisync/internal/ledger"
)

// printLedgerTotals summarises every ledger in the ledger folder, or in the
// playlist folders when ledgers live next to the downloads
func printLedgerTotals(a *app) {
	pattern := filepath.Join(a.cfg.Paths.DownloadsFolder, "*", "*.csv")
	if a.cfg.Paths.LedgerFolder != "" {
		pattern = filepath.Join(a.cfg.Paths.LedgerFolder, "*.csv")
	}
	paths, err := filepath.Glob(pattern)
	if err != nil || len(paths) == 0 {
		a.logger.WithField("pattern", pattern).Info("No ledgers found")
		return
	}

	for _, path := range paths {
		rows, err := ledger.ReadRows(path)
		if err != nil {
			a.logger.WithError(err).WithField("ledger", path).Warn("Could not read ledger")
			continue
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		console.PrintLedgerCounts(os.Stdout, name, ledger.Counts(rows))
	}
}
