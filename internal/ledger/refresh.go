package ledger

import (
	"spotisync/internal/inventory"
	"spotisync/internal/matcher"
	"spotisync/pkg/models"
)

// Change describes one row altered by Refresh
type Change struct {
	Row  models.LedgerRow
	From models.Status
}

// Refresh re-matches an existing ledger against inv without consulting the
// remote playlist. Matched rows become downloaded with the file's format;
// downloaded rows whose file has disappeared drop back to missing. Other
// rows keep their status. The ledger is rewritten only when something
// changed.
func Refresh(path string, inv *inventory.Inventory) ([]Change, error) {
	rows, err := ReadRows(path)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for i := range rows {
		row := &rows[i]
		before := *row

		if m, ok := matcher.FindTitle(row.Title, inv); ok {
			row.Status = models.StatusDownloaded
			row.Format = m.File.Format
		} else if row.Status == models.StatusDownloaded {
			row.Status = models.StatusMissing
			row.Format = ""
		}

		if *row != before {
			changes = append(changes, Change{Row: *row, From: before.Status})
		}
	}

	if len(changes) == 0 {
		return nil, nil
	}

	Sort(rows)
	if err := WriteRows(path, rows); err != nil {
		return nil, err
	}
	return changes, nil
}
