package models

import "fmt"

// Status is the acquisition state recorded for a track in a playlist ledger
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusMissing    Status = "missing"
	StatusUnable     Status = "unable to be found"
)

// ParseStatus converts the on-disk value to a Status
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDownloaded, StatusMissing, StatusUnable:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// LedgerRow is one line of a playlist ledger
type LedgerRow struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
	Status Status `json:"status"`
	Format string `json:"format,omitempty"`
}
