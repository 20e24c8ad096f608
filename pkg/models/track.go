package models

import (
	"errors"
	"strings"
)

// UnknownArtist is recorded for tracks that carry no artist credit
const UnknownArtist = "Unknown"

// Track represents a track in a remote playlist
type Track struct {
	Title       string   `json:"title"`
	Artists     []string `json:"artists"`
	RemoteID    string   `json:"remoteId"`
	SourceURL   string   `json:"sourceUrl,omitempty"`
	Album       string   `json:"album,omitempty"`
	AlbumYear   string   `json:"albumYear,omitempty"`
	CoverArtURL string   `json:"coverArtUrl,omitempty"`
}

// PrimaryArtist returns the first credited artist or UnknownArtist
func (t Track) PrimaryArtist() string {
	if len(t.Artists) == 0 || strings.TrimSpace(t.Artists[0]) == "" {
		return UnknownArtist
	}
	return t.Artists[0]
}

// DisplayName is the human readable form used in logs
func (t Track) DisplayName() string {
	if len(t.Artists) == 0 {
		return t.Title
	}
	return t.Title + " - " + strings.Join(t.Artists, ", ")
}

// Validate checks the fields the reconciliation engine relies on
func (t Track) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("track title cannot be empty")
	}
	return nil
}

// FileDescriptor describes an audio file found in a playlist folder
type FileDescriptor struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Path   string `json:"-"`
	Format string `json:"format"` // lowercase extension, no dot
}

// PlaylistInfo holds the remote playlist attributes the sync needs
type PlaylistInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Owner      string `json:"owner,omitempty"`
	TrackCount int    `json:"trackCount"`
}
