package spotify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"spotisync/internal/config"
	"spotisync/internal/reconcile"

	"github.com/sirupsen/logrus"
	"github.com/zmb3/spotify/v2"
)

type fakeAPI struct {
	pages        [][]spotify.PlaylistItem
	total        int
	failures     []error
	playlist     *spotify.FullPlaylist
	playlistErr  error
	itemCalls    int
	playlistHits int
}

func (f *fakeAPI) GetPlaylist(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.FullPlaylist, error) {
	f.playlistHits++
	return f.playlist, f.playlistErr
}

func (f *fakeAPI) GetPlaylistItems(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.PlaylistItemPage, error) {
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	page := &spotify.PlaylistItemPage{}
	if f.itemCalls < len(f.pages) {
		page.Items = f.pages[f.itemCalls]
	}
	page.Total = spotify.Numeric(f.total)
	f.itemCalls++
	return page, nil
}

func item(id, name string, artists ...string) spotify.PlaylistItem {
	simple := make([]spotify.SimpleArtist, 0, len(artists))
	for _, a := range artists {
		simple = append(simple, spotify.SimpleArtist{Name: a})
	}
	track := &spotify.FullTrack{
		SimpleTrack: spotify.SimpleTrack{
			ID:           spotify.ID(id),
			Name:         name,
			Artists:      simple,
			ExternalURLs: map[string]string{"spotify": "https://open.spotify.com/track/" + id},
		},
		Album: spotify.SimpleAlbum{
			Name:        "Album " + id,
			ReleaseDate: "2003-04-01",
			Images:      []spotify.Image{{URL: "https://img/" + id}},
		},
	}
	return spotify.PlaylistItem{Track: spotify.PlaylistItemTrack{Track: track}}
}

func newTestClient(api playlistAPI) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c := newClient(api, config.SpotifyConfig{RequestsPerSecond: 1000, MaxRetries: 2, CacheMinutes: 1}, logger)
	c.backoff = time.Millisecond
	return c
}

func TestPlaylistTracksPagination(t *testing.T) {
	first := make([]spotify.PlaylistItem, 0, pageSize)
	for i := 0; i < pageSize; i++ {
		first = append(first, item("a", "Song", "Band"))
	}
	api := &fakeAPI{
		pages: [][]spotify.PlaylistItem{
			first,
			{item("z", "Last Song", "Singer", "Guest"), {}},
		},
		total: pageSize + 2,
	}
	client := newTestClient(api)
	defer client.Close()

	tracks, err := client.PlaylistTracks(context.Background(), "pl")
	if err != nil {
		t.Fatalf("PlaylistTracks failed: %v", err)
	}
	if api.itemCalls != 2 {
		t.Errorf("Expected 2 page requests, got %d", api.itemCalls)
	}
	if len(tracks) != pageSize+1 {
		t.Fatalf("Expected %d tracks with the empty item skipped, got %d", pageSize+1, len(tracks))
	}

	last := tracks[len(tracks)-1]
	if last.Title != "Last Song" || last.PrimaryArtist() != "Singer" || len(last.Artists) != 2 {
		t.Errorf("Unexpected track %+v", last)
	}
	if last.AlbumYear != "2003" || last.CoverArtURL != "https://img/z" || last.SourceURL == "" {
		t.Errorf("Unexpected album fields %+v", last)
	}
}

func TestPlaylistTracksRetry(t *testing.T) {
	t.Run("RetriesRateLimit", func(t *testing.T) {
		api := &fakeAPI{
			failures: []error{spotify.Error{Status: http.StatusTooManyRequests, Message: "slow down"}},
			pages:    [][]spotify.PlaylistItem{{item("1", "One", "Band")}},
			total:    1,
		}
		client := newTestClient(api)
		defer client.Close()

		tracks, err := client.PlaylistTracks(context.Background(), "pl")
		if err != nil {
			t.Fatalf("Expected retry to succeed, got %v", err)
		}
		if len(tracks) != 1 {
			t.Errorf("Expected 1 track, got %d", len(tracks))
		}
	})

	t.Run("GivesUpAfterMaxRetries", func(t *testing.T) {
		busy := spotify.Error{Status: http.StatusBadGateway, Message: "bad gateway"}
		api := &fakeAPI{failures: []error{busy, busy, busy, busy}}
		client := newTestClient(api)
		defer client.Close()

		if _, err := client.PlaylistTracks(context.Background(), "pl"); err == nil {
			t.Error("Expected error after retries exhausted")
		}
		if len(api.failures) != 1 {
			t.Errorf("Expected 3 attempts, %d failures left", len(api.failures))
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		api := &fakeAPI{failures: []error{spotify.Error{Status: http.StatusNotFound, Message: "Not found."}}}
		client := newTestClient(api)
		defer client.Close()

		_, err := client.PlaylistTracks(context.Background(), "gone")
		if !errors.Is(err, reconcile.ErrPlaylistNotFound) {
			t.Errorf("Expected ErrPlaylistNotFound, got %v", err)
		}
	})
}

func TestPlaylistInfoCached(t *testing.T) {
	playlist := &spotify.FullPlaylist{
		SimplePlaylist: spotify.SimplePlaylist{
			Name:  "Road Trip",
			Owner: spotify.User{DisplayName: "someone"},
		},
	}
	playlist.Tracks.Total = 12
	api := &fakeAPI{playlist: playlist}
	client := newTestClient(api)
	defer client.Close()

	for i := 0; i < 2; i++ {
		info, err := client.PlaylistInfo(context.Background(), "pl")
		if err != nil {
			t.Fatalf("PlaylistInfo failed: %v", err)
		}
		if info.Name != "Road Trip" || info.Owner != "someone" || info.TrackCount != 12 {
			t.Errorf("Unexpected info %+v", info)
		}
	}
	if api.playlistHits != 1 {
		t.Errorf("Expected one API call with caching, got %d", api.playlistHits)
	}
}

func TestPlaylistInfoNotFound(t *testing.T) {
	api := &fakeAPI{playlistErr: spotify.Error{Status: http.StatusNotFound}}
	client := newTestClient(api)
	defer client.Close()

	if _, err := client.PlaylistInfo(context.Background(), "gone"); !errors.Is(err, reconcile.ErrPlaylistNotFound) {
		t.Errorf("Expected ErrPlaylistNotFound, got %v", err)
	}
}
