// Package spotify lists remote playlists through the Spotify Web API using
// the client credentials flow.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"spotisync/internal/cache"
	"spotisync/internal/config"
	"spotisync/internal/reconcile"
	"spotisync/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const pageSize = 100

// playlistAPI is the subset of *spotify.Client the source needs
type playlistAPI interface {
	GetPlaylist(ctx context.Context, playlistID spotify.ID, opts ...spotify.RequestOption) (*spotify.FullPlaylist, error)
	GetPlaylistItems(ctx context.Context, playlistID spotify.ID, opts ...spotify.RequestOption) (*spotify.PlaylistItemPage, error)
}

// Client wraps the Spotify API client with rate limiting, retries and a
// playlist metadata cache
type Client struct {
	api        playlistAPI
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	infoCache  *cache.PlaylistCache
	logger     *logrus.Logger
}

// NewClient authenticates with client credentials and returns a playlist
// source. The underlying HTTP client refreshes its token on expiry.
func NewClient(ctx context.Context, cfg config.SpotifyConfig, logger *logrus.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify client credentials are not configured")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	if _, err := creds.Token(ctx); err != nil {
		return nil, fmt.Errorf("failed to authenticate with spotify: %w", err)
	}

	httpClient := creds.Client(ctx)
	return newClient(spotify.New(httpClient), cfg, logger), nil
}

func newClient(api playlistAPI, cfg config.SpotifyConfig, logger *logrus.Logger) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	ttl := time.Duration(cfg.CacheMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Client{
		api:        api,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries: cfg.MaxRetries,
		backoff:    time.Second,
		infoCache:  cache.NewPlaylistCache(ttl),
		logger:     logger,
	}
}

// Close releases the metadata cache
func (c *Client) Close() {
	c.infoCache.Close()
}

// PlaylistInfo returns the playlist's name and owner. Results are cached.
func (c *Client) PlaylistInfo(ctx context.Context, playlistID string) (*models.PlaylistInfo, error) {
	if info, ok := c.infoCache.GetInfo(playlistID); ok {
		return info, nil
	}

	var playlist *spotify.FullPlaylist
	err := c.call(ctx, "get playlist", func() (err error) {
		playlist, err = c.api.GetPlaylist(ctx, spotify.ID(playlistID))
		return err
	})
	if err != nil {
		return nil, c.wrap(playlistID, err)
	}

	info := &models.PlaylistInfo{
		ID:         playlistID,
		Name:       playlist.Name,
		Owner:      playlist.Owner.DisplayName,
		TrackCount: int(playlist.Tracks.Total),
	}
	c.infoCache.SetInfo(playlistID, info)
	return info, nil
}

// PlaylistTracks fetches every track in the playlist, following pagination
// in playlist order. Episodes and items without a track are skipped.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	var tracks []models.Track
	offset := 0

	for {
		var page *spotify.PlaylistItemPage
		err := c.call(ctx, "get playlist items", func() (err error) {
			page, err = c.api.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(pageSize), spotify.Offset(offset))
			return err
		})
		if err != nil {
			return nil, c.wrap(playlistID, err)
		}

		for _, item := range page.Items {
			if item.Track.Track == nil {
				continue
			}
			tracks = append(tracks, convertTrack(item.Track.Track))
		}

		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= int(page.Total) {
			break
		}
	}

	c.logger.WithFields(logrus.Fields{
		"playlist_id": playlistID,
		"tracks":      len(tracks),
	}).Debug("Fetched playlist tracks")

	return tracks, nil
}

func convertTrack(track *spotify.FullTrack) models.Track {
	artists := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	t := models.Track{
		Title:     track.Name,
		Artists:   artists,
		RemoteID:  string(track.ID),
		SourceURL: track.ExternalURLs["spotify"],
		Album:     track.Album.Name,
	}
	if len(track.Album.ReleaseDate) >= 4 {
		t.AlbumYear = track.Album.ReleaseDate[:4]
	}
	if len(track.Album.Images) > 0 {
		t.CoverArtURL = track.Album.Images[0].URL
	}
	return t
}

// call waits for the rate limiter and retries rate-limited and server
// errors with exponential backoff
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	delay := c.backoff
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}

		status := statusOf(err)
		if !retryable(status) || attempt >= c.maxRetries {
			return err
		}

		c.logger.WithFields(logrus.Fields{
			"operation": op,
			"status":    status,
			"attempt":   attempt + 1,
			"delay":     delay,
		}).Warn("Spotify request failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *Client) wrap(playlistID string, err error) error {
	if statusOf(err) == http.StatusNotFound {
		return fmt.Errorf("%w: %s", reconcile.ErrPlaylistNotFound, playlistID)
	}
	return err
}

func statusOf(err error) int {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	var apiErrPtr *spotify.Error
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Status
	}
	return 0
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
