package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"spotisync/internal/config"
	"spotisync/internal/metadata"
	"spotisync/internal/normalize"
	"spotisync/pkg/models"

	"github.com/bogem/id3v2/v2"
	"github.com/sirupsen/logrus"
)

// partialSuffixes are leftovers yt-dlp writes while a download is running
var partialSuffixes = []string{".part", ".ytdl", ".temp", ".tmp"}

// AcquisitionError reports why a track could not be materialised
type AcquisitionError struct {
	Track  models.Track
	Reason string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Track.DisplayName(), e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Track.DisplayName(), e.Reason, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Downloader searches for tracks and downloads them with yt-dlp
type Downloader struct {
	cfg        config.DownloadConfig
	ytDlpPath  string
	extractor  *metadata.Extractor
	logger     *logrus.Logger
	run        runFunc
	httpClient *http.Client
}

// NewDownloader creates a new downloader instance
func NewDownloader(cfg config.DownloadConfig, extractor *metadata.Extractor, logger *logrus.Logger) (*Downloader, error) {
	d := &Downloader{
		cfg:        cfg,
		extractor:  extractor,
		logger:     logger,
		run:        runCommand,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}

	if err := d.checkYtDlp(); err != nil {
		return nil, fmt.Errorf("yt-dlp not available: %w", err)
	}

	return d, nil
}

// checkYtDlp verifies that yt-dlp is installed and accessible
func (d *Downloader) checkYtDlp() error {
	possiblePaths := []string{d.cfg.Backend, "yt-dlp", "yt-dlp.exe", "./yt-dlp", "./yt-dlp.exe"}

	for _, path := range possiblePaths {
		if path == "" {
			continue
		}
		if resolved, err := exec.LookPath(path); err == nil {
			d.ytDlpPath = resolved
			return nil
		}
	}

	return fmt.Errorf("yt-dlp not found in PATH. Please install yt-dlp")
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// WithFormat returns a copy of the downloader producing format instead of
// the configured audio format
func (d *Downloader) WithFormat(format string) *Downloader {
	clone := *d
	clone.cfg.AudioFormat = strings.ToLower(strings.TrimPrefix(format, "."))
	return &clone
}

// Format is the audio format the downloader produces
func (d *Downloader) Format() string {
	return d.cfg.AudioFormat
}

// Acquire searches for the track and downloads it into dir as
// "<artist> - <title>.<format>". On failure every file the attempt created
// is removed again.
func (d *Downloader) Acquire(ctx context.Context, track models.Track, dir string) error {
	before, err := snapshot(dir)
	if err != nil {
		return &AcquisitionError{Track: track, Reason: "failed to list folder", Err: err}
	}

	base := normalize.SongFilename(normalize.SanitizeForFilesystem(track.PrimaryArtist()), track.Title)
	outputPath := filepath.Join(dir, base+".%(ext)s")
	query := d.cfg.SearchPrefix + track.PrimaryArtist() + " - " + track.Title

	log := d.logger.WithFields(logrus.Fields{
		"track": track.DisplayName(),
		"query": query,
	})
	log.Debug("Starting download")

	output, runErr := d.run(ctx, d.ytDlpPath,
		"--extract-audio",
		"--audio-format", d.cfg.AudioFormat,
		"--audio-quality", d.cfg.AudioQuality,
		"--output", outputPath,
		"--no-playlist",
		"--no-warnings",
		"--quiet",
		query,
	)

	created, err := newFiles(dir, before)
	if err != nil {
		return &AcquisitionError{Track: track, Reason: "failed to list folder", Err: err}
	}

	if runErr != nil {
		d.discard(created, log)
		if ctx.Err() != nil {
			return &AcquisitionError{Track: track, Reason: "download interrupted", Err: ctx.Err()}
		}
		return &AcquisitionError{Track: track, Reason: "download failed", Err: fmt.Errorf("%w: %s", runErr, lastLine(output))}
	}

	var audio, leftovers []string
	for _, path := range created {
		if d.extractor.IsAudioFile(path) && !isPartial(path) {
			audio = append(audio, path)
		} else {
			leftovers = append(leftovers, path)
		}
	}
	d.discard(leftovers, log)

	if len(audio) == 0 {
		return &AcquisitionError{Track: track, Reason: "no audio file produced"}
	}

	if d.cfg.VerifyAudio {
		for _, path := range audio {
			if _, err := metadata.Probe(path); err != nil {
				d.discard(audio, log)
				return &AcquisitionError{Track: track, Reason: "downloaded file is not valid audio", Err: err}
			}
		}
	}

	if d.cfg.TagFiles {
		for _, path := range audio {
			if metadata.Format(path) != "mp3" {
				continue
			}
			if err := d.tagMP3(ctx, path, track); err != nil {
				log.WithError(err).WithField("file_path", path).Warn("Could not apply tags")
			}
		}
	}

	log.WithField("files", len(audio)).Debug("Download complete")
	return nil
}

// tagMP3 writes the track's identity, album and cover art as ID3v2 frames
func (d *Downloader) tagMP3(ctx context.Context, path string, track models.Track) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(track.Title)
	tag.SetArtist(strings.Join(track.Artists, ", "))
	if track.Album != "" {
		tag.SetAlbum(track.Album)
	}
	if track.AlbumYear != "" {
		tag.SetYear(track.AlbumYear)
	}

	if track.CoverArtURL != "" {
		cover, err := d.fetchCover(ctx, track.CoverArtURL)
		if err != nil {
			d.logger.WithError(err).WithField("track", track.DisplayName()).Debug("Could not fetch cover art")
		} else {
			tag.AddAttachedPicture(id3v2.PictureFrame{
				Encoding:    id3v2.EncodingUTF8,
				MimeType:    "image/jpeg",
				PictureType: id3v2.PTFrontCover,
				Description: "Cover",
				Picture:     cover,
			})
		}
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save MP3 tags: %w", err)
	}
	return nil
}

func (d *Downloader) fetchCover(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cover art request returned %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

func (d *Downloader) discard(paths []string, log *logrus.Entry) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).WithField("file_path", path).Warn("Failed to remove partial download")
		}
	}
}

func snapshot(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	return names, nil
}

// newFiles lists regular files in dir that were not in before
func newFiles(dir string, before map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var created []string
	for _, entry := range entries {
		if entry.IsDir() || before[entry.Name()] {
			continue
		}
		created = append(created, filepath.Join(dir, entry.Name()))
	}
	return created, nil
}

func isPartial(path string) bool {
	lower := strings.ToLower(path)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func lastLine(output []byte) string {
	lines := bytes.Split(bytes.TrimSpace(output), []byte("\n"))
	return strings.TrimSpace(string(lines[len(lines)-1]))
}
