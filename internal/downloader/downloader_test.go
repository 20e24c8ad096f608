package downloader

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spotisync/internal/config"
	"spotisync/internal/metadata"
	"spotisync/pkg/models"

	"github.com/sirupsen/logrus"
)

func newTestDownloader(cfg config.DownloadConfig, run runFunc) *Downloader {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Downloader{
		cfg:       cfg,
		ytDlpPath: "yt-dlp",
		extractor: metadata.NewExtractor(nil, logger),
		logger:    logger,
		run:       run,
	}
}

// writer returns a runFunc that creates files in dir and records its args
func writer(dir string, files map[string]string, output string, err error, gotArgs *[]string) runFunc {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if gotArgs != nil {
			*gotArgs = args
		}
		for file, content := range files {
			if werr := os.WriteFile(filepath.Join(dir, file), []byte(content), 0644); werr != nil {
				return nil, werr
			}
		}
		return []byte(output), err
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

var testTrack = models.Track{Title: "Song: Part 1", Artists: []string{"Band"}}

func TestAcquire(t *testing.T) {
	cfg := config.DownloadConfig{AudioFormat: "m4a", AudioQuality: "0", SearchPrefix: "ytsearch1:"}

	t.Run("Success", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "existing.mp3"), []byte("old"), 0644); err != nil {
			t.Fatalf("Failed to write fixture: %v", err)
		}
		var args []string
		d := newTestDownloader(cfg, writer(dir, map[string]string{
			"Band - Song- Part 1.m4a":      "audio",
			"Band - Song- Part 1.m4a.part": "partial",
		}, "", nil, &args))

		if err := d.Acquire(context.Background(), testTrack, dir); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}

		names := listDir(t, dir)
		if len(names) != 2 || names[0] != "Band - Song- Part 1.m4a" || names[1] != "existing.mp3" {
			t.Errorf("Unexpected folder contents %v", names)
		}
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, "ytsearch1:Band - Song: Part 1") {
			t.Errorf("Expected search query in args, got %v", args)
		}
		if !strings.Contains(joined, filepath.Join(dir, "Band - Song- Part 1.%(ext)s")) {
			t.Errorf("Expected output template in args, got %v", args)
		}
	})

	t.Run("BackendFailureRemovesPartials", func(t *testing.T) {
		dir := t.TempDir()
		d := newTestDownloader(cfg, writer(dir, map[string]string{
			"Band - Song- Part 1.m4a.part": "partial",
		}, "progress\nERROR: no results\n", errors.New("exit status 1"), nil))

		err := d.Acquire(context.Background(), testTrack, dir)
		var acqErr *AcquisitionError
		if !errors.As(err, &acqErr) || acqErr.Reason != "download failed" {
			t.Fatalf("Expected download failed AcquisitionError, got %v", err)
		}
		if !strings.Contains(err.Error(), "ERROR: no results") {
			t.Errorf("Expected backend output in error, got %v", err)
		}
		if names := listDir(t, dir); len(names) != 0 {
			t.Errorf("Expected no leftovers, got %v", names)
		}
	})

	t.Run("NoOutput", func(t *testing.T) {
		dir := t.TempDir()
		d := newTestDownloader(cfg, writer(dir, nil, "", nil, nil))

		err := d.Acquire(context.Background(), testTrack, dir)
		var acqErr *AcquisitionError
		if !errors.As(err, &acqErr) || acqErr.Reason != "no audio file produced" {
			t.Errorf("Expected no audio AcquisitionError, got %v", err)
		}
	})

	t.Run("InvalidAudioRejected", func(t *testing.T) {
		dir := t.TempDir()
		verifying := cfg
		verifying.AudioFormat = "mp3"
		verifying.VerifyAudio = true
		d := newTestDownloader(verifying, writer(dir, map[string]string{
			"Band - Song- Part 1.mp3": "definitely not mpeg frames",
		}, "", nil, nil))

		err := d.Acquire(context.Background(), testTrack, dir)
		var acqErr *AcquisitionError
		if !errors.As(err, &acqErr) || acqErr.Reason != "downloaded file is not valid audio" {
			t.Errorf("Expected invalid audio AcquisitionError, got %v", err)
		}
		if names := listDir(t, dir); len(names) != 0 {
			t.Errorf("Expected rejected file removed, got %v", names)
		}
	})

	t.Run("MissingFolder", func(t *testing.T) {
		d := newTestDownloader(cfg, writer(t.TempDir(), nil, "", nil, nil))
		if err := d.Acquire(context.Background(), testTrack, filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Error("Expected error for missing folder")
		}
	})
}

func TestWithFormat(t *testing.T) {
	d := newTestDownloader(config.DownloadConfig{AudioFormat: "mp3"}, nil)
	flac := d.WithFormat(".FLAC")
	if flac.Format() != "flac" {
		t.Errorf("Expected flac, got %s", flac.Format())
	}
	if d.Format() != "mp3" {
		t.Errorf("WithFormat must not modify the original, got %s", d.Format())
	}
}

func TestAcquisitionError(t *testing.T) {
	cause := errors.New("boom")
	err := &AcquisitionError{Track: testTrack, Reason: "download failed", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("Expected AcquisitionError to unwrap")
	}
	if err.Error() != "Song: Part 1 - Band: download failed: boom" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}
