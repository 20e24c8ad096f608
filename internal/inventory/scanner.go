package inventory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"spotisync/internal/metadata"

	"github.com/dhowden/tag"
	"github.com/sirupsen/logrus"
)

// Scanner walks a playlist folder and reads each audio file's identity
type Scanner struct {
	extractor *metadata.Extractor
	logger    *logrus.Logger
}

// NewScanner creates a scanner backed by the given extractor
func NewScanner(extractor *metadata.Extractor, logger *logrus.Logger) *Scanner {
	return &Scanner{
		extractor: extractor,
		logger:    logger,
	}
}

// Scan reads the audio files directly inside dir. Files are visited in
// lexical order, so the last-scanned winner of a duplicate key is the file
// whose name sorts last. Unreadable tags fall back to the filename.
func (s *Scanner) Scan(dir string) (*Inventory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	inv := New()
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !s.extractor.IsAudioFile(path) {
			continue
		}

		fd, err := s.extractor.Describe(path)
		if err != nil {
			logEntry := s.logger.WithError(err).WithField("file_path", path)
			if errors.Is(err, tag.ErrNoTagsFound) {
				logEntry.Debug("No tags found, using filename")
			} else {
				logEntry.Warn("Failed to read tags, using filename")
			}
		}
		inv.Add(fd)
	}

	s.logger.WithFields(logrus.Fields{
		"directory": dir,
		"files":     len(inv.Files()),
		"titles":    inv.Len(),
	}).Debug("Scanned playlist folder")

	return inv, nil
}

// IsAudioFile reports whether the scanner would consider path
func (s *Scanner) IsAudioFile(path string) bool {
	return s.extractor.IsAudioFile(path)
}

// Extractor exposes the tag reader used by the scanner
func (s *Scanner) Extractor() *metadata.Extractor {
	return s.extractor
}
