package inventory

import (
	"io/fs"
	"os"
	"path/filepath"

	"spotisync/internal/normalize"

	"github.com/sirupsen/logrus"
)

// SanitizeStats summarises a filename repair pass
type SanitizeStats struct {
	Scanned int
	Renamed int
	Failed  int
}

// SanitizeNames walks root recursively and renames audio files whose names
// contain " _ " substitutions or redundant whitespace. An existing file at
// the cleaned name is replaced.
func (s *Scanner) SanitizeNames(root string) (SanitizeStats, error) {
	var stats SanitizeStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !s.IsAudioFile(path) {
			return nil
		}
		stats.Scanned++

		name := d.Name()
		cleaned := normalize.CollapseWhitespace(name)
		if cleaned == name {
			return nil
		}
		target := filepath.Join(filepath.Dir(path), cleaned)
		fields := logrus.Fields{"file_path": path, "new_name": cleaned}

		if _, err := os.Stat(target); err == nil {
			if err := os.Remove(target); err != nil {
				s.logger.WithError(err).WithFields(fields).Warn("Could not remove existing file")
				stats.Failed++
				return nil
			}
		}
		if err := os.Rename(path, target); err != nil {
			s.logger.WithError(err).WithFields(fields).Error("Failed to rename file")
			stats.Failed++
			return nil
		}

		s.logger.WithFields(fields).Info("Renamed file")
		stats.Renamed++
		return nil
	})

	return stats, err
}
