package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"spotisync/pkg/models"

	"github.com/dhowden/tag"
	"github.com/sirupsen/logrus"
)

// DefaultExtensions are the audio extensions recognised in playlist folders
var DefaultExtensions = []string{".mp3", ".wav", ".flac", ".m4a", ".aac", ".ogg"}

// ScanError reports an audio file whose embedded tags could not be read.
// The file is still usable through its filename.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("read tags %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Extractor reads identity information from audio files
type Extractor struct {
	extensions []string
	logger     *logrus.Logger
}

// NewExtractor creates a new metadata extractor. Extensions are matched
// case-insensitively and may be given with or without the leading dot.
func NewExtractor(extensions []string, logger *logrus.Logger) *Extractor {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Extractor{
		extensions: normalized,
		logger:     logger,
	}
}

// Tags returns the embedded title and artist of an audio file
func (e *Extractor) Tags(filePath string) (title, artist string, err error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", "", err
	}
	defer file.Close()

	m, err := tag.ReadFrom(file)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(m.Title()), strings.TrimSpace(m.Artist()), nil
}

// Describe builds the FileDescriptor for an audio file. When tags are missing
// or unreadable the title falls back to the filename without extension and a
// *ScanError is returned alongside the usable descriptor.
func (e *Extractor) Describe(filePath string) (models.FileDescriptor, error) {
	fd := models.FileDescriptor{
		Title:  Stem(filePath),
		Path:   filePath,
		Format: Format(filePath),
	}

	title, artist, err := e.Tags(filePath)
	if err != nil {
		return fd, &ScanError{Path: filePath, Err: err}
	}
	if title != "" {
		fd.Title = title
	}
	fd.Artist = artist

	e.logger.WithFields(logrus.Fields{
		"file_path": filePath,
		"title":     fd.Title,
		"artist":    fd.Artist,
	}).Debug("Read audio file tags")

	return fd, nil
}

// IsAudioFile checks if a file has one of the recognised audio extensions
func (e *Extractor) IsAudioFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range e.extensions {
		if ext == format {
			return true
		}
	}
	return false
}

// Extensions returns the recognised extensions, lowercase with dot
func (e *Extractor) Extensions() []string {
	return append([]string(nil), e.extensions...)
}

// Format returns the lowercase extension of a path without the dot
func Format(filePath string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
}

// Stem returns the file name without directory and extension
func Stem(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
