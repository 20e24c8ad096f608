package metadata

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/tcolgate/mp3"
)

// ErrEmptyFile is returned by Probe for zero-length files
var ErrEmptyFile = errors.New("audio file is empty")

// Probe checks that a file holds decodable audio and returns its duration
// when the container exposes one. Formats without a decoder only need to
// be non-empty with a readable tag block.
func Probe(filePath string) (time.Duration, error) {
	st, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	if st.Size() == 0 {
		return 0, ErrEmptyFile
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".mp3":
		return probeMP3(filePath)
	case ".flac":
		return probeFLAC(filePath)
	case ".wav":
		return probeWAV(filePath, st.Size())
	default:
		return 0, probeTags(filePath)
	}
}

// probeMP3 decodes frames until EOF; at least one frame must decode.
func probeMP3(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if frames == 0 {
				return 0, fmt.Errorf("no mp3 frames decoded: %w", err)
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				return total, nil // trailing garbage after valid frames
			}
			break
		}
		total += fr.Duration()
		frames++
	}
	return total, nil
}

func probeFLAC(path string) (time.Duration, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	si := stream.Info
	if si.SampleRate == 0 {
		return 0, fmt.Errorf("flac stream missing sample rate")
	}
	secs := float64(si.NSamples) / float64(si.SampleRate)
	return time.Duration(secs * float64(time.Second)), nil
}

// probeWAV validates the header and estimates duration from the PCM size.
func probeWAV(path string, size int64) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}
	pcmBytes := size - 44
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	frameSize := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if frameSize <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	secs := float64(pcmBytes/frameSize) / float64(dec.SampleRate)
	return time.Duration(secs * float64(time.Second)), nil
}

func probeTags(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := tag.ReadFrom(f); err != nil && !errors.Is(err, tag.ErrNoTagsFound) {
		return fmt.Errorf("unreadable container: %w", err)
	}
	return nil
}
