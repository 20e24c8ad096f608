package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	MinCheckInterval = 1
	MaxCheckInterval = 1440
)

// Config represents the application configuration
type Config struct {
	Spotify  SpotifyConfig  `toml:"spotify"`
	Paths    PathsConfig    `toml:"paths"`
	Download DownloadConfig `toml:"download"`
	Watcher  WatcherConfig  `toml:"watcher"`
	Cleanup  CleanupConfig  `toml:"cleanup"`
	Scan     ScanConfig     `toml:"scan"`
	Logging  LoggingConfig  `toml:"logging"`
}

// SpotifyConfig contains remote playlist API credentials and limits
type SpotifyConfig struct {
	ClientID          string  `toml:"client_id"`
	ClientSecret      string  `toml:"client_secret"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	MaxRetries        int     `toml:"max_retries"`
	CacheMinutes      int     `toml:"playlist_cache_minutes"`
}

// PathsConfig contains filesystem locations
type PathsConfig struct {
	DownloadsFolder string `toml:"downloads_folder"`
	PlaylistsFile   string `toml:"playlists_file"`
	LedgerFolder    string `toml:"ledger_folder"` // empty: ledger lives in each playlist folder
	HistoryDB       string `toml:"history_db"`
}

// DownloadConfig contains acquisition backend settings
type DownloadConfig struct {
	Backend        string `toml:"backend"`
	AudioFormat    string `toml:"audio_format"`
	AudioQuality   string `toml:"audio_quality"`
	SearchPrefix   string `toml:"search_prefix"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	TagFiles       bool   `toml:"tag_files"`
	VerifyAudio    bool   `toml:"verify_audio"`
	UpgradeFormat  string `toml:"upgrade_format"`
}

// WatcherConfig contains watch mode settings
type WatcherConfig struct {
	IntervalMinutes    int  `toml:"interval_minutes"`
	WatchPlaylistsFile bool `toml:"watch_playlists_file"`
}

// CleanupConfig contains removed/orphaned file handling
type CleanupConfig struct {
	Enabled       bool   `toml:"enabled"`
	RemovedAction string `toml:"removed_action"`
	DeleteOrphans bool   `toml:"delete_orphans"`
}

// ScanConfig contains local library scan settings
type ScanConfig struct {
	AudioExtensions []string `toml:"audio_extensions"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// ValidationError reports configuration or folder problems that stop a run
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RequestsPerSecond: 5,
			MaxRetries:        3,
			CacheMinutes:      30,
		},
		Paths: PathsConfig{
			DownloadsFolder: "downloaded_songs",
			PlaylistsFile:   "playlists.txt",
			LedgerFolder:    "",
			HistoryDB:       "spotisync.db",
		},
		Download: DownloadConfig{
			Backend:        "yt-dlp",
			AudioFormat:    "mp3",
			AudioQuality:   "0",
			SearchPrefix:   "ytsearch1:",
			TimeoutSeconds: 300,
			TagFiles:       true,
			VerifyAudio:    true,
			UpgradeFormat:  "flac",
		},
		Watcher: WatcherConfig{
			IntervalMinutes:    10,
			WatchPlaylistsFile: true,
		},
		Cleanup: CleanupConfig{
			Enabled:       false,
			RemovedAction: "prompt",
			DeleteOrphans: false,
		},
		Scan: ScanConfig{
			AudioExtensions: []string{".mp3", ".wav", ".flac", ".m4a", ".aac", ".ogg"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// LoadConfig loads configuration from a TOML file, then applies .env and
// environment overrides
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// .env next to the config file, then the working directory
	for _, envFile := range []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"} {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides settings from environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SPOTIFY_CLIENT_ID":        &c.Spotify.ClientID,
		"SPOTIFY_CLIENT_SECRET":    &c.Spotify.ClientSecret,
		"SPOTIFY_DOWNLOADS_FOLDER": &c.Paths.DownloadsFolder,
		"SPOTIFY_PLAYLISTS_FILE":   &c.Paths.PlaylistsFile,
		"SPOTIFY_LEDGER_FOLDER":    &c.Paths.LedgerFolder,
	}
	for name, target := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*target = v
		}
	}

	if v, ok := lookup("SPOTIFY_CHECK_INTERVAL"); ok && v != "" {
		minutes, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return invalid("SPOTIFY_CHECK_INTERVAL", "must be a whole number of minutes, got %q", v)
		}
		c.Watcher.IntervalMinutes = minutes
	}
	return nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# spotisync configuration
# Spotify credentials may also be supplied through SPOTIFY_CLIENT_ID and
# SPOTIFY_CLIENT_SECRET, either exported or in a .env file.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Spotify.RequestsPerSecond <= 0 {
		return invalid("spotify.requests_per_second", "must be positive")
	}
	if c.Spotify.MaxRetries < 0 {
		return invalid("spotify.max_retries", "cannot be negative")
	}

	if strings.TrimSpace(c.Paths.DownloadsFolder) == "" {
		return invalid("paths.downloads_folder", "cannot be empty")
	}
	if strings.TrimSpace(c.Paths.PlaylistsFile) == "" {
		return invalid("paths.playlists_file", "cannot be empty")
	}

	if c.Download.Backend == "" {
		return invalid("download.backend", "cannot be empty")
	}
	if c.Download.TimeoutSeconds < 0 {
		return invalid("download.timeout_seconds", "cannot be negative")
	}
	validFormats := map[string]bool{
		"mp3": true, "flac": true, "m4a": true, "opus": true, "ogg": true, "wav": true, "aac": true,
	}
	if !validFormats[c.Download.AudioFormat] {
		return invalid("download.audio_format", "unsupported format %q", c.Download.AudioFormat)
	}
	if c.Download.UpgradeFormat != "" && !validFormats[c.Download.UpgradeFormat] {
		return invalid("download.upgrade_format", "unsupported format %q", c.Download.UpgradeFormat)
	}

	c.Watcher.IntervalMinutes = ClampInterval(c.Watcher.IntervalMinutes)

	validActions := map[string]bool{
		"prompt": true, "delete": true, "keep": true, "skip": true,
	}
	if !validActions[c.Cleanup.RemovedAction] {
		return invalid("cleanup.removed_action", "must be prompt, delete, keep, or skip, got %q", c.Cleanup.RemovedAction)
	}

	if len(c.Scan.AudioExtensions) == 0 {
		return invalid("scan.audio_extensions", "at least one audio extension must be specified")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return invalid("logging.level", "invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return invalid("logging.format", "invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// RequireCredentials checks the settings needed to reach the playlist API
func (c *Config) RequireCredentials() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return invalid("spotify", "client_id and client_secret are required (or SPOTIFY_CLIENT_ID / SPOTIFY_CLIENT_SECRET)")
	}
	return nil
}

// ClampInterval bounds a watch interval to 1..1440 minutes
func ClampInterval(minutes int) int {
	if minutes < MinCheckInterval {
		return MinCheckInterval
	}
	if minutes > MaxCheckInterval {
		return MaxCheckInterval
	}
	return minutes
}

// ValidateFolder checks that path is a usable directory, creating it when
// create is set
func ValidateFolder(path string, create bool) error {
	if strings.TrimSpace(path) == "" {
		return invalid("folder", "path cannot be empty")
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		if !create {
			return invalid("folder", "%s does not exist", path)
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return invalid("folder", "cannot create %s: %v", path, err)
		}
		return nil
	}
	if err != nil {
		return invalid("folder", "cannot access %s: %v", path, err)
	}
	if !info.IsDir() {
		return invalid("folder", "%s is not a directory", path)
	}
	return nil
}

// LedgerFolder returns where a playlist's ledger is stored
func (c *Config) LedgerFolder(playlistFolder string) string {
	if c.Paths.LedgerFolder != "" {
		return c.Paths.LedgerFolder
	}
	return playlistFolder
}

// IsValidationError reports whether err carries a *ValidationError
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
