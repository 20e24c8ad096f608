package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	t.Run("CreatesDefaultFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conf", "config.toml")
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected default config file to be written: %v", err)
		}
		if cfg.Paths.DownloadsFolder != "downloaded_songs" {
			t.Errorf("Expected default downloads folder, got %s", cfg.Paths.DownloadsFolder)
		}
		if cfg.Watcher.IntervalMinutes != 10 {
			t.Errorf("Expected default interval 10, got %d", cfg.Watcher.IntervalMinutes)
		}

		reloaded, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("Reloading default config failed: %v", err)
		}
		if reloaded.Download.AudioFormat != cfg.Download.AudioFormat {
			t.Errorf("Expected round-trip audio format %s, got %s", cfg.Download.AudioFormat, reloaded.Download.AudioFormat)
		}
	})

	t.Run("ParsesFileAndClampsInterval", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		content := `
[paths]
downloads_folder = "/music"
ledger_folder = "/ledgers"

[watcher]
interval_minutes = 5000

[cleanup]
removed_action = "delete"
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Paths.DownloadsFolder != "/music" {
			t.Errorf("Expected /music, got %s", cfg.Paths.DownloadsFolder)
		}
		if cfg.Watcher.IntervalMinutes != MaxCheckInterval {
			t.Errorf("Expected interval clamped to %d, got %d", MaxCheckInterval, cfg.Watcher.IntervalMinutes)
		}
		if cfg.Cleanup.RemovedAction != "delete" {
			t.Errorf("Expected delete, got %s", cfg.Cleanup.RemovedAction)
		}
		if cfg.LedgerFolder("/music/Mix") != "/ledgers" {
			t.Errorf("Expected configured ledger folder, got %s", cfg.LedgerFolder("/music/Mix"))
		}
	})

	t.Run("InvalidFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
		_, err := LoadConfig(path)
		if err == nil {
			t.Fatal("Expected error for invalid log level")
		}
		if !IsValidationError(err) {
			t.Errorf("Expected ValidationError, got %v", err)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SPOTIFY_CLIENT_ID":        "id",
		"SPOTIFY_CLIENT_SECRET":    "secret",
		"SPOTIFY_DOWNLOADS_FOLDER": "/dl",
		"SPOTIFY_PLAYLISTS_FILE":   "/lists.txt",
		"SPOTIFY_CHECK_INTERVAL":   "0",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Spotify.ClientID != "id" || cfg.Spotify.ClientSecret != "secret" {
		t.Error("Expected credentials from environment")
	}
	if cfg.Paths.DownloadsFolder != "/dl" || cfg.Paths.PlaylistsFile != "/lists.txt" {
		t.Error("Expected paths from environment")
	}
	if cfg.Watcher.IntervalMinutes != MinCheckInterval {
		t.Errorf("Expected interval clamped to %d, got %d", MinCheckInterval, cfg.Watcher.IntervalMinutes)
	}
	if err := cfg.RequireCredentials(); err != nil {
		t.Errorf("Unexpected credentials error: %v", err)
	}

	env["SPOTIFY_CHECK_INTERVAL"] = "often"
	if err := DefaultConfig().ApplyEnv(lookup); !IsValidationError(err) {
		t.Errorf("Expected ValidationError for bad interval, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"EmptyDownloads", func(c *Config) { c.Paths.DownloadsFolder = " " }},
		{"BadFormat", func(c *Config) { c.Download.AudioFormat = "wma" }},
		{"BadAction", func(c *Config) { c.Cleanup.RemovedAction = "burn" }},
		{"NoExtensions", func(c *Config) { c.Scan.AudioExtensions = nil }},
		{"BadLogFormat", func(c *Config) { c.Logging.Format = "xml" }},
		{"ZeroRate", func(c *Config) { c.Spotify.RequestsPerSecond = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); !IsValidationError(err) {
				t.Errorf("Expected ValidationError, got %v", err)
			}
		})
	}

	if err := DefaultConfig().RequireCredentials(); !IsValidationError(err) {
		t.Errorf("Expected missing credentials to fail, got %v", err)
	}
}

func TestValidateFolder(t *testing.T) {
	dir := t.TempDir()

	if err := ValidateFolder(dir, false); err != nil {
		t.Errorf("Existing folder should validate: %v", err)
	}

	missing := filepath.Join(dir, "a", "b")
	if err := ValidateFolder(missing, false); !IsValidationError(err) {
		t.Errorf("Expected ValidationError for missing folder, got %v", err)
	}
	if err := ValidateFolder(missing, true); err != nil {
		t.Errorf("Expected folder to be created: %v", err)
	}
	if info, err := os.Stat(missing); err != nil || !info.IsDir() {
		t.Error("Expected created directory")
	}

	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := ValidateFolder(file, true); !IsValidationError(err) {
		t.Errorf("Expected ValidationError for file path, got %v", err)
	}
	if err := ValidateFolder("", true); !IsValidationError(err) {
		t.Errorf("Expected ValidationError for empty path, got %v", err)
	}
}
