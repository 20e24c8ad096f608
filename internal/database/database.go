package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Run is one invocation of a sync over the configured playlists
type Run struct {
	ID              string     `json:"id"`
	Mode            string     `json:"mode"`
	StartedAt       time.Time  `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
	PlaylistsOK     int        `json:"playlistsOk"`
	PlaylistsFailed int        `json:"playlistsFailed"`
	Acquired        int        `json:"acquired"`
	AlreadyPresent  int        `json:"alreadyPresent"`
	SkippedSticky   int        `json:"skippedSticky"`
	Failed          int        `json:"failed"`
	RemovedFound    int        `json:"removedFound"`
	FilesDeleted    int        `json:"filesDeleted"`
	OrphansDeleted  int        `json:"orphansDeleted"`
	Error           string     `json:"error,omitempty"`
}

// PlaylistRun is the outcome of one playlist within a run
type PlaylistRun struct {
	RunID          string    `json:"runId"`
	PlaylistID     string    `json:"playlistId"`
	PlaylistName   string    `json:"playlistName"`
	Total          int       `json:"total"`
	AlreadyPresent int       `json:"alreadyPresent"`
	Acquired       int       `json:"acquired"`
	SkippedSticky  int       `json:"skippedSticky"`
	Failed         int       `json:"failed"`
	Error          string    `json:"error,omitempty"`
	RecordedAt     time.Time `json:"recordedAt"`
}

// Database wraps a *sql.DB holding the sync history. It is safe for
// concurrent use because the underlying *sql.DB is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	insertRunStmt      *sql.Stmt
	finishRunStmt      *sql.Stmt
	insertPlaylistStmt *sql.Stmt
}

// NewDatabase opens (or creates) the SQLite history database at dbPath and
// ensures all tables exist. Caller should Close() it when finished.
func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Debug("History database initialized")
	return db, nil
}

// createTables is idempotent and safe to call multiple times
func (db *Database) createTables() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		playlists_ok INTEGER DEFAULT 0,
		playlists_failed INTEGER DEFAULT 0,
		acquired INTEGER DEFAULT 0,
		already_present INTEGER DEFAULT 0,
		skipped_sticky INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		removed_found INTEGER DEFAULT 0,
		files_deleted INTEGER DEFAULT 0,
		orphans_deleted INTEGER DEFAULT 0,
		error TEXT
	);`

	playlistRunsTable := `
	CREATE TABLE IF NOT EXISTS playlist_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		playlist_id TEXT NOT NULL,
		playlist_name TEXT,
		total INTEGER DEFAULT 0,
		already_present INTEGER DEFAULT 0,
		acquired INTEGER DEFAULT 0,
		skipped_sticky INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		error TEXT,
		recorded_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);",
		"CREATE INDEX IF NOT EXISTS idx_playlist_runs_playlist ON playlist_runs(playlist_id, recorded_at);",
	}

	for _, stmt := range append([]string{runsTable, playlistRunsTable}, indices...) {
		if _, err := db.conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (db *Database) prepareStatements() error {
	var err error

	db.insertRunStmt, err = db.conn.Prepare(`INSERT INTO runs (id, mode, started_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert run statement: %w", err)
	}

	db.finishRunStmt, err = db.conn.Prepare(`
		UPDATE runs SET finished_at = ?, playlists_ok = ?, playlists_failed = ?, acquired = ?,
			already_present = ?, skipped_sticky = ?, failed = ?, removed_found = ?,
			files_deleted = ?, orphans_deleted = ?, error = ?
		WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare finish run statement: %w", err)
	}

	db.insertPlaylistStmt, err = db.conn.Prepare(`
		INSERT INTO playlist_runs (run_id, playlist_id, playlist_name, total, already_present,
			acquired, skipped_sticky, failed, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert playlist run statement: %w", err)
	}

	return nil
}

// Close closes prepared statements and the connection
func (db *Database) Close() error {
	for _, stmt := range []*sql.Stmt{db.insertRunStmt, db.finishRunStmt, db.insertPlaylistStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return db.conn.Close()
}

// StartRun records the beginning of a run and returns its ID
func (db *Database) StartRun(mode string, startedAt time.Time) (string, error) {
	id := uuid.New().String()
	if _, err := db.insertRunStmt.Exec(id, mode, startedAt.UTC()); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// RecordPlaylist stores the outcome of one playlist
func (db *Database) RecordPlaylist(pr PlaylistRun) error {
	if pr.RecordedAt.IsZero() {
		pr.RecordedAt = time.Now()
	}
	_, err := db.insertPlaylistStmt.Exec(pr.RunID, pr.PlaylistID, pr.PlaylistName, pr.Total,
		pr.AlreadyPresent, pr.Acquired, pr.SkippedSticky, pr.Failed, nullString(pr.Error), pr.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert playlist run: %w", err)
	}
	return nil
}

// FinishRun stores the aggregate counts of a finished run
func (db *Database) FinishRun(run Run) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	res, err := db.finishRunStmt.Exec(finished.UTC(), run.PlaylistsOK, run.PlaylistsFailed, run.Acquired,
		run.AlreadyPresent, run.SkippedSticky, run.Failed, run.RemovedFound,
		run.FilesDeleted, run.OrphansDeleted, nullString(run.Error), run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first
func (db *Database) RecentRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(`
		SELECT id, mode, started_at, finished_at, playlists_ok, playlists_failed, acquired,
			already_present, skipped_sticky, failed, removed_found, files_deleted, orphans_deleted, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		var runErr sql.NullString
		if err := rows.Scan(&r.ID, &r.Mode, &r.StartedAt, &finished, &r.PlaylistsOK, &r.PlaylistsFailed,
			&r.Acquired, &r.AlreadyPresent, &r.SkippedSticky, &r.Failed, &r.RemovedFound,
			&r.FilesDeleted, &r.OrphansDeleted, &runErr); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		r.Error = runErr.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PlaylistHistory returns up to limit outcomes for one playlist, newest first
func (db *Database) PlaylistHistory(playlistID string, limit int) ([]PlaylistRun, error) {
	rows, err := db.conn.Query(`
		SELECT run_id, playlist_id, playlist_name, total, already_present, acquired,
			skipped_sticky, failed, error, recorded_at
		FROM playlist_runs WHERE playlist_id = ? ORDER BY recorded_at DESC, id DESC LIMIT ?`, playlistID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist history: %w", err)
	}
	defer rows.Close()

	var history []PlaylistRun
	for rows.Next() {
		var pr PlaylistRun
		var name, runErr sql.NullString
		if err := rows.Scan(&pr.RunID, &pr.PlaylistID, &name, &pr.Total, &pr.AlreadyPresent,
			&pr.Acquired, &pr.SkippedSticky, &pr.Failed, &runErr, &pr.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan playlist run: %w", err)
		}
		pr.PlaylistName = name.String
		pr.Error = runErr.String
		history = append(history, pr)
	}
	return history, rows.Err()
}

// LastRun returns the most recent run or sql.ErrNoRows
func (db *Database) LastRun() (*Run, error) {
	runs, err := db.RecentRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, sql.ErrNoRows
	}
	return &runs[0], nil
}

// IsNotFound reports whether err means no matching history exists
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
