package videodb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"dracin/internal/config"
)

const schemaVersion = 1

// Store records acquisition history backed by SQLite: one row per fetched
// episode plus a per-drama completion summary. The ledger remains the source
// of truth for the cursor; this index serves the status API and post-hoc
// inspection.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the acquisition database under LogDir.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "dracin.db"))
}

// OpenPath opens the database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS episodes (
			drama_id   TEXT    NOT NULL,
			episode    INTEGER NOT NULL,
			message_id INTEGER NOT NULL DEFAULT 0,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			duration_s INTEGER NOT NULL DEFAULT 0,
			file_path  TEXT    NOT NULL,
			fetched_at TEXT    NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (drama_id, episode)
		)`,
		`CREATE TABLE IF NOT EXISTS dramas (
			drama_id     TEXT    PRIMARY KEY,
			title        TEXT    NOT NULL,
			episodes     INTEGER NOT NULL,
			completed_at TEXT    NOT NULL DEFAULT (datetime('now'))
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	var version int
	err = tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("database has schema version %d, expected %d (delete %s to rebuild)", version, schemaVersion, s.path)
	}

	return tx.Commit()
}

// Episode is one recorded acquisition.
type Episode struct {
	DramaID         string
	Episode         int
	MessageID       int64
	SizeBytes       int64
	DurationSeconds int
	FilePath        string
}

// Drama is one completed item summary.
type Drama struct {
	DramaID  string
	Title    string
	Episodes int
}

// UpsertEpisode records a fetched episode. Re-recording the same episode
// overwrites the previous row so a re-run after partial loss stays clean.
func (s *Store) UpsertEpisode(ctx context.Context, ep Episode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (drama_id, episode, message_id, size_bytes, duration_s, file_path)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (drama_id, episode) DO UPDATE SET
			message_id = excluded.message_id,
			size_bytes = excluded.size_bytes,
			duration_s = excluded.duration_s,
			file_path  = excluded.file_path,
			fetched_at = datetime('now')`,
		ep.DramaID, ep.Episode, ep.MessageID, ep.SizeBytes, ep.DurationSeconds, ep.FilePath)
	if err != nil {
		return fmt.Errorf("upsert episode %s ep%d: %w", ep.DramaID, ep.Episode, err)
	}
	return nil
}

// UpsertDrama records a completed item.
func (s *Store) UpsertDrama(ctx context.Context, d Drama) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dramas (drama_id, title, episodes)
		VALUES (?, ?, ?)
		ON CONFLICT (drama_id) DO UPDATE SET
			title        = excluded.title,
			episodes     = excluded.episodes,
			completed_at = datetime('now')`,
		d.DramaID, d.Title, d.Episodes)
	if err != nil {
		return fmt.Errorf("upsert drama %s: %w", d.DramaID, err)
	}
	return nil
}

// EpisodesFor returns the recorded episodes of one drama ordered by episode
// number.
func (s *Store) EpisodesFor(ctx context.Context, dramaID string) ([]Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT drama_id, episode, message_id, size_bytes, duration_s, file_path
		FROM episodes WHERE drama_id = ? ORDER BY episode`, dramaID)
	if err != nil {
		return nil, fmt.Errorf("query episodes for %s: %w", dramaID, err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		var ep Episode
		if err := rows.Scan(&ep.DramaID, &ep.Episode, &ep.MessageID, &ep.SizeBytes, &ep.DurationSeconds, &ep.FilePath); err != nil {
			return nil, fmt.Errorf("scan episode row: %w", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// DramaCount reports how many dramas have a completion row.
func (s *Store) DramaCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM dramas").Scan(&n); err != nil {
		return 0, fmt.Errorf("count dramas: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
