package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dkeye/CoWatch/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS videos (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	url            TEXT NOT NULL,
	last_play_time REAL NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS playback_state (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	video_id TEXT NOT NULL DEFAULT '',
	position REAL NOT NULL DEFAULT 0,
	playing  INTEGER NOT NULL DEFAULT 0
);`

// SQLite keeps the catalog and the single playback-state row.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database file at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) List(ctx context.Context) ([]domain.Video, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, url, last_play_time FROM videos ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	videos := []domain.Video{}
	for rows.Next() {
		var v domain.Video
		if err := rows.Scan(&v.ID, &v.Name, &v.URL, &v.LastPlayTime); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func (s *SQLite) Lookup(ctx context.Context, id domain.VideoID) (domain.Video, bool, error) {
	var v domain.Video
	err := s.db.QueryRowContext(ctx, `SELECT id, name, url, last_play_time FROM videos WHERE id = ?`, string(id)).
		Scan(&v.ID, &v.Name, &v.URL, &v.LastPlayTime)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Video{}, false, nil
	}
	if err != nil {
		return domain.Video{}, false, fmt.Errorf("lookup video: %w", err)
	}
	return v, true, nil
}

func (s *SQLite) Add(ctx context.Context, v domain.Video) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO videos (id, name, url, last_play_time, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(v.ID), v.Name, v.URL, v.LastPlayTime, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id domain.VideoID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, string(id))
	if err != nil {
		return false, fmt.Errorf("delete video: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete video: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) LoadState(ctx context.Context) (domain.PlaybackState, error) {
	var st domain.PlaybackState
	err := s.db.QueryRowContext(ctx, `SELECT video_id, position, playing FROM playback_state WHERE id = 1`).
		Scan(&st.VideoID, &st.Position, &st.Playing)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cleared(), nil
	}
	if err != nil {
		return domain.PlaybackState{}, fmt.Errorf("load playback state: %w", err)
	}
	return st, nil
}

func (s *SQLite) SaveState(ctx context.Context, st domain.PlaybackState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO playback_state (id, video_id, position, playing) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			video_id = excluded.video_id,
			position = excluded.position,
			playing  = excluded.playing`,
		string(st.VideoID), st.Position, st.Playing)
	if err != nil {
		return fmt.Errorf("save playback state: %w", err)
	}
	return nil
}
