// Package checkpoint persists last-known playback positions. The store is a
// plain key/value surface over SQLite; the writer on top of it owns the
// async-vs-forced write policy.
package checkpoint

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"farsistream/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store is the persistence collaborator the session controller writes
// through. Get returns nil without error when no checkpoint exists.
type Store interface {
	Get(ctx context.Context, contentID int, contentType models.ContentType) (*models.Checkpoint, error)
	Put(ctx context.Context, cp models.Checkpoint) error
}

// SQLiteStore keeps one checkpoint row per (content_id, content_type) with
// last-write-wins upserts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the checkpoint database and runs
// pending migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate checkpoint db: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, contentID int, contentType models.ContentType) (*models.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT content_id, content_type, position_ms, duration_ms, quality_label, completed, updated_at
		FROM checkpoints
		WHERE content_id = ? AND content_type = ?`,
		contentID, string(contentType),
	)

	var (
		cp        models.Checkpoint
		ctype     string
		completed int
	)
	err := row.Scan(&cp.ContentID, &ctype, &cp.PositionMs, &cp.DurationMs, &cp.QualityLabel, &completed, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	cp.ContentType = models.ContentType(ctype)
	cp.Completed = completed != 0
	return &cp, nil
}

func (s *SQLiteStore) Put(ctx context.Context, cp models.Checkpoint) error {
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	completed := 0
	if cp.Completed {
		completed = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (content_id, content_type, position_ms, duration_ms, quality_label, completed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_id, content_type) DO UPDATE SET
			position_ms = excluded.position_ms,
			duration_ms = excluded.duration_ms,
			quality_label = excluded.quality_label,
			completed = excluded.completed,
			updated_at = excluded.updated_at`,
		cp.ContentID, string(cp.ContentType), cp.PositionMs, cp.DurationMs, cp.QualityLabel, completed, cp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
