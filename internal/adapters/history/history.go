// Package history persists generation attempts to SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // driver

	"github.com/okian/levitate/internal/domain/model"
	"github.com/okian/levitate/pkg/errs"
)

// MaxLimit caps Recent.
const MaxLimit = 100

// ErrInvalidLimit is returned for limits outside [1, MaxLimit].
var ErrInvalidLimit = errors.New("invalid history limit")

// Store is a SQLite-backed generation log.
type Store struct {
	db *sql.DB
}

// Open creates the database file and its parent directory if needed and
// applies the schema.
func Open(path string) (*Store, error) {
	const op = "history.Open"
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.WrapKind(op, errs.ErrInternal, fmt.Errorf("create %s: %w", dir, err))
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrInternal, fmt.Errorf("open sqlite db: %w", err))
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errs.WrapKind(op, errs.ErrInternal, fmt.Errorf("ping sqlite db: %w", err))
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, errs.WrapKind(op, errs.ErrInternal, fmt.Errorf("migration failed: %w", err))
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS generations (
		id TEXT PRIMARY KEY,
		source_key TEXT NOT NULL,
		stage TEXT NOT NULL,
		outcome TEXT NOT NULL,
		energy TEXT,
		mood TEXT,
		tempo REAL,
		prompt TEXT,
		seed INTEGER,
		image_key TEXT,
		error TEXT,
		duration_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations(created_at DESC);
	`)
	return err
}

// Record inserts rec, replacing any row with the same id.
func (s *Store) Record(ctx context.Context, rec model.GenerationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO generations
			(id, source_key, stage, outcome, energy, mood, tempo, prompt, seed, image_key, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SourceKey, string(rec.Stage), string(rec.Outcome),
		string(rec.Labels.Energy), string(rec.Labels.Mood), rec.Tempo,
		rec.Prompt, rec.Seed, rec.ImageKey, rec.Error,
		rec.Duration.Milliseconds(), rec.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return errs.WrapKind("history.Record", errs.ErrInternal, fmt.Errorf("insert generation: %w", err))
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]model.GenerationRecord, error) {
	const op = "history.Recent"
	if limit < 1 || limit > MaxLimit {
		return nil, errs.WrapKind(op, errs.ErrValidation, ErrInvalidLimit)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_key, stage, outcome, IFNULL(energy, ''), IFNULL(mood, ''), IFNULL(tempo, 0),
			IFNULL(prompt, ''), IFNULL(seed, 0), IFNULL(image_key, ''), IFNULL(error, ''),
			IFNULL(duration_ms, 0), created_at
		FROM generations
		ORDER BY created_at DESC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrInternal, fmt.Errorf("query generations: %w", err))
	}
	defer rows.Close()

	out := make([]model.GenerationRecord, 0, limit)
	for rows.Next() {
		var (
			rec                       model.GenerationRecord
			stage, outcome            string
			energy, mood              string
			durationMS, createdAtNano int64
		)
		if err := rows.Scan(&rec.ID, &rec.SourceKey, &stage, &outcome, &energy, &mood, &rec.Tempo,
			&rec.Prompt, &rec.Seed, &rec.ImageKey, &rec.Error, &durationMS, &createdAtNano); err != nil {
			return nil, errs.WrapKind(op, errs.ErrInternal, fmt.Errorf("scan generation: %w", err))
		}
		rec.Stage = model.Stage(stage)
		rec.Outcome = model.Stage(outcome)
		rec.Labels = model.Labels{Energy: model.Energy(energy), Mood: model.Mood(mood)}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.CreatedAt = time.Unix(0, createdAtNano).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.WrapKind(op, errs.ErrInternal, fmt.Errorf("iterate generations: %w", err))
	}
	return out, nil
}
