package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"LessonBoard/internal/state"
)

// SQLStore is the relay's durable stroke store, one row per (room, stroke).
type SQLStore struct {
	db  *sql.DB
	log *slog.Logger
}

func OpenSQLStore(path string, log *slog.Logger) (*SQLStore, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway; one connection also keeps
	// ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	s := &SQLStore{db: db, log: log.With("component", "strokestore")}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init() error {
	if _, err := s.db.Exec(
		`CREATE TABLE IF NOT EXISTS strokes (
		room text not null,
		id text not null,
		owner text not null default '',
		created_at integer not null,
		body text not null,
		primary key (room, id)
		)`,
	); err != nil {
		return fmt.Errorf("failed to create strokes table: %w", err)
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS strokes_room_created ON strokes (room, created_at)`); err != nil {
		return fmt.Errorf("failed to create strokes index: %w", err)
	}
	s.log.Info("Ensured stroke tables exist")
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// SaveStroke inserts the stroke or replaces the stored copy with the same id.
func (s *SQLStore) SaveStroke(ctx context.Context, room string, stroke state.Stroke) error {
	body, err := json.Marshal(stroke)
	if err != nil {
		return fmt.Errorf("failed to encode stroke: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO strokes (room, id, owner, created_at, body) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (room, id) DO UPDATE SET owner = excluded.owner, created_at = excluded.created_at, body = excluded.body`,
		room, stroke.ID, stroke.Owner, stroke.Timestamp, string(body),
	); err != nil {
		return fmt.Errorf("failed to save stroke %s: %w", stroke.ID, err)
	}
	return nil
}

func (s *SQLStore) DeleteStroke(ctx context.Context, room, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM strokes WHERE room = ? AND id = ?`, room, id); err != nil {
		return fmt.Errorf("failed to delete stroke %s: %w", id, err)
	}
	return nil
}

// ClearStrokes deletes owner's strokes in room, or the whole room when owner
// is empty.
func (s *SQLStore) ClearStrokes(ctx context.Context, room, owner string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if owner == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM strokes WHERE room = ?`, room)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM strokes WHERE room = ? AND owner = ?`, room, owner)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear strokes: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListStrokes returns room's strokes in creation order.
func (s *SQLStore) ListStrokes(ctx context.Context, room string) ([]state.Stroke, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM strokes WHERE room = ? ORDER BY created_at, rowid`, room)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			s.log.Error("failed to close rows", "err", err)
		}
	}(rows)

	strokes := []state.Stroke{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		var st state.Stroke
		if err := json.Unmarshal([]byte(body), &st); err != nil {
			s.log.Warn("skipping undecodable stroke row", "room", room, "err", err)
			continue
		}
		strokes = append(strokes, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate: %w", err)
	}
	return strokes, nil
}
