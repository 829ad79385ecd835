package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"LessonBoard/internal/state"
)

const snapshotPrefix = "whiteboard:"

// Snapshots caches one room's committed strokes in a KV. It is a best-effort
// cache: Load never fails, it falls back to an empty board.
type Snapshots struct {
	kv   KV
	room string
	log  *slog.Logger
}

func NewSnapshots(kv KV, room string, log *slog.Logger) *Snapshots {
	if log == nil {
		log = slog.Default()
	}
	return &Snapshots{kv: kv, room: room, log: log.With("component", "snapshot", "room", room)}
}

// Key is room scoped so boards of different rooms never collide.
func (s *Snapshots) Key() string {
	return snapshotPrefix + s.room
}

func (s *Snapshots) Load() []state.Stroke {
	raw, err := s.kv.Get(s.Key())
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		s.log.Error("failed to read board snapshot", "err", err)
		return nil
	}
	var strokes []state.Stroke
	if err := json.Unmarshal(raw, &strokes); err != nil {
		s.log.Error("discarding corrupt board snapshot", "err", err)
		return nil
	}
	return strokes
}

func (s *Snapshots) Save(strokes []state.Stroke) error {
	if strokes == nil {
		strokes = []state.Stroke{}
	}
	raw, err := json.Marshal(strokes)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.kv.Set(s.Key(), raw); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (s *Snapshots) Clear() error {
	if err := s.kv.Remove(s.Key()); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}
