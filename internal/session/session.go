// Package session mounts a board in a room: it restores the local snapshot,
// wires the engine to the room's channels, autosaves and hydrates from the
// hub.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	boardnet "LessonBoard/internal/net"
	"LessonBoard/internal/protocol"
	"LessonBoard/internal/schedule"
	"LessonBoard/internal/state"
	"LessonBoard/internal/storage"
)

const (
	DefaultAutosaveInterval = 10 * time.Second
	DefaultHydrateTimeout   = 10 * time.Second
)

var ErrMounted = errors.New("session already mounted")

// Hydrator fetches the strokes the backend has persisted for a room.
type Hydrator interface {
	FetchStrokes(ctx context.Context, room string) ([]state.Stroke, error)
}

type Options struct {
	Room        string
	Participant string

	Transport boardnet.Transport
	Hydrator  Hydrator   // optional
	KV        storage.KV // defaults to an in-memory store

	Scheduler        schedule.Scheduler
	DeltaInterval    time.Duration
	AutosaveInterval time.Duration
	HydrateTimeout   time.Duration
	Clock            state.Clock
	NewID            state.IDSource
	Logger           *slog.Logger
}

// Session is the orchestrator between one engine, the transport and
// storage. It is the engine's Outbox.
type Session struct {
	room      string
	engine    *state.Engine
	transport boardnet.Transport
	hydrator  Hydrator
	snaps     *storage.Snapshots
	sched     schedule.Scheduler
	autosave  time.Duration
	hydrateTO time.Duration
	log       *slog.Logger

	mu           sync.Mutex
	mounted      bool
	unsubscribe  []func()
	stopAutosave func()
	stopHydrate  context.CancelFunc
	wg           sync.WaitGroup
}

func New(opts Options) (*Session, error) {
	if opts.Room == "" {
		return nil, errors.New("room is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if opts.KV == nil {
		opts.KV = storage.NewMemoryKV()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.Ticker{}
	}
	if opts.AutosaveInterval <= 0 {
		opts.AutosaveInterval = DefaultAutosaveInterval
	}
	if opts.HydrateTimeout <= 0 {
		opts.HydrateTimeout = DefaultHydrateTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Session{
		room:      opts.Room,
		transport: opts.Transport,
		hydrator:  opts.Hydrator,
		snaps:     storage.NewSnapshots(opts.KV, opts.Room, opts.Logger),
		sched:     opts.Scheduler,
		autosave:  opts.AutosaveInterval,
		hydrateTO: opts.HydrateTimeout,
		log:       opts.Logger.With("component", "session", "room", opts.Room),
	}
	s.engine = state.NewEngine(state.Options{
		Room:          opts.Room,
		Participant:   opts.Participant,
		Outbox:        s,
		Persister:     s.snaps,
		Scheduler:     opts.Scheduler,
		DeltaInterval: opts.DeltaInterval,
		Clock:         opts.Clock,
		NewID:         opts.NewID,
		Logger:        opts.Logger,
	})
	return s, nil
}

func (s *Session) Engine() *state.Engine { return s.engine }

// Mount restores the snapshot, subscribes the room topics and starts
// autosave. Hydration runs in the background; ctx bounds it.
func (s *Session) Mount(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mounted {
		return ErrMounted
	}
	s.mounted = true

	restored := s.engine.Load(s.snaps.Load())
	s.log.Info("restored board snapshot", "strokes", restored)

	for _, k := range protocol.Kinds {
		s.unsubscribe = append(s.unsubscribe, s.transport.Subscribe(protocol.TopicChannel(s.room, k), s.receiver(k)))
	}
	s.stopAutosave = s.sched.Every(s.autosave, s.engine.Persist)

	hctx, cancel := context.WithTimeout(ctx, s.hydrateTO)
	s.stopHydrate = cancel
	if s.hydrator != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer cancel()
			s.hydrate(hctx)
		}()
	}
	return nil
}

func (s *Session) hydrate(ctx context.Context) {
	strokes, err := s.hydrator.FetchStrokes(ctx, s.room)
	if err != nil {
		s.log.Warn("hydration failed, keeping local board", "err", err)
		return
	}
	added := s.engine.MergeHydrated(strokes)
	s.log.Info("hydrated board", "fetched", len(strokes), "added", added)
}

// Close ends any stroke still in progress, unsubscribes, stops the timers,
// waits for hydration and saves a final snapshot. Closing an unmounted
// session is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted {
		return
	}
	s.mounted = false

	// peers already hold the stroke from its deltas
	s.engine.EndStroke()
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.unsubscribe = nil
	s.stopAutosave()
	s.engine.Close()
	s.stopHydrate()
	s.wg.Wait()
	s.engine.Persist()
	s.log.Info("unmounted")
}

func (s *Session) receiver(kind protocol.Kind) boardnet.Handler {
	return func(payload []byte) {
		m, err := protocol.Decode(payload)
		if err != nil {
			s.log.Warn("dropping inbound message", "channel", kind, "err", err)
			return
		}
		if m.Kind() != kind {
			s.log.Warn("dropping inbound message", "channel", kind, "type", m.Kind())
			return
		}
		switch m := m.(type) {
		case *protocol.DeltaMessage:
			s.engine.ReceiveDelta(m.Delta)
		case *protocol.StrokeMessage:
			s.engine.ReceiveStroke(m.Stroke)
		case *protocol.ClearMessage:
			s.engine.ReceiveClear(m.Owner)
		case *protocol.UndoMessage:
			s.engine.ReceiveUndo(m.ID, m.Owner)
		}
	}
}

func (s *Session) SendDelta(d state.Delta)    { s.publish(&protocol.DeltaMessage{Delta: d}) }
func (s *Session) SendStroke(st state.Stroke) { s.publish(&protocol.StrokeMessage{Stroke: st}) }
func (s *Session) SendClear(owner string)     { s.publish(&protocol.ClearMessage{Owner: owner}) }
func (s *Session) SendUndo(id, owner string)  { s.publish(&protocol.UndoMessage{ID: id, Owner: owner}) }

func (s *Session) publish(m protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		s.log.Error("failed to encode message", "type", m.Kind(), "err", err)
		return
	}
	if err := s.transport.Publish(protocol.SendChannel(s.room, m.Kind()), data); err != nil {
		s.log.Warn("publish failed", "type", m.Kind(), "err", err)
	}
}
