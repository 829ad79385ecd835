package state

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"LessonBoard/internal/schedule"
)

// Outbox receives every message the engine wants broadcast to the room.
// The engine never calls it while holding its own lock.
type Outbox interface {
	SendDelta(d Delta)
	SendStroke(s Stroke)
	SendClear(owner string)
	SendUndo(id, owner string)
}

// Persister stores the committed stroke set of one room.
type Persister interface {
	Save(strokes []Stroke) error
	Clear() error
}

// maxDeltaGap caps how far past the assembled points a remote delta may
// start, so one message cannot reserve a whole stroke's worth of slots.
const maxDeltaGap = 1024

const (
	DefaultColor = "#000000"
	DefaultWidth = 2.0
)

type Options struct {
	Room        string
	Participant string // empty means no known identity

	Outbox        Outbox
	Persister     Persister
	Scheduler     schedule.Scheduler
	DeltaInterval time.Duration
	Clock         Clock
	NewID         IDSource
	Logger        *slog.Logger
}

// Engine is the single source of truth for one board. Local intents and
// remote messages both go through its methods.
type Engine struct {
	room        string
	participant string
	out         Outbox
	persist     Persister
	clock       Clock
	newID       IDSource
	log         *slog.Logger

	mu       sync.Mutex
	strokes  []Stroke
	current  *Stroke
	redo     []Stroke // front is the most recently undone
	sealed   map[string]struct{}
	assembly map[string]*assembly
	color    string
	width    float64
	tool     Tool
	tx       deltaTransmitter
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		room:        opts.Room,
		participant: opts.Participant,
		out:         opts.Outbox,
		persist:     opts.Persister,
		clock:       opts.Clock,
		newID:       opts.NewID,
		log:         opts.Logger,
		sealed:      make(map[string]struct{}),
		assembly:    make(map[string]*assembly),
		color:       DefaultColor,
		width:       DefaultWidth,
		tool:        ToolPen,
	}
	if e.out == nil {
		e.out = nopOutbox{}
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.newID == nil {
		e.newID = NewStrokeID
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	e.log = e.log.With("component", "board", "room", e.room)

	sched := opts.Scheduler
	if sched == nil {
		sched = schedule.Ticker{}
	}
	interval := opts.DeltaInterval
	if interval <= 0 {
		interval = DefaultDeltaInterval
	}
	e.tx = deltaTransmitter{sched: sched, interval: interval}
	return e
}

func (e *Engine) Room() string        { return e.room }
func (e *Engine) Participant() string { return e.participant }

// Strokes returns a copy of the committed set in board order.
func (e *Engine) Strokes() []Stroke {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneStrokes(e.strokes)
}

// Current returns the in-progress stroke, if any, for live rendering.
func (e *Engine) Current() (Stroke, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return Stroke{}, false
	}
	return e.current.Clone(), true
}

func (e *Engine) Drawing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

func (e *Engine) RedoDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.redo)
}

func (e *Engine) SetColor(color string) error {
	if color == "" {
		return errors.New("empty color")
	}
	e.mu.Lock()
	e.color = color
	e.mu.Unlock()
	return nil
}

func (e *Engine) SetWidth(width float64) error {
	if width <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidWidth, width)
	}
	e.mu.Lock()
	e.width = width
	e.mu.Unlock()
	return nil
}

func (e *Engine) SetTool(tool Tool) error {
	if !tool.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTool, tool)
	}
	e.mu.Lock()
	e.tool = tool
	e.mu.Unlock()
	return nil
}

// StartStroke begins a stroke owned by the local participant. Any stroke
// still in progress is ended first.
func (e *Engine) StartStroke(p Point) {
	e.mu.Lock()
	prev, hadPrev := e.commitCurrentLocked()
	now := e.clock()
	e.current = &Stroke{
		ID:        e.newID(now),
		Points:    []Point{p},
		Color:     e.color,
		Width:     e.width,
		Tool:      e.tool,
		Timestamp: now.UnixMilli(),
		Owner:     e.participant,
	}
	e.redo = nil
	e.tx.start(e.flushDelta)
	e.mu.Unlock()

	if hadPrev {
		e.out.SendStroke(prev)
	}
}

func (e *Engine) AddPoint(p Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return
	}
	e.current.Points = append(e.current.Points, p)
}

// EndStroke commits the in-progress stroke and broadcasts it whole, which
// also covers any points a delta never delivered.
func (e *Engine) EndStroke() {
	e.mu.Lock()
	s, ok := e.commitCurrentLocked()
	e.mu.Unlock()
	if ok {
		e.out.SendStroke(s)
	}
}

func (e *Engine) commitCurrentLocked() (Stroke, bool) {
	if e.current == nil {
		return Stroke{}, false
	}
	s := *e.current
	e.current = nil
	e.tx.halt()
	e.upsertLocked(s)
	e.sealed[s.ID] = struct{}{}
	return s.Clone(), true
}

// flushDelta runs on the transmitter tick started for generation gen. A tick
// from an earlier stroke that fires after a restart sends nothing.
func (e *Engine) flushDelta(gen uint64) {
	e.mu.Lock()
	if gen != e.tx.gen {
		e.mu.Unlock()
		return
	}
	if e.current == nil {
		e.tx.halt()
		e.mu.Unlock()
		return
	}
	d, ok := e.tx.take(e.current)
	e.mu.Unlock()
	if ok {
		e.out.SendDelta(d)
	}
}

// Clear removes the local participant's strokes, or every stroke when no
// identity is known.
func (e *Engine) Clear() {
	e.mu.Lock()
	if e.participant == "" {
		e.removeLocked(func(Stroke) bool { return true })
	} else {
		e.removeLocked(func(s Stroke) bool { return s.OwnedBy(e.participant) })
	}
	e.current = nil
	e.tx.halt()
	e.redo = nil
	remaining := cloneStrokes(e.strokes)
	e.mu.Unlock()

	e.store(remaining)
	e.out.SendClear(e.participant)
}

// Undo removes the most recently committed stroke owned by the local
// participant. It reports false when there is nothing to undo.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	idx := -1
	for i := len(e.strokes) - 1; i >= 0; i-- {
		if e.strokes[i].OwnedBy(e.participant) {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return false
	}
	s := e.strokes[idx]
	e.strokes = removeAt(e.strokes, idx)
	e.redo = append([]Stroke{s}, e.redo...)
	e.mu.Unlock()

	e.out.SendUndo(s.ID, e.participant)
	return true
}

// Redo re-commits the most recently undone stroke. It reports false when
// the redo stack is empty.
func (e *Engine) Redo() bool {
	e.mu.Lock()
	if len(e.redo) == 0 {
		e.mu.Unlock()
		return false
	}
	s := e.redo[0]
	e.redo = e.redo[1:]
	e.upsertLocked(s)
	e.sealed[s.ID] = struct{}{}
	out := s.Clone()
	e.mu.Unlock()

	e.out.SendStroke(out)
	return true
}

// isEcho needs both identities: a message without an owner, or an engine
// without a participant, is always applied.
func (e *Engine) isEcho(owner string) bool {
	return owner != "" && e.participant != "" && owner == e.participant
}

// ReceiveStroke applies a complete stroke from a peer, replacing any stroke
// with the same id in place.
func (e *Engine) ReceiveStroke(s Stroke) {
	if err := s.Validate(); err != nil {
		e.log.Warn("dropping remote stroke", "err", err)
		return
	}
	if e.isEcho(s.Owner) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.upsertLocked(s.Clone())
	e.sealed[s.ID] = struct{}{}
	delete(e.assembly, s.ID)
}

// ReceiveDelta merges an incremental batch of points. The first delta of an
// unseen stroke creates it; deltas for finalized or removed strokes are stale.
func (e *Engine) ReceiveDelta(d Delta) {
	if err := d.Validate(); err != nil {
		e.log.Warn("dropping remote delta", "err", err)
		return
	}
	if e.isEcho(d.Owner) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sealed[d.StrokeID]; ok {
		return
	}
	a := e.assembly[d.StrokeID]
	if d.StartIndex > a.len()+maxDeltaGap {
		e.log.Warn("dropping remote delta", "stroke", d.StrokeID, "start", d.StartIndex, "assembled", a.len())
		return
	}
	if a == nil {
		a = &assembly{}
		e.assembly[d.StrokeID] = a
	}
	a.place(d.StartIndex, d.Points)

	if i := e.indexLocked(d.StrokeID); i >= 0 {
		e.strokes[i].Points = a.points()
		return
	}
	e.strokes = append(e.strokes, Stroke{
		ID:        d.StrokeID,
		Points:    a.points(),
		Color:     d.Color,
		Width:     d.Width,
		Tool:      d.Tool,
		Timestamp: e.clock().UnixMilli(),
		Owner:     d.Owner,
	})
}

// ReceiveUndo removes the stroke with id whatever its owner; the sender is
// trusted to only undo its own strokes.
func (e *Engine) ReceiveUndo(id, owner string) {
	if id == "" {
		e.log.Warn("dropping remote undo without stroke id")
		return
	}
	if e.isEcho(owner) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(func(s Stroke) bool { return s.ID == id })
	e.sealed[id] = struct{}{}
}

// ReceiveClear removes owner's strokes, or every stroke when owner is empty.
func (e *Engine) ReceiveClear(owner string) {
	if e.isEcho(owner) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if owner == "" {
		e.removeLocked(func(Stroke) bool { return true })
		return
	}
	e.removeLocked(func(s Stroke) bool { return s.Owner == owner })
}

// Load pre-populates the board from the local snapshot.
func (e *Engine) Load(strokes []Stroke) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mergeLocked(strokes)
}

// MergeHydrated folds in the strokes persisted by the backend and orders
// the board by creation time, so the initial order never depends on which
// source answered first.
func (e *Engine) MergeHydrated(strokes []Stroke) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.mergeLocked(strokes)
	sort.SliceStable(e.strokes, func(i, j int) bool {
		return e.strokes[i].Timestamp < e.strokes[j].Timestamp
	})
	return n
}

// mergeLocked adds strokes whose ids are neither present nor removed.
func (e *Engine) mergeLocked(strokes []Stroke) int {
	added := 0
	for _, s := range strokes {
		if err := s.Validate(); err != nil {
			e.log.Warn("skipping stored stroke", "err", err)
			continue
		}
		if e.indexLocked(s.ID) >= 0 {
			continue
		}
		if _, ok := e.sealed[s.ID]; ok {
			continue
		}
		e.strokes = append(e.strokes, s.Clone())
		e.sealed[s.ID] = struct{}{}
		added++
	}
	return added
}

// Persist writes the committed set through the configured Persister.
func (e *Engine) Persist() {
	e.store(e.Strokes())
}

func (e *Engine) store(strokes []Stroke) {
	if e.persist == nil {
		return
	}
	var err error
	if len(strokes) == 0 {
		err = e.persist.Clear()
	} else {
		err = e.persist.Save(strokes)
	}
	if err != nil {
		e.log.Error("failed to persist board", "strokes", len(strokes), "err", err)
	}
}

// Close stops the delta timer. The board contents are left untouched.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tx.halt()
}

func (e *Engine) indexLocked(id string) int {
	for i := range e.strokes {
		if e.strokes[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) upsertLocked(s Stroke) {
	if i := e.indexLocked(s.ID); i >= 0 {
		e.strokes[i] = s
		return
	}
	e.strokes = append(e.strokes, s)
}

func (e *Engine) removeLocked(match func(Stroke) bool) {
	kept := make([]Stroke, 0, len(e.strokes))
	for _, s := range e.strokes {
		if match(s) {
			e.sealed[s.ID] = struct{}{}
			delete(e.assembly, s.ID)
			continue
		}
		kept = append(kept, s)
	}
	e.strokes = kept
}

func removeAt(strokes []Stroke, i int) []Stroke {
	out := make([]Stroke, 0, len(strokes)-1)
	out = append(out, strokes[:i]...)
	return append(out, strokes[i+1:]...)
}

type nopOutbox struct{}

func (nopOutbox) SendDelta(Delta)         {}
func (nopOutbox) SendStroke(Stroke)       {}
func (nopOutbox) SendClear(string)        {}
func (nopOutbox) SendUndo(string, string) {}
