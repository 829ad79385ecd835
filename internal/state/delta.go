package state

import (
	"time"

	"LessonBoard/internal/schedule"
)

// DefaultDeltaInterval bounds outbound chatter to one delta per window per
// active stroke.
const DefaultDeltaInterval = 50 * time.Millisecond

// deltaTransmitter batches the points appended to the active stroke and hands
// them out once per tick. It is owned by the Engine and only touched with the
// engine lock held.
type deltaTransmitter struct {
	sched    schedule.Scheduler
	interval time.Duration
	stop     func()
	lastSent int
	gen      uint64 // bumped on every start and halt
}

func (t *deltaTransmitter) start(tick func(gen uint64)) {
	t.halt()
	gen := t.gen
	t.stop = t.sched.Every(t.interval, func() { tick(gen) })
}

func (t *deltaTransmitter) halt() {
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
	t.lastSent = 0
	t.gen++
}

// take returns the unsent tail of s and advances the cursor past it.
func (t *deltaTransmitter) take(s *Stroke) (Delta, bool) {
	if len(s.Points) <= t.lastSent {
		return Delta{}, false
	}
	d := Delta{
		StrokeID:   s.ID,
		Points:     clonePoints(s.Points[t.lastSent:]),
		StartIndex: t.lastSent,
		Color:      s.Color,
		Width:      s.Width,
		Tool:       s.Tool,
		Owner:      s.Owner,
	}
	t.lastSent = len(s.Points)
	return d, true
}

// assembly rebuilds a remote in-progress stroke from deltas received in any
// order. Slots are addressed by the sender's point index.
type assembly struct {
	slots  []Point
	filled []bool
}

func (a *assembly) len() int {
	if a == nil {
		return 0
	}
	return len(a.slots)
}

func (a *assembly) place(start int, pts []Point) {
	end := start + len(pts)
	for len(a.slots) < end {
		a.slots = append(a.slots, Point{})
		a.filled = append(a.filled, false)
	}
	copy(a.slots[start:end], pts)
	for i := start; i < end; i++ {
		a.filled[i] = true
	}
}

func (a *assembly) points() []Point {
	out := make([]Point, 0, len(a.slots))
	for i, ok := range a.filled {
		if ok {
			out = append(out, a.slots[i])
		}
	}
	return out
}
