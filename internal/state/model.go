package state

import (
	"errors"
	"fmt"
)

// Point is a canvas position normalized to [0,1] on both axes, so strokes
// survive any canvas pixel size.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clamp returns the point with both components forced into [0,1].
// Stored and transmitted points are never clamped, only consumed ones.
func (p Point) Clamp() Point {
	return Point{X: clamp01(p.X), Y: clamp01(p.Y)}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type Tool string

const (
	ToolPen    Tool = "pen"
	ToolEraser Tool = "eraser"
)

func (t Tool) Valid() bool {
	return t == ToolPen || t == ToolEraser
}

var (
	ErrInvalidTool  = errors.New("invalid tool")
	ErrInvalidWidth = errors.New("invalid stroke width")
)

// Stroke is one continuous line from pointer-down to pointer-up.
type Stroke struct {
	ID        string  `json:"id"`
	Points    []Point `json:"points"`
	Color     string  `json:"color"`
	Width     float64 `json:"width"`
	Tool      Tool    `json:"tool"`
	Timestamp int64   `json:"timestamp"` // unix millis
	Owner     string  `json:"ownerId,omitempty"`
}

// Clone returns a copy that shares no point storage with s.
func (s Stroke) Clone() Stroke {
	c := s
	c.Points = clonePoints(s.Points)
	return c
}

// OwnedBy reports whether s is attributed to participant. Unattributed
// strokes are owned by nobody.
func (s Stroke) OwnedBy(participant string) bool {
	return s.Owner != "" && s.Owner == participant
}

func (s Stroke) Validate() error {
	if s.ID == "" {
		return errors.New("stroke without id")
	}
	if s.Tool != "" && !s.Tool.Valid() {
		return fmt.Errorf("stroke %s: %w %q", s.ID, ErrInvalidTool, s.Tool)
	}
	if s.Width < 0 {
		return fmt.Errorf("stroke %s: %w %v", s.ID, ErrInvalidWidth, s.Width)
	}
	return nil
}

// MaxStrokePoints bounds the point index any delta may address.
const MaxStrokePoints = 1 << 16

// Delta carries the points appended to an in-progress stroke since the last
// transmission, together with enough styling to render an unseen stroke.
type Delta struct {
	StrokeID   string
	Points     []Point
	StartIndex int
	Color      string
	Width      float64
	Tool       Tool
	Owner      string
}

func (d Delta) Validate() error {
	if d.StrokeID == "" {
		return errors.New("delta without stroke id")
	}
	if len(d.Points) == 0 {
		return fmt.Errorf("delta for %s without points", d.StrokeID)
	}
	if d.StartIndex < 0 {
		return fmt.Errorf("delta for %s with negative start index %d", d.StrokeID, d.StartIndex)
	}
	if len(d.Points) > MaxStrokePoints || d.StartIndex > MaxStrokePoints-len(d.Points) {
		return fmt.Errorf("delta for %s addresses points past %d", d.StrokeID, MaxStrokePoints)
	}
	return nil
}

func clonePoints(pts []Point) []Point {
	if pts == nil {
		return nil
	}
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

func cloneStrokes(strokes []Stroke) []Stroke {
	out := make([]Stroke, len(strokes))
	for i, s := range strokes {
		out[i] = s.Clone()
	}
	return out
}
