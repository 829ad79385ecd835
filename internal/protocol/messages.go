// Package protocol defines the whiteboard wire messages exchanged over a
// room's publish/subscribe channels.
//
// Every payload is a JSON object with a "type" discriminant. Decode narrows a
// payload to exactly one of the four variants and rejects anything that could
// not be applied safely.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"LessonBoard/internal/state"
)

type Kind string

const (
	KindDelta  Kind = "STROKE_DELTA"
	KindStroke Kind = "STROKE"
	KindClear  Kind = "CLEAR"
	KindUndo   Kind = "UNDO"
)

var Kinds = []Kind{KindStroke, KindDelta, KindClear, KindUndo}

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Message is one of *DeltaMessage, *StrokeMessage, *ClearMessage or
// *UndoMessage.
type Message interface {
	Kind() Kind
}

type DeltaMessage struct {
	Delta state.Delta
}

type StrokeMessage struct {
	Stroke state.Stroke
}

type ClearMessage struct {
	Owner string
}

type UndoMessage struct {
	ID    string
	Owner string
}

func (*DeltaMessage) Kind() Kind  { return KindDelta }
func (*StrokeMessage) Kind() Kind { return KindStroke }
func (*ClearMessage) Kind() Kind  { return KindClear }
func (*UndoMessage) Kind() Kind   { return KindUndo }

// wirePoint keeps x and y nullable so a missing coordinate is caught
// instead of silently becoming zero.
type wirePoint struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// wireStroke accepts userId as a legacy spelling of ownerId.
type wireStroke struct {
	ID        string      `json:"id"`
	Points    []wirePoint `json:"points"`
	Color     string      `json:"color"`
	Width     float64     `json:"width"`
	Tool      state.Tool  `json:"tool"`
	Timestamp int64       `json:"timestamp"`
	OwnerID   string      `json:"ownerId,omitempty"`
	UserID    string      `json:"userId,omitempty"`
}

type envelope struct {
	Type Kind `json:"type"`

	// STROKE
	Stroke *wireStroke `json:"stroke,omitempty"`

	// STROKE_DELTA
	StrokeID   string      `json:"strokeId,omitempty"`
	Points     []wirePoint `json:"points,omitempty"`
	StartIndex *int        `json:"startIndex,omitempty"`
	Color      string      `json:"color,omitempty"`
	Width      float64     `json:"width,omitempty"`
	Tool       state.Tool  `json:"tool,omitempty"`

	// UNDO
	ID string `json:"id,omitempty"`

	OwnerID string `json:"ownerId,omitempty"`
	UserID  string `json:"userId,omitempty"`
}

func owner(ownerID, userID string) string {
	if ownerID != "" {
		return ownerID
	}
	return userID
}

func toPoints(in []wirePoint) ([]state.Point, error) {
	out := make([]state.Point, len(in))
	for i, p := range in {
		if p.X == nil || p.Y == nil {
			return nil, fmt.Errorf("%w: point %d lacks a coordinate", ErrMalformed, i)
		}
		out[i] = state.Point{X: *p.X, Y: *p.Y}
	}
	return out, nil
}

func fromPoints(in []state.Point) []wirePoint {
	out := make([]wirePoint, len(in))
	for i := range in {
		out[i] = wirePoint{X: &in[i].X, Y: &in[i].Y}
	}
	return out
}

// Decode parses and validates a payload.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch env.Type {
	case KindDelta:
		return decodeDelta(env)
	case KindStroke:
		return decodeStroke(env)
	case KindClear:
		return &ClearMessage{Owner: owner(env.OwnerID, env.UserID)}, nil
	case KindUndo:
		if env.ID == "" {
			return nil, fmt.Errorf("%w: undo without stroke id", ErrMalformed)
		}
		return &UndoMessage{ID: env.ID, Owner: owner(env.OwnerID, env.UserID)}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeDelta(env envelope) (Message, error) {
	if env.StartIndex == nil {
		return nil, fmt.Errorf("%w: delta without startIndex", ErrMalformed)
	}
	pts, err := toPoints(env.Points)
	if err != nil {
		return nil, err
	}
	d := state.Delta{
		StrokeID:   env.StrokeID,
		Points:     pts,
		StartIndex: *env.StartIndex,
		Color:      env.Color,
		Width:      env.Width,
		Tool:       env.Tool,
		Owner:      owner(env.OwnerID, env.UserID),
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if d.Tool != "" && !d.Tool.Valid() {
		return nil, fmt.Errorf("%w: delta tool %q", ErrMalformed, d.Tool)
	}
	return &DeltaMessage{Delta: d}, nil
}

func decodeStroke(env envelope) (Message, error) {
	if env.Stroke == nil {
		return nil, fmt.Errorf("%w: stroke message without stroke", ErrMalformed)
	}
	w := env.Stroke
	pts, err := toPoints(w.Points)
	if err != nil {
		return nil, err
	}
	s := state.Stroke{
		ID:        w.ID,
		Points:    pts,
		Color:     w.Color,
		Width:     w.Width,
		Tool:      w.Tool,
		Timestamp: w.Timestamp,
		Owner:     owner(w.OwnerID, w.UserID),
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &StrokeMessage{Stroke: s}, nil
}

// Encode renders m with its type discriminant.
func Encode(m Message) ([]byte, error) {
	env := envelope{Type: m.Kind()}
	switch m := m.(type) {
	case *DeltaMessage:
		d := m.Delta
		start := d.StartIndex
		env.StrokeID = d.StrokeID
		env.Points = fromPoints(d.Points)
		env.StartIndex = &start
		env.Color = d.Color
		env.Width = d.Width
		env.Tool = d.Tool
		env.OwnerID = d.Owner
	case *StrokeMessage:
		s := m.Stroke
		env.Stroke = &wireStroke{
			ID:        s.ID,
			Points:    fromPoints(s.Points),
			Color:     s.Color,
			Width:     s.Width,
			Tool:      s.Tool,
			Timestamp: s.Timestamp,
			OwnerID:   s.Owner,
		}
	case *ClearMessage:
		env.OwnerID = m.Owner
	case *UndoMessage:
		env.ID = m.ID
		env.OwnerID = m.Owner
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
	return json.Marshal(env)
}
