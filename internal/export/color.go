// Package export renders a board's committed strokes to PNG or PDF.
package export

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"LessonBoard/internal/state"
)

// ReferenceWidth is the surface width stroke widths are expressed against.
// Renderers scale widths by their own width over it.
const ReferenceWidth = 1000.0

var (
	background = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	named      = map[string]color.RGBA{
		"black":  {A: 255},
		"red":    {R: 255, A: 255},
		"green":  {G: 128, A: 255},
		"blue":   {B: 255, A: 255},
		"yellow": {R: 255, G: 255, A: 255},
		"white":  background,
	}
)

// ParseColor accepts #rgb, #rrggbb and a few color names.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := named[s]; ok {
		return c, nil
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.RGBA{}, fmt.Errorf("unknown color %q", s)
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// ink is the color a stroke paints with. Erasers paint the background and
// unparseable colors fall back to black.
func ink(s state.Stroke) color.RGBA {
	if s.Tool == state.ToolEraser {
		return background
	}
	if s.Color == "" {
		return named["black"]
	}
	c, err := ParseColor(s.Color)
	if err != nil {
		return named["black"]
	}
	return c
}

func strokeWidth(s state.Stroke) float64 {
	if s.Width <= 0 {
		return state.DefaultWidth
	}
	return s.Width
}
