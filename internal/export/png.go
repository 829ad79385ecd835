package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/fogleman/gg"

	"LessonBoard/internal/state"
)

// PNG rasterizes strokes onto a width x height white canvas.
func PNG(w io.Writer, strokes []state.Stroke, width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.New("canvas size must be positive")
	}
	dc := gg.NewContext(width, height)
	dc.SetColor(background)
	dc.Clear()
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)

	scale := float64(width) / ReferenceWidth
	fw, fh := float64(width), float64(height)
	for _, s := range strokes {
		if len(s.Points) == 0 {
			continue
		}
		dc.SetColor(ink(s))
		lw := strokeWidth(s) * scale
		if len(s.Points) == 1 {
			p := s.Points[0].Clamp()
			dc.DrawCircle(p.X*fw, p.Y*fh, lw/2)
			dc.Fill()
			continue
		}
		dc.SetLineWidth(lw)
		first := s.Points[0].Clamp()
		dc.MoveTo(first.X*fw, first.Y*fh)
		for _, p := range s.Points[1:] {
			p = p.Clamp()
			dc.LineTo(p.X*fw, p.Y*fh)
		}
		dc.Stroke()
	}
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}
