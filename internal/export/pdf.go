package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"LessonBoard/internal/state"
)

// PDF draws strokes on a single landscape A4 page.
func PDF(w io.Writer, strokes []state.Stroke) error {
	p := gofpdf.New("L", "mm", "A4", "")
	p.SetTitle("LessonBoard export", true)
	p.AddPage()
	p.SetLineCapStyle("round")
	p.SetLineJoinStyle("round")

	pw, ph := p.GetPageSize()
	scale := pw / ReferenceWidth
	for _, s := range strokes {
		if len(s.Points) == 0 {
			continue
		}
		c := ink(s)
		lw := strokeWidth(s) * scale
		if len(s.Points) == 1 {
			pt := s.Points[0].Clamp()
			p.SetFillColor(int(c.R), int(c.G), int(c.B))
			p.Circle(pt.X*pw, pt.Y*ph, lw/2, "F")
			continue
		}
		p.SetDrawColor(int(c.R), int(c.G), int(c.B))
		p.SetLineWidth(lw)
		first := s.Points[0].Clamp()
		p.MoveTo(first.X*pw, first.Y*ph)
		for _, pt := range s.Points[1:] {
			pt = pt.Clamp()
			p.LineTo(pt.X*pw, pt.Y*ph)
		}
		p.DrawPath("D")
	}
	if err := p.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}
