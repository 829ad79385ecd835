package export

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LessonBoard/internal/state"
)

func TestParseColor(t *testing.T) {
	for in, want := range map[string]color.RGBA{
		"#000000": {A: 255},
		"#FF8000": {R: 255, G: 128, A: 255},
		"#f00":    {R: 255, A: 255},
		"Blue":    {B: 255, A: 255},
		" white ": {R: 255, G: 255, B: 255, A: 255},
	} {
		got, err := ParseColor(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "purple", "#12", "#gggggg", "ff0000"} {
		_, err := ParseColor(bad)
		assert.Error(t, err, bad)
	}
}

func horizontal(color string, tool state.Tool, width float64) state.Stroke {
	return state.Stroke{
		ID:     color + string(tool),
		Points: []state.Point{{X: 0.1, Y: 0.5}, {X: 0.9, Y: 0.5}},
		Color:  color,
		Width:  width,
		Tool:   tool,
	}
}

func TestPNG(t *testing.T) {
	var buf bytes.Buffer
	strokes := []state.Stroke{
		horizontal("#ff0000", state.ToolPen, 40),
		{ID: "e", Points: []state.Point{{X: 0.75, Y: 0.2}, {X: 0.75, Y: 0.8}}, Width: 60, Tool: state.ToolEraser},
		{ID: "off", Points: []state.Point{{X: -3, Y: 7}}, Color: "blue", Width: 100, Tool: state.ToolPen},
		{ID: "empty", Tool: state.ToolPen},
	}
	require.NoError(t, PNG(&buf, strokes, 200, 100))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())

	r, g, b, _ := img.At(50, 50).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0, 0}, [3]uint32{r, g, b}, "pen stroke")
	r, g, b, _ = img.At(150, 50).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b}, "erased")
	r, g, b, _ = img.At(100, 10).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b}, "background")
	// the off-canvas dot is clamped into the bottom-left corner
	r, g, b, _ = img.At(1, 98).RGBA()
	assert.Equal(t, [3]uint32{0, 0, 0xffff}, [3]uint32{r, g, b}, "clamped dot")

	assert.Error(t, PNG(&buf, strokes, 0, 10))
}

func TestPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PDF(&buf, []state.Stroke{
		horizontal("#00f", state.ToolPen, 4),
		{ID: "dot", Points: []state.Point{{X: 0.5, Y: 0.5}}, Tool: state.ToolPen},
		horizontal("", state.ToolEraser, 10),
	}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	strokes := []state.Stroke{horizontal("red", state.ToolPen, 4)}

	require.NoError(t, File(filepath.Join(dir, "board.png"), strokes))
	f, err := os.Open(filepath.Join(dir, "board.png"))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, DefaultPNGWidth, cfg.Width)

	require.NoError(t, File(filepath.Join(dir, "board.PDF"), strokes))
	raw, err := os.ReadFile(filepath.Join(dir, "board.PDF"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF")))

	assert.Error(t, File(filepath.Join(dir, "board.svg"), strokes))
}
