package console

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LessonBoard/internal/schedule"
	"LessonBoard/internal/state"
)

func newConsole(t *testing.T) (*Console, *state.Engine, *bytes.Buffer) {
	t.Helper()
	e := state.NewEngine(state.Options{Room: "room-123", Participant: "A", Scheduler: schedule.NewManual()})
	t.Cleanup(e.Close)
	var out bytes.Buffer
	return New(e, &out, func() string { return "connected" }), e, &out
}

func TestRunScript(t *testing.T) {
	c, e, out := newConsole(t)
	path := filepath.Join(t.TempDir(), "board.png")
	script := strings.Join([]string{
		"# warm up",
		"color #ff0000",
		"width 6",
		"down 0.1 0.1",
		"move 0.2 0.2",
		"move 0.3 0.3",
		"up",
		"tool eraser",
		"down 0.5 0.5",
		"up",
		"undo",
		"",
		"export " + path,
		"status",
		"quit",
		"down 0.9 0.9",
	}, "\n")
	require.NoError(t, c.Run(strings.NewReader(script)))

	strokes := e.Strokes()
	require.Len(t, strokes, 1)
	assert.Equal(t, "#ff0000", strokes[0].Color)
	assert.Equal(t, 6.0, strokes[0].Width)
	assert.Equal(t, state.ToolPen, strokes[0].Tool)
	assert.Len(t, strokes[0].Points, 3)
	assert.Equal(t, 1, e.RedoDepth())
	assert.False(t, e.Drawing())

	_, err := os.Stat(path)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "exported 1 strokes")
	assert.Contains(t, out.String(), "room room-123 as A: 1 strokes")
	assert.Contains(t, out.String(), "connected")
}

func TestBadCommandsAreReported(t *testing.T) {
	c, e, out := newConsole(t)
	script := "dance\ndown 1\ndown x y\ncolor mauve\nwidth -1\ntool laser\nexport board.svg\nredo\nundo\ndown 0.5 0.5\nup\n"
	require.NoError(t, c.Run(strings.NewReader(script)))

	assert.Equal(t, 7, strings.Count(out.String(), "error: "))
	assert.Contains(t, out.String(), "nothing to redo")
	assert.Contains(t, out.String(), "nothing to undo")
	assert.Len(t, e.Strokes(), 1)
}

func TestExec(t *testing.T) {
	c, _, _ := newConsole(t)
	quit, err := c.Exec("exit")
	require.NoError(t, err)
	assert.True(t, quit)

	_, err = c.Exec("move")
	assert.ErrorIs(t, err, ErrUsage)
	_, err = c.Exec("lasso")
	assert.ErrorIs(t, err, ErrUnknownCommand)
	_, err = c.Exec("tool marker")
	assert.ErrorIs(t, err, state.ErrInvalidTool)
}
