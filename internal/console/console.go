// Package console drives a board from line oriented commands, the headless
// stand-in for a drawing surface.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"LessonBoard/internal/export"
	"LessonBoard/internal/state"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

const help = `commands:
  down x y | move x y | up     draw with normalized coordinates
  undo | redo | clear
  color <c> | width <w> | tool pen|eraser
  export <file.png|file.pdf>
  status | help | quit`

type Console struct {
	engine *state.Engine
	out    io.Writer
	status func() string
}

// New returns a console for engine printing to out. status, if set, adds a
// line to the status command, e.g. the connection state.
func New(engine *state.Engine, out io.Writer, status func() string) *Console {
	return &Console{engine: engine, out: out, status: status}
}

// Run executes commands from in until quit or end of input. Bad commands
// are reported and skipped.
func (c *Console) Run(in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		quit, err := c.Exec(sc.Text())
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
	return sc.Err()
}

// Exec runs one command line.
func (c *Console) Exec(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "down", "move":
		p, err := point(cmd, args)
		if err != nil {
			return false, err
		}
		if cmd == "down" {
			c.engine.StartStroke(p)
		} else {
			c.engine.AddPoint(p)
		}
	case "up":
		c.engine.EndStroke()
	case "undo":
		if !c.engine.Undo() {
			fmt.Fprintln(c.out, "nothing to undo")
		}
	case "redo":
		if !c.engine.Redo() {
			fmt.Fprintln(c.out, "nothing to redo")
		}
	case "clear":
		c.engine.Clear()
	case "color":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: color <c>", ErrUsage)
		}
		if _, err := export.ParseColor(args[0]); err != nil {
			return false, err
		}
		return false, c.engine.SetColor(args[0])
	case "width":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: width <w>", ErrUsage)
		}
		w, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return false, fmt.Errorf("%w: width <w>", ErrUsage)
		}
		return false, c.engine.SetWidth(w)
	case "tool":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: tool pen|eraser", ErrUsage)
		}
		return false, c.engine.SetTool(state.Tool(strings.ToLower(args[0])))
	case "export":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: export <file.png|file.pdf>", ErrUsage)
		}
		strokes := c.engine.Strokes()
		if err := export.File(args[0], strokes); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "exported %d strokes to %s\n", len(strokes), args[0])
	case "status":
		c.printStatus()
	case "help":
		fmt.Fprintln(c.out, help)
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("%w %q, try help", ErrUnknownCommand, cmd)
	}
	return false, nil
}

func point(cmd string, args []string) (state.Point, error) {
	if len(args) != 2 {
		return state.Point{}, fmt.Errorf("%w: %s x y", ErrUsage, cmd)
	}
	x, errX := strconv.ParseFloat(args[0], 64)
	y, errY := strconv.ParseFloat(args[1], 64)
	if errX != nil || errY != nil {
		return state.Point{}, fmt.Errorf("%w: %s x y", ErrUsage, cmd)
	}
	return state.Point{X: x, Y: y}, nil
}

func (c *Console) printStatus() {
	e := c.engine
	fmt.Fprintf(c.out, "room %s as %s: %d strokes, drawing=%t, redo=%d\n",
		e.Room(), e.Participant(), len(e.Strokes()), e.Drawing(), e.RedoDepth())
	if c.status != nil {
		fmt.Fprintln(c.out, c.status())
	}
}
