package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"LessonBoard/internal/state"
)

const (
	DefaultPNGWidth  = 1600
	DefaultPNGHeight = 900
)

// File writes strokes to path in the format its extension names.
func File(path string, strokes []state.Stroke) (err error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".png" && ext != ".pdf" {
		return fmt.Errorf("unsupported export format %q", ext)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if ext == ".png" {
		return PNG(f, strokes, DefaultPNGWidth, DefaultPNGHeight)
	}
	return PDF(f, strokes)
}
