package state

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointClamp(t *testing.T) {
	assert.Equal(t, Point{0, 1}, Point{-0.5, 1.5}.Clamp())
	assert.Equal(t, Point{0.25, 0.75}, Point{0.25, 0.75}.Clamp())
}

func TestStrokeCloneIsDeep(t *testing.T) {
	s := Stroke{ID: "s", Points: []Point{{0, 0}}}
	c := s.Clone()
	c.Points[0] = Point{1, 1}
	assert.Equal(t, Point{0, 0}, s.Points[0])
}

func TestOwnedBy(t *testing.T) {
	assert.True(t, Stroke{Owner: "A"}.OwnedBy("A"))
	assert.False(t, Stroke{Owner: "A"}.OwnedBy("B"))
	assert.False(t, Stroke{}.OwnedBy(""))
}

func TestStrokeValidate(t *testing.T) {
	require.NoError(t, Stroke{ID: "s", Tool: ToolEraser}.Validate())
	assert.Error(t, Stroke{}.Validate())
	assert.ErrorIs(t, Stroke{ID: "s", Tool: "brush"}.Validate(), ErrInvalidTool)
	assert.ErrorIs(t, Stroke{ID: "s", Width: -1}.Validate(), ErrInvalidWidth)
}

func TestNewStrokeIDCarriesTime(t *testing.T) {
	now := time.UnixMilli(1234567)
	a, b := NewStrokeID(now), NewStrokeID(now)
	assert.True(t, strings.HasPrefix(a, "1234567-"))
	assert.NotEqual(t, a, b)
}
