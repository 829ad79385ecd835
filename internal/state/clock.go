package state

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Clock supplies wall time for stroke timestamps and ids.
type Clock func() time.Time

// IDSource produces globally unique stroke ids.
type IDSource func(now time.Time) string

// NewStrokeID composes the creation time with a random uuid suffix, so ids
// from different participants sort roughly by creation and never collide in
// practice.
func NewStrokeID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()
}

// NewParticipantID is used when no participant identity was configured.
func NewParticipantID() string {
	return uuid.NewString()
}
