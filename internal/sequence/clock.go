package sequence

import (
	"time"

	"github.com/roach88/frontdesk/internal/record"
)

// Clock supplies wall time to the registry. Tests substitute a fixed clock so
// day boundaries can be crossed deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the machine clock in a fixed location.
type SystemClock struct {
	Location *time.Location
}

// NewSystemClock returns a clock in loc. A nil loc means time.Local.
func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = time.Local
	}
	return SystemClock{Location: loc}
}

// Now returns the current time in the clock's location.
func (c SystemClock) Now() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return time.Now().In(loc)
}

// Today returns the calendar date of t in t's own location.
func Today(t time.Time) string {
	return t.Format(record.DateLayout)
}
