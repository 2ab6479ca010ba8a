package clock

import (
	"time"

	"go.uber.org/fx"
)

// Precision is the resolution persisted timestamps are truncated to.
const Precision = time.Microsecond

// Clock supplies the current time to write paths.
type Clock interface {
	Now() time.Time
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return Normalize(time.Now())
}

// Normalize converts t to UTC at storage precision.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}

// NextUpdate returns the updated_at value for a write that follows prev.
// The result is strictly after prev even when the clock has not advanced.
func NextUpdate(c Clock, prev time.Time) time.Time {
	now := Normalize(c.Now())
	prev = Normalize(prev)
	if !now.After(prev) {
		return prev.Add(Precision)
	}
	return now
}
