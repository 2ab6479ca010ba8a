package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextUpdateAdvancesWhenClockStalls(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := NewFakeClock(base)

	next := NextUpdate(fake, base)
	assert.True(t, next.After(base))
	assert.Equal(t, base.Add(Precision), next)
}

func TestNextUpdateUsesClockWhenAhead(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := NewFakeClock(base)
	fake.Advance(time.Minute)

	assert.Equal(t, base.Add(time.Minute), NextUpdate(fake, base))
}

func TestNormalizeTruncatesToMicroseconds(t *testing.T) {
	loc := time.FixedZone("WIB", 7*60*60)
	in := time.Date(2024, 3, 1, 17, 0, 0, 123456789, loc)

	out := Normalize(in)
	assert.Equal(t, time.UTC, out.Location())
	assert.Equal(t, 123456000, out.Nanosecond())
	assert.True(t, out.Equal(in.Truncate(time.Microsecond)))
}
