package clock

import (
	"errors"
	"time"
)

// Epoch is the start of the Gregorian calendar, origin of UUID timestamps.
var Epoch = time.Date(1582, time.October, 15, 0, 0, 0, 0, time.UTC)

// Ticks between Epoch and the Unix epoch, in 100ns intervals.
const unixOffset = 122192928000000000

var ErrUnavailable = errors.New("clock unavailable")

// Source reports the current time as 100ns ticks since Epoch.
type Source interface {
	Ticks() (uint64, error)
}

type Clock struct {
	now   time.Time
	nowFn func() time.Time
}

// New returns a clock frozen at now, or the wall clock if now is zero.
func New(now time.Time) Clock {
	return Clock{
		now: now,
	}
}

func NewFunc(nowFn func() time.Time) Clock {
	return Clock{
		nowFn: nowFn,
	}
}

func (c Clock) Now() time.Time {
	if c.nowFn != nil {
		return c.nowFn()
	}

	if c.now.IsZero() {
		return time.Now()
	}

	return c.now
}

func (c Clock) Ticks() (uint64, error) {
	return ToTicks(c.Now())
}

func ToTicks(instant time.Time) (uint64, error) {
	if instant.IsZero() || !instant.After(Epoch) {
		return 0, ErrUnavailable
	}

	seconds := instant.Unix()
	nanos := int64(instant.Nanosecond())

	return uint64(seconds*10_000_000+nanos/100) + unixOffset, nil
}

func FromTicks(ticks uint64) time.Time {
	relative := int64(ticks - unixOffset)

	return time.Unix(relative/10_000_000, relative%10_000_000*100).UTC()
}
