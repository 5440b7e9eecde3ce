package clock

import (
	"time"

	"go.uber.org/fx"
)

// Module binds the wall clock. Tests construct services with a FakeClock.
var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)

// Clock abstracts wall-clock time so due dates and report timestamps are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reports time in UTC; every stored timestamp is UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
