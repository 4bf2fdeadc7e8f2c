package clock

import "time"

// Clock is the single time source for every time-sensitive operation:
// session expiry, word-of-day, queue timestamps. Injecting it keeps those
// paths deterministic under test.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// System returns a Clock backed by time.Now.
func System() Clock {
	return systemClock{}
}
