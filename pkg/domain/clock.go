package domain

import "time"

// Clock abstracts wall-clock reads for testability.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the system wall clock.
func SystemClock() Clock {
	return ClockFunc(time.Now)
}
