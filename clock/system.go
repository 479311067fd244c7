package clock

import "time"

type system struct{}

// NewSystem returns the wall clock.
func NewSystem() Clock { return system{} }

func (system) Now() time.Time        { return time.Now() }
func (system) Sleep(d time.Duration) { time.Sleep(d) }
