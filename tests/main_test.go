package tests

import (
	"errors"
	"testing"
	"time"

	"github.com/ygrebnov/strands"
	"github.com/ygrebnov/strands/clock"
)

var errBoom = errors.New("boom")

// run executes fn under a fake clock so timer-driven scenarios finish
// without real delays. Strand bodies execute while the test goroutine is
// blocked inside Run, so assert (not require) is safe inside routines.
func run(t *testing.T, fn strands.Routine) (any, error) {
	t.Helper()
	return strands.Run(fn, strands.WithClock(clock.NewFake(time.Unix(0, 0))))
}

// yield discards the effect result, for steps whose result does not matter.
func yield(s *strands.Strand, e strands.Effect) {
	_, _ = s.Yield(e)
}

// handle narrows a yielded CallFork/Fork result.
func handle(v any) *strands.Handle {
	return v.(*strands.Handle)
}

// release narrows a yielded Lock.Acquire result.
func release(v any) strands.Effect {
	return v.(strands.Effect)
}
