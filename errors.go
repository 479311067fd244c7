package strands

import "github.com/ygrebnov/errorc"

const Namespace = "strands"

var (
	// ErrNonEffect reports that a strand yielded a value that is not a
	// recognized effect (the zero Effect included).
	ErrNonEffect = errorc.New(Namespace + ": strand yielded non-effect")

	// ErrDoubleRelease reports that a lock release token was yielded more
	// than once for a single acquisition.
	ErrDoubleRelease = errorc.New(Namespace + ": yielded same lock release multiple times?")

	// ErrHang reports quiescence that is not a clean finish: no strand is
	// ready and no timer will fire, yet a strand is still parked or the root
	// has not terminated. Strands left parked after the root returns count.
	ErrHang = errorc.New(Namespace + ": hanging strands detected")

	// ErrPanicked wraps a panic recovered from a strand body.
	ErrPanicked = errorc.New(Namespace + ": strand panicked")
)
