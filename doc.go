// Package strands implements a cooperative, single-threaded, effect-based
// concurrency runtime. User code is written as routines that yield declarative
// effect values; the runtime decides when each routine advances, mediates
// communication between routines, and detects deadlock.
//
// # Strands
//
// A strand is a single logical thread of execution. Its body is a Routine that
// advances by calling Yield with an Effect and receiving the effect's result
// back. At most one strand executes at any instant; suspension points are
// exactly the Yield calls. There is no preemption and no implicit yielding.
//
//	v, err := strands.Run(func(s *strands.Strand) (any, error) {
//		if _, err := s.Yield(strands.Send("greeting", "hello")); err != nil {
//			return nil, err
//		}
//		return 5, nil
//	})
//
// # Effects
//
//   - Send(key, value): fire-and-forget broadcast. Delivered to every Receive
//     currently waiting on key whose predicate matches; dropped otherwise.
//   - Receive(key, pred): blocks until a matching Send occurs.
//   - Call(fn): runs fn as a sub-strand inline; yields its return value.
//   - Fork(effects...) / CallFork(fn): starts new strands; yields handles.
//   - Join(handles...): blocks until all listed strands terminate.
//   - Cancel(handle): requests cancellation of the target and its descendants.
//   - Sleep(d): blocks until the clock fires; Sleep(0) yields one turn.
//   - Sequence(effects...): runs effects in order; yields the last result.
//   - First(effects...): races effects; yields a Winner; cancels the losers.
//
// # Primitives
//
// NewLock and NewQueue build a mutex and a bounded queue out of
// Call/Send/Receive; the scheduler's only special knowledge of either is
// the lock's release effect.
//
// # Scheduling
//
// Effects resolve synchronously where they can: a Send advances every
// matched waiter in registration order before the sender continues, and a
// forked strand runs until its first suspension before the parent resumes
// with its handle. Sleep is the exception — Sleep(0) parks the strand for
// exactly one turn on a strict-FIFO ready queue, and Sleep(d) parks it on
// the clock. When nothing is runnable the scheduler advances the clock to
// the nearest pending deadline; if no deadline is pending and strands remain
// parked, Run fails with ErrHang.
//
// # Errors
//
// All runtime-detected failures wrap one of the sentinel errors in this
// package (ErrNonEffect, ErrDoubleRelease, ErrHang, ErrPanicked) and can be
// tested with errors.Is. A failing strand delivers its error to a waiting
// Call parent or to joiners; a failure nobody observes aborts the run.
package strands
