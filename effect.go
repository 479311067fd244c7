package strands

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"
)

// Effect is an immutable description of a requested operation. Effects are
// created by the constructors in this package and interpreted by the
// scheduler when yielded from a strand. The zero Effect is not valid;
// yielding it fails the strand with ErrNonEffect.
type Effect struct {
	kind effectKind

	key  string
	val  any
	pred func(any) bool

	fn   Routine
	name string

	effs    []Effect
	handles []*Handle
	single  bool

	dur time.Duration

	lock      *Lock
	releaseID string
}

type effectKind uint8

const (
	kindInvalid effectKind = iota
	kindSend
	kindReceive
	kindCall
	kindFork
	kindCallFork
	kindJoin
	kindCancel
	kindSleep
	kindSequence
	kindFirst
	kindLockRelease
)

// Winner is the result of a First effect: the index of the winning effect in
// the raced list and its result.
type Winner struct {
	Index int
	Value any
}

// Send broadcasts value under key. Every Receive currently waiting on key
// whose predicate matches the value is woken; a send with no matcher is
// dropped. At most one value may be given; none means unit (nil). Yields nil.
func Send(key string, value ...any) Effect {
	var v any
	if len(value) > 0 {
		v = value[0]
	}
	return Effect{kind: kindSend, key: key, val: v}
}

// Receive blocks until a Send on key whose value satisfies pred occurs and
// yields the sent value. A nil pred matches any value. Predicates must be
// pure functions of the value; they must not yield effects.
func Receive(key string, pred func(any) bool) Effect {
	return Effect{kind: kindReceive, key: key, pred: pred}
}

// Call runs fn as a sub-strand inline: the caller blocks until fn terminates
// and yields its return value. A failure in fn is returned from Yield and may
// be handled by the caller.
func Call(fn Routine) Effect {
	return Effect{kind: kindCall, fn: fn, name: routineName(fn)}
}

// namedCall is Call with an explicit diagnostic name, used by the primitives
// built on top of the runtime.
func namedCall(name string, fn Routine) Effect {
	return Effect{kind: kindCall, fn: fn, name: name}
}

// Fork starts a new strand per effect, each strand's body being that single
// effect. Yields a *Handle when given one effect and a []*Handle otherwise.
// There is no implicit join.
func Fork(effs ...Effect) Effect {
	return Effect{kind: kindFork, effs: effs, single: len(effs) == 1}
}

// CallFork starts a new strand whose body is fn and yields its *Handle
// without waiting for it.
func CallFork(fn Routine) Effect {
	return Effect{kind: kindCallFork, fn: fn, name: routineName(fn)}
}

// Join blocks until every listed strand terminates. It yields the single
// return value when given one handle and a []any of return values in handle
// order otherwise. Joining an already-terminal strand yields its value again;
// joining a cancelled strand yields nil. A joiner already parked on a strand
// when that strand is cancelled stays parked.
func Join(handles ...*Handle) Effect {
	return Effect{kind: kindJoin, handles: handles, single: len(handles) == 1}
}

// Cancel requests cancellation of the target strand and, recursively, of its
// not-yet-terminal descendants. By the time the canceller resumes, all
// targets are terminal. Cancelling a terminal strand is a no-op. Yields nil.
func Cancel(h *Handle) Effect {
	return Effect{kind: kindCancel, handles: []*Handle{h}}
}

// Sleep blocks until the scheduler's clock reaches d from now. Sleep(0) never
// consults the clock: it yields exactly one scheduling turn.
func Sleep(d time.Duration) Effect {
	return Effect{kind: kindSleep, dur: d}
}

// Sequence runs each effect in order, discarding all results except the last
// one, which it yields. Results are not passed between the effects.
func Sequence(effs ...Effect) Effect {
	return Effect{kind: kindSequence, effs: effs}
}

// First races the effects: each runs as a forked sub-strand, the first to
// terminate wins, and the losing sub-strands are cancelled before the caller
// resumes with Winner{index, result}. A failing sub-strand resolves the race
// with its failure. To race already-running strands, wrap their handles:
// First(Join(h1), Join(h2)). A losing competitor that is a single-handle Join
// is cancelled together with the strand it joins.
func First(effs ...Effect) Effect {
	return Effect{kind: kindFirst, effs: effs}
}

// valid reports whether the effect is one produced by a constructor.
func (e Effect) valid() bool {
	return e.kind != kindInvalid
}

// String renders the effect for diagnostics, e.g. "Receive(lock:8f1d…)".
func (e Effect) String() string {
	switch e.kind {
	case kindSend:
		return fmt.Sprintf("Send(%s)", e.key)
	case kindReceive:
		return fmt.Sprintf("Receive(%s)", e.key)
	case kindCall:
		return fmt.Sprintf("Call(%s)", e.name)
	case kindFork:
		return "Fork"
	case kindCallFork:
		return fmt.Sprintf("CallFork(%s)", e.name)
	case kindJoin:
		return "Join"
	case kindCancel:
		return "Cancel"
	case kindSleep:
		return fmt.Sprintf("Sleep(%s)", e.dur)
	case kindSequence:
		return "Sequence"
	case kindFirst:
		return "First"
	case kindLockRelease:
		return "LockRelease"
	default:
		return "<invalid effect>"
	}
}

// routineName extracts a short diagnostic name for a routine.
func routineName(fn Routine) string {
	if fn == nil {
		return "<nil>"
	}
	name := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, "-fm")
	return name
}
