package strands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ygrebnov/strands/clock"
	"github.com/ygrebnov/strands/metrics"
)

// Run launches the root strand from fn and blocks until it terminates. It
// returns the root's value, the root's failure, or a runtime failure (hang,
// misuse, or a strand failure no other strand observed).
func Run(fn Routine, opts ...Option) (any, error) {
	if fn == nil {
		panic("nil routine")
	}
	cfg := newConfig(opts)
	sc := newScheduler(cfg)
	root := sc.spawn(0, routineName(fn), fn)
	return sc.loop(root)
}

// timer is one pending Sleep deadline. Timers for strands that were
// cancelled meanwhile are pruned lazily before the clock is consulted.
type timer struct {
	id       int64
	strand   int64
	deadline time.Time
}

// race tracks one in-flight First: the competing sub-strands and, once the
// first of them terminates, the outcome. The parent either picks the outcome
// up synchronously while still dispatching or is parked on the race key.
type race struct {
	id       int64
	parent   int64
	children []int64
	// companions[i] is a strand raced through a bare single-handle Join:
	// losing the race cancels it along with its wrapper. Zero otherwise.
	companions []int64
	done       bool
	winner     Winner
	err        error
}

// scheduler interprets effects for a single Run.
//
// Strands advance synchronously: an effect that completes immediately
// resumes its strand in place, a Send advances every matched waiter (and
// whatever that wakes in turn) before the sender continues, and forked
// strands run until their first suspension before the parent resumes with
// their handle. Only Sleep defers to the ready queue, which is why Sleep(0)
// yields exactly one scheduling turn.
type scheduler struct {
	clk clock.Clock
	log *slog.Logger

	strands map[int64]*Strand
	ready   []int64 // FIFO of Sleep(0) strand ids
	waits   *waitIndex
	timers  []*timer
	races   map[int64]*race

	root *Strand

	nextStrandID int64
	nextRaceID   int64
	nextTimerID  int64

	// First failure that no strand observed; aborts the run.
	failure error

	mSteps   metrics.Counter
	mEffects metrics.Counter
	mSends   metrics.Counter
	mSpawned metrics.Counter
	mLive    metrics.UpDownCounter
}

func newScheduler(cfg config) *scheduler {
	return &scheduler{
		clk:      cfg.clock,
		log:      cfg.logger,
		strands:  make(map[int64]*Strand),
		waits:    newWaitIndex(),
		races:    make(map[int64]*race),
		mSteps:   cfg.metrics.Counter("strands.steps"),
		mEffects: cfg.metrics.Counter("strands.effects"),
		mSends:   cfg.metrics.Counter("strands.sends"),
		mSpawned: cfg.metrics.Counter("strands.spawned"),
		mLive:    cfg.metrics.UpDownCounter("strands.live"),
	}
}

// loop drives the run: advance the root, drain the ready queue in FIFO
// order, advance external time, and at quiescence detect hangs. The run
// keeps draining after the root returns; strands still parked once nothing
// can wake them are a hang even then.
func (sc *scheduler) loop(root *Strand) (any, error) {
	sc.root = root
	defer sc.shutdown()

	sc.advance(root, nil, nil)
	for {
		if sc.failure != nil {
			return nil, sc.failure
		}
		if root.state == stateFailed {
			return nil, root.err
		}

		if len(sc.ready) > 0 {
			id := sc.ready[0]
			sc.ready = sc.ready[1:]
			s := sc.strands[id]
			if s == nil || s.state != stateReady {
				continue // cancelled while queued
			}
			sc.advance(s, nil, nil)
			continue
		}

		if sc.fireTimers() {
			continue
		}

		if !sc.waits.empty() || !root.terminal() {
			return nil, sc.hang()
		}
		return root.result, root.err
	}
}

func (sc *scheduler) spawn(parent int64, name string, fn Routine) *Strand {
	sc.nextStrandID++
	s := newStrand(sc.nextStrandID, parent, name, fn)
	sc.strands[s.id] = s
	if p := sc.strands[parent]; p != nil {
		p.children = append(p.children, s.id)
	}
	sc.mSpawned.Add(1)
	sc.mLive.Add(1)
	sc.log.Debug("strand spawned", "strand", s.id, "name", name, "parent", parent)
	return s
}

// advance steps the strand until it parks, terminates, or the run aborts.
// v and err are the result of the strand's previously yielded effect.
func (sc *scheduler) advance(s *Strand, v any, err error) {
	if s == nil || s.terminal() || s.state == stateRunning {
		return
	}
	for {
		if sc.failure != nil {
			return
		}
		s.state = stateRunning

		msg := s.step(v, err)
		sc.mSteps.Add(1)

		if msg.done {
			sc.finish(s, msg.value, msg.err)
			return
		}

		var blocked bool
		v, err, blocked = sc.dispatch(s, msg.eff)
		if blocked || s.terminal() {
			return
		}
	}
}

// dispatch interprets one yielded effect. It either returns the result the
// strand continues with, or parks the strand and reports blocked.
func (sc *scheduler) dispatch(s *Strand, eff Effect) (resV any, resErr error, blocked bool) {
	sc.mEffects.Add(1)

	if !eff.valid() {
		sc.failStrand(s, fmt.Errorf("%w", ErrNonEffect))
		return nil, nil, true
	}
	s.pending = eff

	switch eff.kind {
	case kindSend:
		sc.deliver(eff.key, eff.val)
		return nil, nil, false

	case kindReceive:
		sc.park(s, recvKey(eff.key), "", eff.pred)
		return nil, nil, true

	case kindCall, kindSequence:
		fn, name := eff.fn, eff.name
		if eff.kind == kindSequence {
			fn, name = sequenceRoutine(eff.effs), "sequence"
		}
		if fn == nil {
			sc.failStrand(s, fmt.Errorf("%w: Call of nil routine", ErrNonEffect))
			return nil, nil, true
		}
		child := sc.spawn(s.id, name, fn)
		child.observedInline = true
		sc.advance(child, nil, nil)
		if sc.failure != nil || s.terminal() {
			return nil, nil, true
		}
		switch child.state {
		case stateDone:
			return child.result, nil, false
		case stateFailed:
			return nil, child.err, false
		case stateCancelled:
			// The sub-call was cancelled out from under the caller; like a
			// joiner of a cancelled strand, the caller makes no progress.
			sc.park(s, callKey(child.id), name, nil)
			return nil, nil, true
		default:
			sc.park(s, callKey(child.id), name, nil)
			return nil, nil, true
		}

	case kindFork:
		handles := make([]*Handle, len(eff.effs))
		children := make([]*Strand, len(eff.effs))
		for i, e := range eff.effs {
			children[i] = sc.spawn(s.id, "fork", forkRoutine(e))
			handles[i] = &Handle{id: children[i].id}
		}
		for _, child := range children {
			sc.advance(child, nil, nil)
			if sc.failure != nil || s.terminal() {
				return nil, nil, true
			}
		}
		if eff.single {
			return handles[0], nil, false
		}
		return handles, nil, false

	case kindCallFork:
		if eff.fn == nil {
			sc.failStrand(s, fmt.Errorf("%w: CallFork of nil routine", ErrNonEffect))
			return nil, nil, true
		}
		child := sc.spawn(s.id, eff.name, eff.fn)
		sc.advance(child, nil, nil)
		if sc.failure != nil || s.terminal() {
			return nil, nil, true
		}
		return &Handle{id: child.id}, nil, false

	case kindJoin:
		return sc.dispatchJoin(s, eff)

	case kindCancel:
		h := eff.handles[0]
		if h == nil {
			sc.failStrand(s, fmt.Errorf("%w: Cancel of nil handle", ErrNonEffect))
			return nil, nil, true
		}
		sc.cancelStrand(h.id)
		return nil, nil, false

	case kindSleep:
		if eff.dur <= 0 {
			// Sleep(0): exactly one scheduling turn, never touching the
			// clock.
			s.state = stateReady
			sc.ready = append(sc.ready, s.id)
			return nil, nil, true
		}
		sc.nextTimerID++
		t := &timer{id: sc.nextTimerID, strand: s.id, deadline: sc.clk.Now().Add(eff.dur)}
		sc.timers = append(sc.timers, t)
		sc.park(s, timerKey(t.id), "", nil)
		return nil, nil, true

	case kindFirst:
		return sc.dispatchFirst(s, eff)

	case kindLockRelease:
		return sc.dispatchRelease(s, eff)

	default:
		sc.failStrand(s, fmt.Errorf("%w", ErrNonEffect))
		return nil, nil, true
	}
}

// park suspends the strand under key. name labels call keys in diagnostics;
// pred filters sends for receive keys.
func (sc *scheduler) park(s *Strand, key waitKey, name string, pred func(any) bool) {
	s.state = stateWaiting
	sc.waits.register(key, s.id, name, pred)
	sc.log.Debug("strand parked", "strand", s.id, "on", key.describe(name))
}

// deliver processes one Send: the set of matching waiters is fixed at this
// instant, then each is advanced in registration order with the sent value.
// A send with no matcher is dropped.
func (sc *scheduler) deliver(key string, value any) {
	sc.mSends.Add(1)
	for _, wt := range sc.waits.matching(recvKey(key), value) {
		t := sc.strands[wt.strand]
		if t == nil || t.terminal() {
			continue // cancelled by an earlier waiter in this set
		}
		sc.advance(t, value, nil)
		if sc.failure != nil {
			return
		}
	}
}

func (sc *scheduler) dispatchJoin(s *Strand, eff Effect) (any, error, bool) {
	ids := make([]int64, len(eff.handles))
	for i, h := range eff.handles {
		if h == nil {
			sc.failStrand(s, fmt.Errorf("%w: Join of nil handle", ErrNonEffect))
			return nil, nil, true
		}
		ids[i] = h.id
	}

	pending := make(map[int64]struct{})
	for _, id := range ids {
		t := sc.strands[id]
		if t == nil {
			continue
		}
		if t.state == stateFailed {
			return nil, t.err, false
		}
		if !t.terminal() {
			pending[id] = struct{}{}
		}
	}

	if len(pending) == 0 {
		return sc.joinValue(ids, eff.single), nil, false
	}

	s.joinOrder = ids
	s.joinPending = pending
	s.joinSingle = eff.single
	s.state = stateWaiting
	for id := range pending {
		sc.waits.register(joinKey(id), s.id, "", nil)
	}
	return nil, nil, true
}

// joinValue collects terminal results in handle order. Cancelled strands
// contribute nil.
func (sc *scheduler) joinValue(ids []int64, single bool) any {
	vals := make([]any, len(ids))
	for i, id := range ids {
		if t := sc.strands[id]; t != nil && t.state == stateDone {
			vals[i] = t.result
		}
	}
	if single {
		return vals[0]
	}
	return vals
}

func (sc *scheduler) dispatchFirst(s *Strand, eff Effect) (any, error, bool) {
	sc.nextRaceID++
	r := &race{id: sc.nextRaceID, parent: s.id}
	sc.races[r.id] = r

	// Spawn every competitor before advancing any, so resolution can cancel
	// the not-yet-started ones too.
	children := make([]*Strand, len(eff.effs))
	for i, e := range eff.effs {
		children[i] = sc.spawn(s.id, "first", forkRoutine(e))
		children[i].raceID = r.id
		children[i].raceIndex = i
		r.children = append(r.children, children[i].id)
		// Racing an existing strand via First(Join(h), …) tears the strand
		// itself down on loss, not just the wrapper.
		var companion int64
		if e.kind == kindJoin && e.single && e.handles[0] != nil {
			companion = e.handles[0].id
		}
		r.companions = append(r.companions, companion)
	}
	for _, child := range children {
		if r.done {
			break
		}
		sc.advance(child, nil, nil)
		if sc.failure != nil || s.terminal() {
			return nil, nil, true
		}
	}

	if r.done {
		if r.err != nil {
			return nil, r.err, false
		}
		return r.winner, nil, false
	}
	sc.park(s, raceKey(r.id), "", nil)
	return nil, nil, true
}

func (sc *scheduler) dispatchRelease(s *Strand, eff Effect) (any, error, bool) {
	l := eff.lock
	if l == nil {
		sc.failStrand(s, fmt.Errorf("%w", ErrNonEffect))
		return nil, nil, true
	}
	if !l.held || l.releaseID != eff.releaseID {
		sc.failStrand(s, fmt.Errorf("%w (%s)", ErrDoubleRelease, l.key))
		return nil, nil, true
	}
	l.held = false
	l.releaseID = ""
	l.handoff++
	sc.deliver(l.key, l.handoff)
	if s.terminal() {
		return nil, nil, true
	}
	return nil, nil, false
}

// finish records a strand's termination and routes its result: resolve the
// race it competes in, resume a parked Call parent, satisfy joiners. A
// failure nobody observed aborts the run.
func (sc *scheduler) finish(s *Strand, v any, err error) {
	if err != nil {
		s.state = stateFailed
		s.err = err
	} else {
		s.state = stateDone
		s.result = v
	}
	sc.mLive.Add(-1)
	sc.log.Debug("strand terminated", "strand", s.id, "failed", err != nil)

	observed := s.observedInline || s == sc.root

	if s.raceID != 0 {
		if r := sc.races[s.raceID]; r != nil && !r.done {
			r.done = true
			delete(sc.races, r.id)
			if err != nil {
				r.err = err
			} else {
				r.winner = Winner{Index: s.raceIndex, Value: v}
			}
			for i, cid := range r.children {
				if cid == s.id {
					continue
				}
				sc.cancelStrand(cid)
				sc.cancelStrand(r.companions[i])
			}
			observed = true
			for _, wt := range sc.waits.take(raceKey(r.id)) {
				p := sc.strands[wt.strand]
				if p == nil || p.terminal() {
					continue
				}
				if r.err != nil {
					sc.advance(p, nil, r.err)
				} else {
					sc.advance(p, r.winner, nil)
				}
			}
		}
	}

	for _, wt := range sc.waits.take(callKey(s.id)) {
		p := sc.strands[wt.strand]
		if p == nil || p.terminal() {
			continue
		}
		observed = true
		sc.advance(p, v, err)
	}

	for _, wt := range sc.waits.take(joinKey(s.id)) {
		p := sc.strands[wt.strand]
		if p == nil || p.terminal() {
			continue
		}
		observed = true
		if err != nil {
			sc.clearJoin(p)
			sc.advance(p, nil, err)
			continue
		}
		delete(p.joinPending, s.id)
		if len(p.joinPending) == 0 {
			val := sc.joinValue(p.joinOrder, p.joinSingle)
			sc.clearJoin(p)
			sc.advance(p, val, nil)
		}
	}

	if err != nil && !observed && sc.failure == nil {
		sc.failure = err
	}
}

// clearJoin drops a joiner's remaining registrations and bookkeeping.
func (sc *scheduler) clearJoin(p *Strand) {
	for id := range p.joinPending {
		sc.waits.dropKey(p.id, joinKey(id))
	}
	p.joinOrder = nil
	p.joinPending = nil
}

// failStrand terminates a strand on runtime misuse detected during dispatch.
// The strand goroutine is suspended at its Yield, so it is released first.
func (sc *scheduler) failStrand(s *Strand, err error) {
	s.kill()
	sc.finish(s, nil, err)
}

// cancelStrand marks the target terminal-cancelled without interpreting any
// further effect of it, removes its wait registrations, and recursively
// cancels its not-yet-terminal children. Joiners already parked on the
// target are not woken; a later Join observes it terminal and yields nil.
// Cancelling a terminal strand is a no-op.
func (sc *scheduler) cancelStrand(id int64) {
	s := sc.strands[id]
	if s == nil || s.terminal() {
		return
	}
	s.cancelRequested = true
	s.state = stateCancelled
	sc.waits.removeStrand(id)
	s.kill()
	sc.mLive.Add(-1)
	sc.log.Debug("strand cancelled", "strand", s.id)
	for _, cid := range s.children {
		sc.cancelStrand(cid)
	}
}

// fireTimers advances external time: prune timers whose sleeper is gone,
// sleep until the nearest remaining deadline, wake everything due. Reports
// whether a timer fired.
func (sc *scheduler) fireTimers() bool {
	live := sc.timers[:0]
	for _, t := range sc.timers {
		if sc.waits.has(timerKey(t.id)) {
			live = append(live, t)
		}
	}
	sc.timers = live
	if len(sc.timers) == 0 {
		return false
	}

	nearest := sc.timers[0].deadline
	for _, t := range sc.timers[1:] {
		if t.deadline.Before(nearest) {
			nearest = t.deadline
		}
	}
	if d := nearest.Sub(sc.clk.Now()); d > 0 {
		sc.clk.Sleep(d)
	}
	now := sc.clk.Now()

	var due []int64
	var remaining []*timer
	for _, t := range sc.timers {
		if t.deadline.After(now) {
			remaining = append(remaining, t)
			continue
		}
		for _, wt := range sc.waits.take(timerKey(t.id)) {
			due = append(due, wt.strand)
		}
	}
	sc.timers = remaining

	for _, id := range due {
		s := sc.strands[id]
		if s == nil || s.terminal() {
			continue
		}
		sc.advance(s, nil, nil)
		if sc.failure != nil {
			break
		}
	}
	return true
}

// hang reports quiescence with parked strands, citing the oldest waiter.
func (sc *scheduler) hang() error {
	wt, key, ok := sc.waits.oldest()
	if !ok {
		return fmt.Errorf("%w: root strand never terminated", ErrHang)
	}
	desc := key.describe(wt.name)
	sc.log.Debug("hang detected", "waiting_for", desc)
	return fmt.Errorf("%w waiting for %s", ErrHang, desc)
}

// shutdown releases the goroutines of every strand still suspended when the
// run ends, so no Run leaks.
func (sc *scheduler) shutdown() {
	for _, s := range sc.strands {
		if !s.terminal() {
			s.state = stateCancelled
			s.kill()
		}
	}
}

// forkRoutine wraps a single effect as a strand body.
func forkRoutine(e Effect) Routine {
	return func(s *Strand) (any, error) {
		return s.Yield(e)
	}
}

// sequenceRoutine yields each effect in turn, discarding all results but the
// last.
func sequenceRoutine(effs []Effect) Routine {
	return func(s *Strand) (any, error) {
		var (
			last any
			err  error
		)
		for _, e := range effs {
			if last, err = s.Yield(e); err != nil {
				return nil, err
			}
		}
		return last, nil
	}
}
