package strands

import "fmt"

// The wait index backs the message bus and every other parking point in the
// runtime. It maps wait keys to insertion-ordered waiter lists; a Send is
// transient and matches only against waiters parked at the instant it is
// processed. Strands are referenced by id throughout so removal during
// cancellation never chases stale pointers.

type waitKind uint8

const (
	waitRecv waitKind = iota
	waitCall
	waitJoin
	waitRace
	waitTimer
)

// waitKey tags what a parked strand is waiting for: a message key for
// receives, a strand id for calls and joins, a race or timer id otherwise.
type waitKey struct {
	kind waitKind
	key  string
	id   int64
}

func recvKey(key string) waitKey { return waitKey{kind: waitRecv, key: key} }
func callKey(id int64) waitKey   { return waitKey{kind: waitCall, id: id} }
func joinKey(id int64) waitKey   { return waitKey{kind: waitJoin, id: id} }
func raceKey(id int64) waitKey   { return waitKey{kind: waitRace, id: id} }
func timerKey(id int64) waitKey  { return waitKey{kind: waitTimer, id: id} }

// describe renders the key the way hang diagnostics cite it, using the name
// recorded at parking time for calls.
func (k waitKey) describe(name string) string {
	switch k.kind {
	case waitRecv:
		return fmt.Sprintf("Receive(%s)", k.key)
	case waitCall:
		return fmt.Sprintf("Call(%s)", name)
	case waitJoin:
		return fmt.Sprintf("Join(strand %d)", k.id)
	case waitRace:
		return "First"
	case waitTimer:
		return "Sleep"
	default:
		return "<unknown wait>"
	}
}

// waiter is one parked registration: a strand id plus, for receives, the
// predicate the sent value must satisfy. seq orders waiters globally by
// registration time; the hang detector samples the oldest one.
type waiter struct {
	strand int64
	pred   func(any) bool
	name   string
	seq    uint64
}

type waitIndex struct {
	byKey    map[waitKey][]*waiter
	byStrand map[int64][]waitKey
	seq      uint64
}

func newWaitIndex() *waitIndex {
	return &waitIndex{
		byKey:    make(map[waitKey][]*waiter),
		byStrand: make(map[int64][]waitKey),
	}
}

// register parks strand under key. name is the diagnostic label for call
// keys; pred filters sends for receive keys.
func (w *waitIndex) register(key waitKey, strand int64, name string, pred func(any) bool) {
	w.seq++
	w.byKey[key] = append(w.byKey[key], &waiter{strand: strand, pred: pred, name: name, seq: w.seq})
	w.byStrand[strand] = append(w.byStrand[strand], key)
}

// matching removes and returns, in registration order, every waiter under
// key whose predicate accepts value.
func (w *waitIndex) matching(key waitKey, value any) []*waiter {
	list := w.byKey[key]
	if len(list) == 0 {
		return nil
	}

	var matched, kept []*waiter
	for _, wt := range list {
		if wt.pred == nil || wt.pred(value) {
			matched = append(matched, wt)
		} else {
			kept = append(kept, wt)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	if len(kept) == 0 {
		delete(w.byKey, key)
	} else {
		w.byKey[key] = kept
	}
	for _, wt := range matched {
		w.dropStrandKey(wt.strand, key)
	}
	return matched
}

// take removes and returns every waiter under key, in registration order.
func (w *waitIndex) take(key waitKey) []*waiter {
	list := w.byKey[key]
	if len(list) == 0 {
		return nil
	}
	delete(w.byKey, key)
	for _, wt := range list {
		w.dropStrandKey(wt.strand, key)
	}
	return list
}

// removeStrand drops every registration of strand, e.g. on cancellation.
func (w *waitIndex) removeStrand(strand int64) {
	keys := w.byStrand[strand]
	if len(keys) == 0 {
		return
	}
	delete(w.byStrand, strand)
	for _, key := range keys {
		list := w.byKey[key]
		kept := list[:0]
		for _, wt := range list {
			if wt.strand != strand {
				kept = append(kept, wt)
			}
		}
		if len(kept) == 0 {
			delete(w.byKey, key)
		} else {
			w.byKey[key] = kept
		}
	}
}

// dropKey removes a single registration of strand under key, used to drop a
// Join's remaining target registrations once the Join resolves.
func (w *waitIndex) dropKey(strand int64, key waitKey) {
	list := w.byKey[key]
	kept := list[:0]
	for _, wt := range list {
		if wt.strand != strand {
			kept = append(kept, wt)
		}
	}
	if len(kept) == 0 {
		delete(w.byKey, key)
	} else {
		w.byKey[key] = kept
	}
	w.dropStrandKey(strand, key)
}

// dropStrandKey removes one occurrence of key from the strand's key list.
func (w *waitIndex) dropStrandKey(strand int64, key waitKey) {
	keys := w.byStrand[strand]
	for i, k := range keys {
		if k == key {
			keys = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(keys) == 0 {
		delete(w.byStrand, strand)
	} else {
		w.byStrand[strand] = keys
	}
}

// oldest returns the earliest-registered waiter and its key, or nil when
// nothing is parked. The hang detector cites this waiter in its diagnostic.
func (w *waitIndex) oldest() (*waiter, waitKey, bool) {
	var (
		best    *waiter
		bestKey waitKey
	)
	for key, list := range w.byKey {
		for _, wt := range list {
			if best == nil || wt.seq < best.seq {
				best, bestKey = wt, key
			}
		}
	}
	return best, bestKey, best != nil
}

// has reports whether any waiter is parked under key.
func (w *waitIndex) has(key waitKey) bool {
	return len(w.byKey[key]) > 0
}

// empty reports whether no strand is parked at all.
func (w *waitIndex) empty() bool {
	return len(w.byKey) == 0
}
