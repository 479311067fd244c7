package strands

import "github.com/google/uuid"

// Lock is a cooperative mutex built purely on Call/Send/Receive; the
// scheduler has no knowledge of it beyond the release effect. At most one
// strand holds the lock at any instant.
//
// A Lock is bound to a single Run: all strand execution is serialized, so the
// held flag needs no further synchronization.
type Lock struct {
	key       string
	held      bool
	releaseID string
	handoff   uint64
}

// NewLock returns an unheld lock.
func NewLock() *Lock {
	return &Lock{key: "lock:" + uuid.NewString()}
}

// Acquire returns an effect that blocks until the lock is free and yields
// the release effect for this acquisition. Yield the release exactly once to
// unlock; yielding it again fails the strand with ErrDoubleRelease. The
// release may be yielded from any strand, not only the acquirer.
//
// Contended acquires park on the lock's bus key; each release broadcasts a
// handoff nonce and the woken waiters retry in FIFO order, so exactly one of
// them acquires per release and the rest re-park.
//
// Cancelling a strand between acquire and release leaves the lock held
// forever; the run surfaces that as a hang at quiescence.
func (l *Lock) Acquire() Effect {
	return namedCall("acquire", func(s *Strand) (any, error) {
		for {
			if !l.held {
				l.held = true
				l.releaseID = uuid.NewString()
				return Effect{kind: kindLockRelease, lock: l, releaseID: l.releaseID}, nil
			}
			if _, err := s.Yield(Receive(l.key, nil)); err != nil {
				return nil, err
			}
		}
	})
}
