package strands

import "github.com/google/uuid"

// Queue is a bounded FIFO channel between strands, built purely on
// Call/Send/Receive like Lock. Producers block while the buffer is full,
// consumers while it is empty.
//
// Handoff is directed: a parked side waits on a one-shot ticket key, and the
// waking side pops the oldest ticket before sending on it, so exactly one
// waiter wakes per event. A cancelled waiter's deferred cleanup removes its
// ticket, so a later event targets the next waiter instead.
type Queue struct {
	id   string
	buf  []any
	size int

	// Outstanding ticket keys, oldest first.
	getters []string
	putters []string
}

// NewQueue returns an empty queue holding at most bufferSize elements.
// bufferSize must be at least 1.
func NewQueue(bufferSize int) *Queue {
	if bufferSize < 1 {
		panic(Namespace + ": queue buffer size must be at least 1")
	}
	return &Queue{id: uuid.NewString(), size: bufferSize}
}

// Put returns an effect that appends v to the queue, handing it straight to
// a parked consumer when one is waiting, or blocks until buffer space frees
// up. Yields nil.
func (q *Queue) Put(v any) Effect {
	return namedCall("put", func(s *Strand) (any, error) {
		ticket := ""
		defer func() { q.putters = remove(q.putters, ticket) }()

		for {
			if len(q.buf) < q.size {
				q.buf = append(q.buf, v)
				if len(q.getters) > 0 {
					// Hand the front element to the oldest consumer,
					// bypassing its own buffer scan.
					t := q.getters[0]
					q.getters = q.getters[1:]
					front := q.buf[0]
					q.buf = q.buf[1:]
					if _, err := s.Yield(Send(t, front)); err != nil {
						return nil, err
					}
				}
				return nil, nil
			}

			ticket = "queue-put:" + q.id + ":" + uuid.NewString()
			q.putters = append(q.putters, ticket)
			if _, err := s.Yield(Receive(ticket, nil)); err != nil {
				return nil, err
			}
			ticket = "" // consumed by the waker; re-attempt
		}
	})
}

// Get returns an effect that pops the front element, waking the oldest
// parked producer to refill, or blocks until an element arrives.
func (q *Queue) Get() Effect {
	return namedCall("get", func(s *Strand) (any, error) {
		if len(q.buf) > 0 {
			v := q.buf[0]
			q.buf = q.buf[1:]
			if len(q.putters) > 0 {
				t := q.putters[0]
				q.putters = q.putters[1:]
				if _, err := s.Yield(Send(t)); err != nil {
					return nil, err
				}
			}
			return v, nil
		}

		ticket := "queue-get:" + q.id + ":" + uuid.NewString()
		q.getters = append(q.getters, ticket)
		defer func() { q.getters = remove(q.getters, ticket) }()

		// Woken directly with the produced value.
		return s.Yield(Receive(ticket, nil))
	})
}

func remove(list []string, s string) []string {
	if s == "" {
		return list
	}
	for i, el := range list {
		if el == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
