package metrics

import (
	"sync"
	"sync/atomic"
)

// BasicProvider is an in-memory Provider suitable for tests and examples.
// Instruments are created on demand by name and reused for the same name.
type BasicProvider struct {
	mu       sync.Mutex
	counters map[string]*BasicCounter
	updowns  map[string]*BasicUpDownCounter
}

// NewBasicProvider constructs a new BasicProvider.
func NewBasicProvider() *BasicProvider {
	return &BasicProvider{
		counters: make(map[string]*BasicCounter),
		updowns:  make(map[string]*BasicUpDownCounter),
	}
}

// Counter returns the monotonic counter registered under name, creating it
// on first use.
func (p *BasicProvider) Counter(name string) Counter {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.counters[name]
	if !ok {
		c = &BasicCounter{}
		p.counters[name] = c
	}
	return c
}

// UpDownCounter returns the up/down counter registered under name, creating
// it on first use.
func (p *BasicProvider) UpDownCounter(name string) UpDownCounter {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.updowns[name]
	if !ok {
		u = &BasicUpDownCounter{}
		p.updowns[name] = u
	}
	return u
}

// CounterValue returns the current value of the named counter, or zero when
// it was never recorded.
func (p *BasicProvider) CounterValue(name string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c.Value()
	}
	return 0
}

// UpDownValue returns the current value of the named up/down counter, or
// zero when it was never recorded.
func (p *BasicProvider) UpDownValue(name string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.updowns[name]; ok {
		return u.Value()
	}
	return 0
}

// BasicCounter is a monotonic counter backed by an atomic.
type BasicCounter struct {
	v atomic.Int64
}

func (c *BasicCounter) Add(n int64) {
	if n < 0 {
		return
	}
	c.v.Add(n)
}

// Value returns the accumulated count.
func (c *BasicCounter) Value() int64 { return c.v.Load() }

// BasicUpDownCounter is a signed counter backed by an atomic.
type BasicUpDownCounter struct {
	v atomic.Int64
}

func (u *BasicUpDownCounter) Add(n int64) { u.v.Add(n) }

// Value returns the current value.
func (u *BasicUpDownCounter) Value() int64 { return u.v.Load() }
