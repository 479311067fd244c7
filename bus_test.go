package strands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitIndexMatchingOrderAndPredicates(t *testing.T) {
	w := newWaitIndex()
	w.register(recvKey("k"), 1, "", nil)
	w.register(recvKey("k"), 2, "", func(v any) bool { return v == "no" })
	w.register(recvKey("k"), 3, "", func(v any) bool { return v == "yes" })

	matched := w.matching(recvKey("k"), "yes")
	require.Len(t, matched, 2)
	assert.Equal(t, int64(1), matched[0].strand)
	assert.Equal(t, int64(3), matched[1].strand)

	// Non-matching waiter is still parked.
	assert.True(t, w.has(recvKey("k")))
	matched = w.matching(recvKey("k"), "no")
	require.Len(t, matched, 1)
	assert.Equal(t, int64(2), matched[0].strand)
	assert.True(t, w.empty())
}

func TestWaitIndexRemoveStrand(t *testing.T) {
	w := newWaitIndex()
	w.register(recvKey("k"), 1, "", nil)
	w.register(joinKey(7), 1, "", nil)
	w.register(recvKey("k"), 2, "", nil)

	w.removeStrand(1)

	matched := w.matching(recvKey("k"), nil)
	require.Len(t, matched, 1)
	assert.Equal(t, int64(2), matched[0].strand)
	assert.False(t, w.has(joinKey(7)))
}

func TestWaitIndexOldest(t *testing.T) {
	w := newWaitIndex()
	_, _, ok := w.oldest()
	assert.False(t, ok)

	w.register(recvKey("lock:a"), 1, "", nil)
	w.register(callKey(9), 2, "acquire", nil)

	wt, key, ok := w.oldest()
	require.True(t, ok)
	assert.Equal(t, int64(1), wt.strand)
	assert.Equal(t, "Receive(lock:a)", key.describe(wt.name))

	w.removeStrand(1)
	wt, key, ok = w.oldest()
	require.True(t, ok)
	assert.Equal(t, "Call(acquire)", key.describe(wt.name))
}

func TestWaitIndexDropKey(t *testing.T) {
	w := newWaitIndex()
	w.register(joinKey(1), 5, "", nil)
	w.register(joinKey(2), 5, "", nil)

	w.dropKey(5, joinKey(1))
	assert.False(t, w.has(joinKey(1)))
	assert.True(t, w.has(joinKey(2)))
}
