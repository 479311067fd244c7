package tests

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ygrebnov/strands"
)

func TestSimpleReturn(t *testing.T) {
	v, err := run(t, func(s *strands.Strand) (any, error) {
		if _, err := s.Yield(strands.Send("key")); err != nil {
			return nil, err
		}
		return 5, nil
	})

	require.NoError(t, err)
	require.Equal(t, 5, v)
}

func TestImmediateReturn(t *testing.T) {
	v, err := run(t, func(_ *strands.Strand) (any, error) {
		return 3, nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, v)
}

func TestReceiveBeforeSend(t *testing.T) {
	receiver := func(s *strands.Strand) (any, error) {
		return s.Yield(strands.Receive("key", nil))
	}
	sender := func(s *strands.Strand) (any, error) {
		return s.Yield(strands.Send("key", 5))
	}

	v, err := run(t, func(s *strands.Strand) (any, error) {
		rv, err := s.Yield(strands.CallFork(receiver))
		if err != nil {
			return nil, err
		}
		sv, err := s.Yield(strands.CallFork(sender))
		if err != nil {
			return nil, err
		}
		if _, err = s.Yield(strands.Join(handle(sv))); err != nil {
			return nil, err
		}
		got, err := s.Yield(strands.Join(handle(rv)))
		if err != nil {
			return nil, err
		}
		// Joining again yields the same value: the strand is already done.
		again, err := s.Yield(strands.Join(handle(rv)))
		if err != nil {
			return nil, err
		}
		assert.Equal(t, got, again)
		return got, nil
	})

	require.NoError(t, err)
	require.Equal(t, 5, v)
}

func TestSendBeforeReceiveIsDropped(t *testing.T) {
	receiver := func(s *strands.Strand) (any, error) {
		return s.Yield(strands.Receive("key", nil))
	}
	sender := func(s *strands.Strand) (any, error) {
		return s.Yield(strands.Send("key", 5))
	}

	// Forked in the wrong order: the send fires before the receiver parks,
	// so the receiver waits forever.
	_, err := run(t, func(s *strands.Strand) (any, error) {
		sv, err := s.Yield(strands.CallFork(sender))
		if err != nil {
			return nil, err
		}
		rv, err := s.Yield(strands.CallFork(receiver))
		if err != nil {
			return nil, err
		}
		if _, err = s.Yield(strands.Join(handle(sv))); err != nil {
			return nil, err
		}
		return s.Yield(strands.Join(handle(rv)))
	})

	require.ErrorIs(t, err, strands.ErrHang)
	require.Contains(t, err.Error(), "hanging strands detected")
}

func TestYieldNonEffect(t *testing.T) {
	_, err := run(t, func(s *strands.Strand) (any, error) {
		return s.Yield(strands.Effect{})
	})

	require.ErrorIs(t, err, strands.ErrNonEffect)
	require.Contains(t, err.Error(), "non-effect")
}

func TestNeverJoin(t *testing.T) {
	sender := func(s *strands.Strand) (any, error) {
		yield(s, strands.Send("key", 5))
		yield(s, strands.Send("key2", 5))
		return nil, nil
	}

	v, err := run(t, func(s *strands.Strand) (any, error) {
		yield(s, strands.CallFork(sender))
		return nil, nil
	})

	require.NoError(t, err)
	require.Nil(t, v)
}

func TestCall(t *testing.T) {
	sub := func(s *strands.Strand) (any, error) {
		yield(s, strands.Send("key", 5))
		return 10, nil
	}

	v, err := run(t, func(s *strands.Strand) (any, error) {
		return s.Yield(strands.Call(sub))
	})

	require.NoError(t, err)
	require.Equal(t, 10, v)
}

func TestCallFailurePropagates(t *testing.T) {
	boom := func(_ *strands.Strand) (any, error) {
		return nil, assert.AnError
	}

	_, err := run(t, func(s *strands.Strand) (any, error) {
		return s.Yield(strands.Call(boom))
	})

	require.ErrorIs(t, err, assert.AnError)
}

func TestCallFailureHandled(t *testing.T) {
	boom := func(_ *strands.Strand) (any, error) {
		return nil, assert.AnError
	}

	v, err := run(t, func(s *strands.Strand) (any, error) {
		if _, err := s.Yield(strands.Call(boom)); err != nil {
			return "recovered", nil
		}
		return nil, nil
	})

	require.NoError(t, err)
	require.Equal(t, "recovered", v)
}

func TestUnjoinedForkFailureAbortsRun(t *testing.T) {
	boom := func(_ *strands.Strand) (any, error) {
		return nil, assert.AnError
	}

	_, err := run(t, func(s *strands.Strand) (any, error) {
		yield(s, strands.CallFork(boom))
		return nil, nil
	})

	require.ErrorIs(t, err, assert.AnError)
}

func TestStrandPanicBecomesFailure(t *testing.T) {
	_, err := run(t, func(_ *strands.Strand) (any, error) {
		panic("boom")
	})

	require.ErrorIs(t, err, strands.ErrPanicked)
	require.True(t, strings.Contains(err.Error(), "boom"))
}

func TestSequenceYieldsLastResult(t *testing.T) {
	got := 0
	receiver := func(s *strands.Strand) (any, error) {
		v, err := s.Yield(strands.Sequence(
			strands.Receive("a", nil),
			strands.Receive("b", nil),
		))
		if err != nil {
			return nil, err
		}
		got = v.(int)
		return v, nil
	}

	_, err := run(t, func(s *strands.Strand) (any, error) {
		yield(s, strands.CallFork(receiver))
		yield(s, strands.Send("a", 1))
		yield(s, strands.Send("b", 2))
		return nil, nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, got)
}

func TestReceivePredicateFilters(t *testing.T) {
	receiver := func(s *strands.Strand) (any, error) {
		return s.Yield(strands.Receive("key", func(v any) bool { return v == 7 }))
	}

	v, err := run(t, func(s *strands.Strand) (any, error) {
		rv, err := s.Yield(strands.CallFork(receiver))
		if err != nil {
			return nil, err
		}
		yield(s, strands.Send("key", 5)) // filtered out
		yield(s, strands.Send("key", 7))
		return s.Yield(strands.Join(handle(rv)))
	})

	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestBroadcastWakesAllMatchers(t *testing.T) {
	a := 0
	receiver := func(s *strands.Strand) (any, error) {
		v, err := s.Yield(strands.Receive("key", nil))
		if err != nil {
			return nil, err
		}
		a += v.(int)
		return nil, nil
	}

	_, err := run(t, func(s *strands.Strand) (any, error) {
		yield(s, strands.CallFork(receiver))
		yield(s, strands.CallFork(receiver))
		yield(s, strands.CallFork(receiver))
		yield(s, strands.Send("key", 2))
		assert.Equal(t, 6, a)
		return nil, nil
	})

	require.NoError(t, err)
	require.Equal(t, 6, a)
}
