package lru

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTouchOrdersByRecency(t *testing.T) {
	idx := New[string]()
	idx.Touch("a")
	idx.Touch("b")
	idx.Touch("c")

	oldest, ok := idx.Oldest()
	require.True(t, ok)
	require.Equal(t, "a", oldest)

	idx.Touch("a") // a becomes most recent
	oldest, ok = idx.Oldest()
	require.True(t, ok)
	require.Equal(t, "b", oldest)
}

func TestRemoveOldest(t *testing.T) {
	idx := New[int]()
	idx.Touch(1)
	idx.Touch(2)
	idx.Touch(3)

	got, ok := idx.RemoveOldest()
	require.True(t, ok)
	require.Equal(t, 1, got)
	require.Equal(t, 2, idx.Len())

	got, ok = idx.RemoveOldest()
	require.True(t, ok)
	require.Equal(t, 2, got)
}

func TestRemoveArbitrary(t *testing.T) {
	idx := New[string]()
	idx.Touch("a")
	idx.Touch("b")
	idx.Touch("c")

	require.True(t, idx.Remove("b"))
	require.False(t, idx.Contains("b"))
	require.Equal(t, 2, idx.Len())

	oldest, _ := idx.Oldest()
	require.Equal(t, "a", oldest)
}

func TestSlotReuseNeverShrinks(t *testing.T) {
	idx := New[int]()
	for i := 0; i < 100; i++ {
		idx.Touch(i)
	}
	for i := 0; i < 100; i++ {
		idx.Remove(i)
	}
	require.Equal(t, 0, idx.Len())

	// Reinsert; backing array must be reused via the free list rather than
	// growing unbounded.
	idx.Touch(1000)
	require.Equal(t, 1, idx.Len())
	require.LessOrEqual(t, len(idx.slots), 101)
}

func TestEmptyIndex(t *testing.T) {
	idx := New[string]()
	_, ok := idx.RemoveOldest()
	require.False(t, ok)
	_, ok = idx.Oldest()
	require.False(t, ok)
}
