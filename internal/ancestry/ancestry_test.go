package ancestry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vote-monitoring/internal/chain"
)

func TestAncestorsOfWalksParentChain(t *testing.T) {
	tr := NewTracker(100)
	// 10 -> 11 -> 12 -> 14 and a side fork 12 -> 13
	tr.Insert(11, 10)
	tr.Insert(12, 11)
	tr.Insert(13, 12)
	tr.Insert(14, 12)

	ancestors := tr.AncestorsOf(14)
	assert.Equal(t, map[chain.Slot]struct{}{10: {}, 11: {}, 12: {}}, ancestors)

	// The slot itself is never part of its ancestor set.
	_, ok := ancestors[14]
	assert.False(t, ok)

	// The fork sibling is not reachable via parent links.
	_, ok = ancestors[13]
	assert.False(t, ok)
}

func TestAncestorsOfUnknownSlotIsEmpty(t *testing.T) {
	tr := NewTracker(100)
	tr.Insert(11, 10)
	assert.Empty(t, tr.AncestorsOf(99))
}

func TestInsertIsIdempotent(t *testing.T) {
	tr := NewTracker(100)
	tr.Insert(11, 10)
	tr.Insert(11, 10)
	assert.Equal(t, 1, tr.Len())
}

func TestEvictRemovesLowestChildrenFirst(t *testing.T) {
	const cap = 5
	tr := NewTracker(cap)
	for slot := chain.Slot(1); slot <= cap+3; slot++ {
		tr.Insert(slot, slot-1)
	}

	evicted := tr.Evict()
	require.Equal(t, []chain.Slot{1, 2, 3}, evicted)
	assert.Equal(t, cap, tr.Len())

	// Exactly the k lowest children are gone.
	for slot := chain.Slot(1); slot <= 3; slot++ {
		assert.False(t, tr.Contains(slot), "slot %d should be evicted", slot)
	}
	for slot := chain.Slot(4); slot <= cap+3; slot++ {
		assert.True(t, tr.Contains(slot), "slot %d should remain", slot)
	}
}

func TestEvictNoopUnderCap(t *testing.T) {
	tr := NewTracker(10)
	tr.Insert(5, 4)
	assert.Empty(t, tr.Evict())
	assert.Equal(t, 1, tr.Len())
}

func TestLowestAndHighest(t *testing.T) {
	tr := NewTracker(10)
	_, ok := tr.Lowest()
	assert.False(t, ok)

	tr.Insert(7, 6)
	tr.Insert(3, 2)
	tr.Insert(9, 7)

	lowest, ok := tr.Lowest()
	require.True(t, ok)
	assert.Equal(t, chain.Slot(3), lowest)

	highest, ok := tr.Highest()
	require.True(t, ok)
	assert.Equal(t, chain.Slot(9), highest)
}
