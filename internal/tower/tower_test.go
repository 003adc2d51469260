package tower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vote-monitoring/internal/chain"
)

func ancestorSet(slots ...chain.Slot) map[chain.Slot]struct{} {
	set := make(map[chain.Slot]struct{}, len(slots))
	for _, s := range slots {
		set[s] = struct{}{}
	}
	return set
}

func TestIsRecentOnEmptyTower(t *testing.T) {
	s := NewState()
	assert.True(t, s.IsRecent(0))
	assert.True(t, s.IsRecent(42))
}

func TestIsRecentAgainstLastVotedSlot(t *testing.T) {
	s := NewState()
	s.Apply(&chain.Vote{Slots: []chain.Slot{10}})

	assert.False(t, s.IsRecent(9))
	assert.False(t, s.IsRecent(10))
	assert.True(t, s.IsRecent(11))
}

func TestApplyStacksLockouts(t *testing.T) {
	s := NewState()
	s.Apply(&chain.Vote{Slots: []chain.Slot{10, 11, 12}})

	assert.Equal(t, 3, s.Depth())
	last, ok := s.LastVotedSlot()
	require.True(t, ok)
	assert.Equal(t, chain.Slot(12), last)
	lowest, ok := s.LowestLockoutSlot()
	require.True(t, ok)
	assert.Equal(t, chain.Slot(10), lowest)

	// Confirmations deepen toward the bottom of the stack.
	locks := s.Lockouts()
	assert.Equal(t, uint32(3), locks[0].Confirmations)
	assert.Equal(t, uint32(2), locks[1].Confirmations)
	assert.Equal(t, uint32(1), locks[2].Confirmations)
}

func TestApplyIgnoresNonIncreasingSlots(t *testing.T) {
	s := NewState()
	s.Apply(&chain.Vote{Slots: []chain.Slot{10}})
	s.Apply(&chain.Vote{Slots: []chain.Slot{8, 9, 10}})

	assert.Equal(t, 1, s.Depth())
}

func TestExpiredLockoutsPop(t *testing.T) {
	s := NewState()
	s.Apply(&chain.Vote{Slots: []chain.Slot{10}})
	// Slot 10 at one confirmation locks out through slot 12; voting at 13
	// expires it.
	s.Apply(&chain.Vote{Slots: []chain.Slot{13}})

	assert.Equal(t, 1, s.Depth())
	last, _ := s.LastVotedSlot()
	assert.Equal(t, chain.Slot(13), last)
}

func TestIsLockedOutOnForkSwitch(t *testing.T) {
	s := NewState()
	s.Apply(&chain.Vote{Slots: []chain.Slot{10}})

	// Slot 11 on a fork that does not descend from 10: still locked.
	assert.True(t, s.IsLockedOut(11, ancestorSet(5, 6)))
	// Same slot with 10 in its ancestry: fine.
	assert.False(t, s.IsLockedOut(11, ancestorSet(5, 10)))
	// Past the expiration the stale vote pops and the lock releases.
	assert.True(t, s.IsRecent(13))
	assert.False(t, s.IsLockedOut(13, ancestorSet(5, 6)))
}

func TestIsLockedOutDoesNotMutate(t *testing.T) {
	s := NewState()
	s.Apply(&chain.Vote{Slots: []chain.Slot{10}})
	before := s.Lockouts()

	s.IsLockedOut(11, ancestorSet(10))
	assert.Equal(t, before, s.Lockouts())
	assert.Equal(t, 1, s.Depth())
}

func TestFullTowerRootsAndEarnsCredits(t *testing.T) {
	s := NewState()
	for slot := chain.Slot(1); slot <= MaxLockoutHistory; slot++ {
		s.Apply(&chain.Vote{Slots: []chain.Slot{slot}})
	}
	assert.Equal(t, MaxLockoutHistory, s.Depth())
	assert.Equal(t, uint64(0), s.Credits())
	_, rooted := s.Root()
	assert.False(t, rooted)

	// One more consecutive vote roots the oldest slot.
	s.Apply(&chain.Vote{Slots: []chain.Slot{MaxLockoutHistory + 1}})
	assert.Equal(t, MaxLockoutHistory, s.Depth())
	assert.Equal(t, uint64(1), s.Credits())
	root, rooted := s.Root()
	require.True(t, rooted)
	assert.Equal(t, chain.Slot(1), root)
}

func TestSetCreatesTowersLazily(t *testing.T) {
	set := NewSet()
	assert.Equal(t, 0, set.Len())

	var a, b chain.Pubkey
	a[0], b[0] = 1, 2

	ha := set.GetOrCreate(a)
	assert.Equal(t, 1, set.Len())
	ha.Apply(&chain.Vote{Slots: []chain.Slot{7}})

	// Same identity gets the same tower back.
	last, ok := set.GetOrCreate(a).LastVotedSlot()
	require.True(t, ok)
	assert.Equal(t, chain.Slot(7), last)

	_, ok = set.GetOrCreate(b).LastVotedSlot()
	assert.False(t, ok)
	assert.Equal(t, 2, set.Len())
}
