// Package tower provides the per-validator vote tower capability: a lockout
// stack that ties a validator to its fork for exponentially growing windows.
// The correlator consumes it through the Capability/Handle interfaces and
// never reaches into the expiration arithmetic.
package tower

import "vote-monitoring/internal/chain"

// MaxLockoutHistory is the tower depth at which the oldest vote roots.
const MaxLockoutHistory = 31

// initialLockoutBase doubles per confirmation: lockout = base^confirmations.
const initialLockoutBase = 2

// Capability hands out per-identity tower handles. Towers are created lazily
// on first observed vote and live for the process duration.
type Capability interface {
	// GetOrCreate returns the tower handle for identity, creating an empty
	// tower on first use.
	GetOrCreate(identity chain.Pubkey) Handle
	// Len is the number of towers tracked so far.
	Len() int
}

// Handle is one validator's tower.
type Handle interface {
	// IsRecent reports whether slot is newer than every vote recorded so
	// far. True when the tower is empty.
	IsRecent(slot chain.Slot) bool
	// IsLockedOut simulates a vote for slot on a private copy of the tower
	// and reports true when any surviving lockout slot other than slot
	// itself is missing from ancestors: voting would switch forks inside a
	// lockout window.
	IsLockedOut(slot chain.Slot, ancestors map[chain.Slot]struct{}) bool
	// Apply records the vote irreversibly. Callers must have seen
	// IsLockedOut return false for the vote's target slot.
	Apply(vote *chain.Vote)
	// Depth is the current lockout stack depth.
	Depth() int
	// Credits counts rooted votes.
	Credits() uint64
	// LastVotedSlot returns the newest voted slot, if any.
	LastVotedSlot() (chain.Slot, bool)
	// LowestLockoutSlot returns the oldest slot still in the stack, if any.
	LowestLockoutSlot() (chain.Slot, bool)
	// Lockouts returns a snapshot of the stack, oldest first.
	Lockouts() []Lockout
}

// Lockout is one stack entry: a voted slot and how many times votes above it
// have confirmed it.
type Lockout struct {
	Slot          chain.Slot
	Confirmations uint32
}

// window is the number of slots this entry stays locked for.
func (l Lockout) window() chain.Slot {
	w := chain.Slot(1)
	for i := uint32(0); i < l.Confirmations; i++ {
		w *= initialLockoutBase
	}
	return w
}

// expirationSlot is the last slot this entry is still locked out at.
func (l Lockout) expirationSlot() chain.Slot {
	return l.Slot + l.window()
}

func (l Lockout) lockedOutAt(slot chain.Slot) bool {
	return l.expirationSlot() >= slot
}

// State is the default tower implementation.
type State struct {
	votes   []Lockout
	root    *chain.Slot
	credits uint64
}

var _ Handle = (*State)(nil)

// NewState returns an empty tower.
func NewState() *State { return &State{} }

func (s *State) Depth() int { return len(s.votes) }

func (s *State) Credits() uint64 { return s.credits }

// Root returns the rooted slot, if any vote has rooted yet.
func (s *State) Root() (chain.Slot, bool) {
	if s.root == nil {
		return 0, false
	}
	return *s.root, true
}

func (s *State) LastVotedSlot() (chain.Slot, bool) {
	if len(s.votes) == 0 {
		return 0, false
	}
	return s.votes[len(s.votes)-1].Slot, true
}

func (s *State) LowestLockoutSlot() (chain.Slot, bool) {
	if len(s.votes) == 0 {
		return 0, false
	}
	lowest := s.votes[0].Slot
	for _, l := range s.votes[1:] {
		if l.Slot < lowest {
			lowest = l.Slot
		}
	}
	return lowest, true
}

func (s *State) Lockouts() []Lockout {
	out := make([]Lockout, len(s.votes))
	copy(out, s.votes)
	return out
}

func (s *State) IsRecent(slot chain.Slot) bool {
	if last, ok := s.LastVotedSlot(); ok && slot <= last {
		return false
	}
	return true
}

func (s *State) IsLockedOut(slot chain.Slot, ancestors map[chain.Slot]struct{}) bool {
	sim := s.clone()
	sim.processSlotVote(slot)
	for _, l := range sim.votes {
		if l.Slot == slot {
			continue
		}
		if _, ok := ancestors[l.Slot]; !ok {
			return true
		}
	}
	return false
}

func (s *State) Apply(vote *chain.Vote) {
	for _, slot := range vote.Slots {
		s.processSlotVote(slot)
	}
}

func (s *State) clone() *State {
	c := &State{
		votes:   make([]Lockout, len(s.votes)),
		credits: s.credits,
	}
	copy(c.votes, s.votes)
	if s.root != nil {
		r := *s.root
		c.root = &r
	}
	return c
}

// processSlotVote pushes one voted slot: expired entries pop, a full stack
// roots its oldest entry for a credit, then confirmations deepen.
func (s *State) processSlotVote(slot chain.Slot) {
	if last, ok := s.LastVotedSlot(); ok && slot <= last {
		return
	}
	s.popExpired(slot)
	if len(s.votes) == MaxLockoutHistory {
		rooted := s.votes[0].Slot
		s.root = &rooted
		s.credits++
		s.votes = s.votes[1:]
	}
	s.votes = append(s.votes, Lockout{Slot: slot, Confirmations: 1})
	s.doubleLockouts()
}

func (s *State) popExpired(slot chain.Slot) {
	for len(s.votes) > 0 {
		last := s.votes[len(s.votes)-1]
		if last.lockedOutAt(slot) {
			return
		}
		s.votes = s.votes[:len(s.votes)-1]
	}
}

func (s *State) doubleLockouts() {
	depth := len(s.votes)
	for i := range s.votes {
		if uint32(depth-i) > s.votes[i].Confirmations {
			s.votes[i].Confirmations++
		}
	}
}

// Set is the process-lifetime tower map, one State per validator identity.
// It is owned and mutated only by the correlator loop.
type Set struct {
	towers map[chain.Pubkey]*State
}

var _ Capability = (*Set)(nil)

// NewSet returns an empty tower map.
func NewSet() *Set {
	return &Set{towers: make(map[chain.Pubkey]*State)}
}

func (s *Set) GetOrCreate(identity chain.Pubkey) Handle {
	if t, ok := s.towers[identity]; ok {
		return t
	}
	t := NewState()
	s.towers[identity] = t
	return t
}

// Len returns the number of towers tracked so far.
func (s *Set) Len() int { return len(s.towers) }
