// Package ancestry maintains a bounded view of fork ancestry: a child→parent
// slot map fed by the slot notification stream, evicted lowest-slot-first so
// memory stays constant while the cluster advances.
package ancestry

import "vote-monitoring/internal/chain"

// DefaultCap is the default number of live child entries.
const DefaultCap = 1000

// Tracker is a child→parent slot map with sliding eviction. It is not safe
// for concurrent use; the correlator loop owns it exclusively.
type Tracker struct {
	parents map[chain.Slot]chain.Slot
	cap     int
}

// NewTracker returns a tracker bounded to cap entries. A cap <= 0 falls back
// to DefaultCap.
func NewTracker(cap int) *Tracker {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Tracker{
		parents: make(map[chain.Slot]chain.Slot),
		cap:     cap,
	}
}

// Insert records the edge child→parent. Re-inserting an existing child is a
// no-op overwrite; the streams are duplicate-tolerant.
func (t *Tracker) Insert(child, parent chain.Slot) {
	t.parents[child] = parent
}

// Contains reports whether slot has a recorded parent edge.
func (t *Tracker) Contains(slot chain.Slot) bool {
	_, ok := t.parents[slot]
	return ok
}

// Len returns the number of live child entries.
func (t *Tracker) Len() int { return len(t.parents) }

// AncestorsOf walks parent pointers from slot until no edge is recorded and
// returns the traversed set. The slot itself is excluded.
func (t *Tracker) AncestorsOf(slot chain.Slot) map[chain.Slot]struct{} {
	ancestors := make(map[chain.Slot]struct{})
	for {
		parent, ok := t.parents[slot]
		if !ok {
			return ancestors
		}
		if _, seen := ancestors[parent]; seen {
			// A well-formed forest has no cycles; stop if one appears.
			return ancestors
		}
		ancestors[parent] = struct{}{}
		slot = parent
	}
}

// Evict removes the lowest-numbered child entries until the tracker holds at
// most cap entries, returning the evicted children in eviction order.
func (t *Tracker) Evict() []chain.Slot {
	var evicted []chain.Slot
	for len(t.parents) > t.cap {
		lowest, ok := t.Lowest()
		if !ok {
			break
		}
		delete(t.parents, lowest)
		evicted = append(evicted, lowest)
	}
	return evicted
}

// Lowest returns the lowest-numbered child slot.
func (t *Tracker) Lowest() (chain.Slot, bool) {
	if len(t.parents) == 0 {
		return 0, false
	}
	first := true
	var lowest chain.Slot
	for child := range t.parents {
		if first || child < lowest {
			lowest = child
			first = false
		}
	}
	return lowest, true
}

// Highest returns the highest-numbered child slot.
func (t *Tracker) Highest() (chain.Slot, bool) {
	if len(t.parents) == 0 {
		return 0, false
	}
	first := true
	var highest chain.Slot
	for child := range t.parents {
		if first || child > highest {
			highest = child
			first = false
		}
	}
	return highest, true
}
