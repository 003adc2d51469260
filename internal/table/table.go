// Package table packs decoded vote spans into a non-overlapping row layout
// and renders one line per slot, correlated against the confirmed-slot set,
// exposing missed confirmations.
package table

import (
	"fmt"
	"sort"

	"vote-monitoring/internal/chain"
	"vote-monitoring/internal/votetx"
)

// EntryKind classifies one (slot, depth) cell inside a placed span.
type EntryKind int

const (
	KindSpace EntryKind = iota
	KindVote
	KindVoteGap
	KindWaiting
	KindLanded
)

// Entry is one table cell. A zero Entry (nil Meta) is unoccupied space.
type Entry struct {
	Kind EntryKind
	Meta *votetx.VoteMeta
}

// LayoutError reports a span that could not be placed within the depth bound
// computed by the extractor. It means extractor and builder disagree and is
// always fatal.
type LayoutError struct {
	Meta     votetx.VoteMeta
	MaxDepth int
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("vote table: no free depth below %d for span %d..%d (signature %s)",
		e.MaxDepth, e.Meta.FirstVoteSlot(), e.Meta.LandedSlot+1, e.Meta.Signature)
}

// Table is the packed slot/depth grid.
type Table struct {
	rows  map[chain.Slot][]Entry
	depth int

	StartSlot chain.Slot
	EndSlot   chain.Slot
	// MaxLastVoteSlot bounds the MISS classification: slots at or above it
	// were never expected to carry a vote.
	MaxLastVoteSlot chain.Slot
	FailedVoteCount int
}

// Build packs metas into rows with greedy first-fit: each span takes the
// first depth at which none of its slots is already occupied. maxDepth is
// the extractor's histogram maximum; needing more is a layout invariant
// violation. The single highest-keyed row (a sentinel boundary, not an
// observed slot) is discarded, and interior slot gaps are filled with
// all-space rows.
func Build(metas []votetx.VoteMeta, maxDepth int) (*Table, error) {
	t := &Table{
		rows:  make(map[chain.Slot][]Entry),
		depth: maxDepth,
	}
	if len(metas) == 0 {
		return t, nil
	}

	sorted := make([]votetx.VoteMeta, len(metas))
	copy(sorted, metas)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LandedSlot < sorted[j].LandedSlot
	})

	for i := range sorted {
		meta := &sorted[i]
		if meta.LastVoteSlot() > t.MaxLastVoteSlot {
			t.MaxLastVoteSlot = meta.LastVoteSlot()
		}
		if !meta.Success {
			t.FailedVoteCount++
		}
		if err := t.place(meta, maxDepth); err != nil {
			return nil, err
		}
	}

	t.dropSentinelRow()
	t.fillGaps()
	return t, nil
}

func (t *Table) row(slot chain.Slot) []Entry {
	r, ok := t.rows[slot]
	if !ok {
		r = make([]Entry, t.depth)
		t.rows[slot] = r
	}
	return r
}

func (t *Table) place(meta *votetx.VoteMeta, maxDepth int) error {
	first := meta.FirstVoteSlot()
	end := meta.SpanEnd()

	for depth := 0; ; depth++ {
		if depth >= maxDepth {
			return &LayoutError{Meta: *meta, MaxDepth: maxDepth}
		}
		occupied := false
		for slot := first; slot < end; slot++ {
			if t.row(slot)[depth].Meta != nil {
				occupied = true
				break
			}
		}
		if occupied {
			continue
		}
		for slot := first; slot < end; slot++ {
			t.rows[slot][depth] = Entry{Kind: classify(slot, meta), Meta: meta}
		}
		return nil
	}
}

// classify assigns the cell kind for slot within meta's span.
func classify(slot chain.Slot, meta *votetx.VoteMeta) EntryKind {
	switch {
	case slot == meta.LandedSlot:
		return KindLanded
	case containsSlot(meta.VoteSlots, slot):
		return KindVote
	case slot < meta.LastVoteSlot():
		// Between voted slots but omitted from the vote: not part of the
		// chain the validator saw at vote time.
		return KindVoteGap
	case slot < meta.LandedSlot:
		return KindWaiting
	default:
		return KindSpace
	}
}

func containsSlot(slots []chain.Slot, slot chain.Slot) bool {
	i := sort.Search(len(slots), func(i int) bool { return slots[i] >= slot })
	return i < len(slots) && slots[i] == slot
}

// dropSentinelRow removes the highest-keyed row.
func (t *Table) dropSentinelRow() {
	if len(t.rows) == 0 {
		return
	}
	highest := t.highestSlot()
	delete(t.rows, highest)
}

// fillGaps pads every slot between the remaining min and max keys with an
// all-space row so the slot axis has no holes.
func (t *Table) fillGaps() {
	if len(t.rows) == 0 {
		return
	}
	t.StartSlot = t.lowestSlot()
	t.EndSlot = t.highestSlot()
	for slot := t.StartSlot; slot <= t.EndSlot; slot++ {
		t.row(slot)
	}
}

func (t *Table) lowestSlot() chain.Slot {
	first := true
	var lowest chain.Slot
	for slot := range t.rows {
		if first || slot < lowest {
			lowest = slot
			first = false
		}
	}
	return lowest
}

func (t *Table) highestSlot() chain.Slot {
	first := true
	var highest chain.Slot
	for slot := range t.rows {
		if first || slot > highest {
			highest = slot
			first = false
		}
	}
	return highest
}

// Slots returns the table's slot keys in ascending order.
func (t *Table) Slots() []chain.Slot {
	slots := make([]chain.Slot, 0, len(t.rows))
	for slot := range t.rows {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}

// Row returns the entries for slot, or nil when the slot is outside the
// table.
func (t *Table) Row(slot chain.Slot) []Entry {
	return t.rows[slot]
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }
