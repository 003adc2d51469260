package table

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"vote-monitoring/internal/chain"
)

// Fixed cell glyphs. The widths and characters are a compatibility contract
// with downstream consumers of the rendered table.
const (
	glyphSpace   = "         "
	glyphVoteGap = "   xx    "
	glyphWaiting = "   ^^    "

	signVote   = '+'
	signLanded = '='

	markSuccess = ' '
	markFailure = '!'
)

// Status tags prefixing (and suffixing) each slot line.
const (
	tagBlank = "      "
	tagMiss  = " MISS "
	tagSkip  = " SKIP "
)

// Glyph renders the cell at its fixed width. Vote and Landed cells carry the
// sign, the success marker, and the 4 leading characters of the signature
// twice around a "..".
func (e Entry) Glyph() string {
	switch e.Kind {
	case KindVote, KindLanded:
	case KindVoteGap:
		return glyphVoteGap
	case KindWaiting:
		return glyphWaiting
	default:
		return glyphSpace
	}

	sign := byte(signVote)
	if e.Kind == KindLanded {
		sign = signLanded
	}
	mark := byte(markSuccess)
	if !e.Meta.Success {
		mark = markFailure
	}
	prefix := e.Meta.Signature.String()[:4]
	return fmt.Sprintf("%c%c%s..%s", sign, mark, prefix, prefix)
}

// ParseGlyph is the inverse of Glyph: it recovers the cell kind and, for
// Vote/Landed cells, the signature prefix and success flag.
func ParseGlyph(glyph string) (kind EntryKind, sigPrefix string, success bool, err error) {
	switch glyph {
	case glyphSpace:
		return KindSpace, "", false, nil
	case glyphVoteGap:
		return KindVoteGap, "", false, nil
	case glyphWaiting:
		return KindWaiting, "", false, nil
	}
	if len(glyph) != 12 || glyph[6:8] != ".." || glyph[2:6] != glyph[8:12] {
		return 0, "", false, errors.Errorf("unrecognized cell glyph %q", glyph)
	}
	switch glyph[0] {
	case signVote:
		kind = KindVote
	case signLanded:
		kind = KindLanded
	default:
		return 0, "", false, errors.Errorf("unrecognized cell sign %q", glyph[0])
	}
	switch glyph[1] {
	case markSuccess:
		success = true
	case markFailure:
		success = false
	default:
		return 0, "", false, errors.Errorf("unrecognized success marker %q", glyph[1])
	}
	return kind, glyph[2:6], success, nil
}

// Summary aggregates the confirmation pass over a rendered table.
type Summary struct {
	StartSlot       chain.Slot
	EndSlot         chain.Slot
	TotalSlots      int
	ConfirmedCount  int
	MissCount       int
	FailedVoteCount int
}

// Fprint writes the human-readable summary block.
func (s Summary) Fprint(w io.Writer) {
	fmt.Fprintf(w, "\nSlot Range: %d..%d\n%d of %d confirmed\n",
		s.StartSlot, s.EndSlot, s.ConfirmedCount, s.TotalSlots)
	if s.MissCount > 0 {
		fmt.Fprintf(w, "Missed slots: %d\n", s.MissCount)
	}
	if s.FailedVoteCount > 0 {
		fmt.Fprintf(w, "Failed vote transactions: %d\n", s.FailedVoteCount)
	}
}

// Render writes one line per slot and returns the summary. A confirmed slot
// below the maximum observed last-vote slot with no successful Vote cell is
// a MISS; an unconfirmed slot is a SKIP, never a MISS.
func (t *Table) Render(w io.Writer, confirmed map[chain.Slot]struct{}) Summary {
	summary := Summary{
		StartSlot:       t.StartSlot,
		EndSlot:         t.EndSlot,
		TotalSlots:      int(t.EndSlot-t.StartSlot) + 1,
		ConfirmedCount:  len(confirmed),
		FailedVoteCount: t.FailedVoteCount,
	}
	if t.Len() == 0 {
		summary.TotalSlots = 0
		return summary
	}

	for _, slot := range t.Slots() {
		_, isConfirmed := confirmed[slot]
		miss := slot < t.MaxLastVoteSlot && !t.hasSuccessfulVote(slot)

		tag := tagBlank
		switch {
		case !isConfirmed:
			tag = tagSkip
		case miss:
			tag = tagMiss
			summary.MissCount++
		}

		fmt.Fprintf(w, "%s%8d%s ", tag, slot, tag)
		for _, entry := range t.rows[slot] {
			fmt.Fprintf(w, "%s | ", entry.Glyph())
		}
		fmt.Fprintln(w)
	}
	return summary
}

func (t *Table) hasSuccessfulVote(slot chain.Slot) bool {
	for _, entry := range t.rows[slot] {
		if entry.Kind == KindVote && entry.Meta != nil && entry.Meta.Success {
			return true
		}
	}
	return false
}
