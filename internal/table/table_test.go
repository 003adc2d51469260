package table

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vote-monitoring/internal/chain"
	"vote-monitoring/internal/votetx"
)

func testMeta(fill byte, success bool, slots []chain.Slot, landed chain.Slot) votetx.VoteMeta {
	var sig chain.Signature
	for i := range sig {
		sig[i] = fill
	}
	return votetx.VoteMeta{
		Signature:  sig,
		Success:    success,
		VoteSlots:  slots,
		LandedSlot: landed,
	}
}

func confirmedSet(slots ...chain.Slot) map[chain.Slot]struct{} {
	set := make(map[chain.Slot]struct{}, len(slots))
	for _, s := range slots {
		set[s] = struct{}{}
	}
	return set
}

func kinds(row []Entry) []EntryKind {
	out := make([]EntryKind, len(row))
	for i, e := range row {
		out[i] = e.Kind
	}
	return out
}

func TestBuildPacksOverlappingSpans(t *testing.T) {
	a := testMeta(1, true, []chain.Slot{10, 11}, 12)
	b := testMeta(2, true, []chain.Slot{11, 12}, 13)

	// Spans [10,13] and [11,14] overlap at 11 and 12; the earlier-landing
	// span keeps depth 0 and the later one moves to depth 1.
	tbl, err := Build([]votetx.VoteMeta{b, a}, 2)
	require.NoError(t, err)

	assert.Equal(t, chain.Slot(10), tbl.StartSlot)
	assert.Equal(t, chain.Slot(13), tbl.EndSlot)
	assert.Equal(t, chain.Slot(12), tbl.MaxLastVoteSlot)
	assert.Equal(t, 0, tbl.FailedVoteCount)
	assert.Equal(t, []chain.Slot{10, 11, 12, 13}, tbl.Slots())

	assert.Equal(t, []EntryKind{KindVote, KindSpace}, kinds(tbl.Row(10)))
	assert.Equal(t, []EntryKind{KindVote, KindVote}, kinds(tbl.Row(11)))
	assert.Equal(t, []EntryKind{KindLanded, KindVote}, kinds(tbl.Row(12)))
	assert.Equal(t, []EntryKind{KindSpace, KindLanded}, kinds(tbl.Row(13)))

	// Depth 0 belongs to A throughout, depth 1 to B.
	assert.Equal(t, a.Signature, tbl.Row(11)[0].Meta.Signature)
	assert.Equal(t, b.Signature, tbl.Row(11)[1].Meta.Signature)
}

func TestBuildMarksVoteGaps(t *testing.T) {
	// Slot 11 sits between voted slots but was not voted for.
	m := testMeta(1, true, []chain.Slot{10, 12}, 14)

	tbl, err := Build([]votetx.VoteMeta{m}, 1)
	require.NoError(t, err)

	assert.Equal(t, KindVote, tbl.Row(10)[0].Kind)
	assert.Equal(t, KindVoteGap, tbl.Row(11)[0].Kind)
	assert.Equal(t, KindVote, tbl.Row(12)[0].Kind)
	assert.Equal(t, KindWaiting, tbl.Row(13)[0].Kind)
	assert.Equal(t, KindLanded, tbl.Row(14)[0].Kind)
}

func TestBuildDropsSentinelAndFillsGaps(t *testing.T) {
	a := testMeta(1, true, []chain.Slot{10}, 11)
	b := testMeta(2, true, []chain.Slot{20}, 21)

	tbl, err := Build([]votetx.VoteMeta{a, b}, 1)
	require.NoError(t, err)

	// The row one past the highest landing slot is the sentinel and is gone;
	// everything between the spans is padded with space rows.
	slots := tbl.Slots()
	require.Len(t, slots, 12)
	assert.Equal(t, chain.Slot(10), slots[0])
	assert.Equal(t, chain.Slot(21), slots[len(slots)-1])
	for slot := chain.Slot(13); slot <= 19; slot++ {
		require.Len(t, tbl.Row(slot), 1)
		assert.Equal(t, KindSpace, tbl.Row(slot)[0].Kind, "slot %d", slot)
	}
	// Slot 12 is A's sentinel cell, kept because B's range extends past it.
	assert.Equal(t, KindSpace, tbl.Row(12)[0].Kind)
}

func TestBuildRejectsSpansBeyondDepthBound(t *testing.T) {
	a := testMeta(1, true, []chain.Slot{10, 11}, 12)
	b := testMeta(2, true, []chain.Slot{11, 12}, 13)

	_, err := Build([]votetx.VoteMeta{a, b}, 1)
	require.Error(t, err)
	var layoutErr *LayoutError
	require.ErrorAs(t, err, &layoutErr)
	assert.Equal(t, b.Signature, layoutErr.Meta.Signature)
	assert.Equal(t, 1, layoutErr.MaxDepth)
}

func TestBuildEmpty(t *testing.T) {
	tbl, err := Build(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())

	var buf bytes.Buffer
	summary := tbl.Render(&buf, nil)
	assert.Equal(t, 0, summary.TotalSlots)
	assert.Empty(t, buf.String())
}

func TestGlyphRoundTrip(t *testing.T) {
	okMeta := testMeta(7, true, []chain.Slot{10}, 11)
	failMeta := testMeta(8, false, []chain.Slot{10}, 11)

	cases := []struct {
		entry      Entry
		wantKind   EntryKind
		wantPrefix string
		wantOK     bool
	}{
		{Entry{Kind: KindSpace}, KindSpace, "", false},
		{Entry{Kind: KindVoteGap}, KindVoteGap, "", false},
		{Entry{Kind: KindWaiting}, KindWaiting, "", false},
		{Entry{Kind: KindVote, Meta: &okMeta}, KindVote, okMeta.Signature.String()[:4], true},
		{Entry{Kind: KindLanded, Meta: &okMeta}, KindLanded, okMeta.Signature.String()[:4], true},
		{Entry{Kind: KindVote, Meta: &failMeta}, KindVote, failMeta.Signature.String()[:4], false},
	}
	for _, tc := range cases {
		glyph := tc.entry.Glyph()
		kind, prefix, success, err := ParseGlyph(glyph)
		require.NoError(t, err, "glyph %q", glyph)
		assert.Equal(t, tc.wantKind, kind)
		assert.Equal(t, tc.wantPrefix, prefix)
		assert.Equal(t, tc.wantOK, success)
	}
}

func TestGlyphWidths(t *testing.T) {
	meta := testMeta(7, true, []chain.Slot{10}, 11)

	assert.Len(t, Entry{Kind: KindSpace}.Glyph(), 9)
	assert.Len(t, Entry{Kind: KindVoteGap}.Glyph(), 9)
	assert.Len(t, Entry{Kind: KindWaiting}.Glyph(), 9)
	assert.Len(t, Entry{Kind: KindVote, Meta: &meta}.Glyph(), 12)
	assert.Len(t, Entry{Kind: KindLanded, Meta: &meta}.Glyph(), 12)
}

func TestParseGlyphRejectsGarbage(t *testing.T) {
	for _, glyph := range []string{"", "   ", "+ ab..cd", "+ abcd..efgh", "? abcd..abcd", "+?abcd..abcd"} {
		_, _, _, err := ParseGlyph(glyph)
		assert.Error(t, err, "glyph %q", glyph)
	}
}

func TestRenderMissAndSkip(t *testing.T) {
	// A votes 10 and lands at 11; B votes 13 and lands at 14. Slots 11 and 12
	// carry no successful Vote cell and sit below the max last-vote slot (13).
	a := testMeta(1, true, []chain.Slot{10}, 11)
	b := testMeta(2, true, []chain.Slot{13}, 14)

	tbl, err := Build([]votetx.VoteMeta{a, b}, 1)
	require.NoError(t, err)

	// Slot 12 unconfirmed: SKIP. Slot 11 confirmed without a vote: MISS.
	var buf bytes.Buffer
	summary := tbl.Render(&buf, confirmedSet(10, 11, 13, 14))

	assert.Equal(t, 1, summary.MissCount)
	assert.Equal(t, 4, summary.ConfirmedCount)
	assert.Equal(t, 5, summary.TotalSlots)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "            10       "), "slot 10: %q", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], " MISS       11 MISS "), "slot 11: %q", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], " SKIP       12 SKIP "), "slot 12: %q", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "            13       "), "slot 13: %q", lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "            14       "), "slot 14: %q", lines[4])

	// Every cell terminates with the column separator.
	for _, line := range lines {
		assert.True(t, strings.HasSuffix(line, " | "), "line %q", line)
	}
}

func TestRenderFailedVoteIsNotSuccessful(t *testing.T) {
	// The only vote for slot 10 failed, so a confirmed slot 10 is a MISS.
	failed := testMeta(1, false, []chain.Slot{10}, 11)
	later := testMeta(2, true, []chain.Slot{13}, 14)

	tbl, err := Build([]votetx.VoteMeta{failed, later}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.FailedVoteCount)

	var buf bytes.Buffer
	summary := tbl.Render(&buf, confirmedSet(10, 11, 12, 13, 14))
	assert.Equal(t, 3, summary.MissCount)
	assert.Equal(t, 1, summary.FailedVoteCount)
	assert.True(t, strings.HasPrefix(buf.String(), " MISS       10 MISS "), "output: %q", buf.String())
}

func TestSummaryFprint(t *testing.T) {
	var buf bytes.Buffer
	Summary{
		StartSlot:      10,
		EndSlot:        14,
		TotalSlots:     5,
		ConfirmedCount: 4,
	}.Fprint(&buf)
	assert.Equal(t, "\nSlot Range: 10..14\n4 of 5 confirmed\n", buf.String())

	buf.Reset()
	Summary{
		StartSlot:       10,
		EndSlot:         14,
		TotalSlots:      5,
		ConfirmedCount:  4,
		MissCount:       2,
		FailedVoteCount: 1,
	}.Fprint(&buf)
	assert.Equal(t,
		"\nSlot Range: 10..14\n4 of 5 confirmed\nMissed slots: 2\nFailed vote transactions: 1\n",
		buf.String())
}
