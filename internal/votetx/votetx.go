// Package votetx decodes historical vote transactions into normalized vote
// spans. A qualifying transaction is a "simple vote": exactly one
// instruction, addressed to the vote program, whose payload decodes to a
// Vote or VoteSwitch.
package votetx

import (
	"context"
	"encoding/binary"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"vote-monitoring/internal/chain"
	"vote-monitoring/internal/rpc"
)

// DefaultVoteProgramID is the well-known vote program address.
const DefaultVoteProgramID = "Vote111111111111111111111111111111111111111"

// Vote instruction enum tags (little-endian u32 prefix of the payload).
const (
	tagVote       = 2
	tagVoteSwitch = 6
)

// VoteMeta is one decoded vote transaction: what was voted and where the
// transaction landed.
type VoteMeta struct {
	Signature  chain.Signature
	Success    bool
	VoteSlots  []chain.Slot // sorted ascending
	LandedSlot chain.Slot
}

// FirstVoteSlot returns the lowest voted slot. Metas always carry at least
// one slot; the extractor discards empty votes.
func (m *VoteMeta) FirstVoteSlot() chain.Slot { return m.VoteSlots[0] }

// LastVoteSlot returns the highest voted slot.
func (m *VoteMeta) LastVoteSlot() chain.Slot { return m.VoteSlots[len(m.VoteSlots)-1] }

// SpanEnd is the exclusive upper bound of the slot range the meta occupies.
func (m *VoteMeta) SpanEnd() chain.Slot { return m.LandedSlot + 2 }

// ParseVoteInstruction decodes a vote instruction payload: u32 tag, u64
// slot-vector length followed by u64 slots, 32-byte hash, and an optional
// i64 timestamp behind a 1-byte presence tag. All integers little-endian.
func ParseVoteInstruction(data []byte) (*chain.Vote, error) {
	if len(data) < 4 {
		return nil, errors.New("vote instruction: payload too short for tag")
	}
	tag := binary.LittleEndian.Uint32(data)
	if tag != tagVote && tag != tagVoteSwitch {
		return nil, errors.Errorf("vote instruction: unsupported tag %d", tag)
	}
	rest := data[4:]

	if len(rest) < 8 {
		return nil, errors.New("vote instruction: truncated slot vector length")
	}
	count := binary.LittleEndian.Uint64(rest)
	rest = rest[8:]
	if count > uint64(len(rest))/8 {
		return nil, errors.Errorf("vote instruction: slot vector length %d exceeds payload", count)
	}
	slots := make([]chain.Slot, count)
	for i := range slots {
		slots[i] = chain.Slot(binary.LittleEndian.Uint64(rest[i*8:]))
	}
	rest = rest[count*8:]

	var hash chain.Hash
	if len(rest) < len(hash) {
		return nil, errors.New("vote instruction: truncated hash")
	}
	copy(hash[:], rest)
	rest = rest[len(hash):]

	vote := &chain.Vote{Slots: slots, Hash: hash}
	if len(rest) == 0 {
		return nil, errors.New("vote instruction: truncated timestamp tag")
	}
	switch rest[0] {
	case 0:
	case 1:
		if len(rest) < 9 {
			return nil, errors.New("vote instruction: truncated timestamp")
		}
		ts := int64(binary.LittleEndian.Uint64(rest[1:]))
		vote.Timestamp = &ts
	default:
		return nil, errors.Errorf("vote instruction: bad timestamp tag %d", rest[0])
	}
	return vote, nil
}

// SimpleVote tests whether tx is a simple-vote transaction against
// voteProgramID and returns the decoded vote when it is.
func SimpleVote(tx *rpc.Transaction, voteProgramID string) (*chain.Vote, bool) {
	if len(tx.Message.Instructions) != 1 {
		return nil, false
	}
	ix := tx.Message.Instructions[0]
	program, ok := tx.Message.ProgramID(ix)
	if !ok || program != voteProgramID {
		return nil, false
	}
	data, err := base58.Decode(ix.Data)
	if err != nil {
		return nil, false
	}
	vote, err := ParseVoteInstruction(data)
	if err != nil {
		return nil, false
	}
	return vote, true
}

// Fetcher is the slice of the RPC client the extractor needs.
type Fetcher interface {
	GetSignaturesForAddress(ctx context.Context, account chain.Pubkey, limit int, before string) ([]rpc.SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*rpc.TransactionDetail, error)
}

// Extraction is the extractor output: the vote metas plus the per-slot
// concurrency histogram bounding the table's packing depth.
type Extraction struct {
	Metas     []VoteMeta
	Histogram map[chain.Slot]int
	MaxDepth  int
	// Fetched counts all descriptors processed, qualifying or not.
	Fetched int
}
