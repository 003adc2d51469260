package votetx

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"vote-monitoring/internal/chain"
)

// Extractor turns an account's recent transaction history into vote spans.
type Extractor struct {
	fetcher       Fetcher
	voteProgramID string
	log           *logrus.Logger
}

// NewExtractor builds an extractor over fetcher. An empty voteProgramID
// falls back to DefaultVoteProgramID.
func NewExtractor(fetcher Fetcher, voteProgramID string, log *logrus.Logger) *Extractor {
	if voteProgramID == "" {
		voteProgramID = DefaultVoteProgramID
	}
	return &Extractor{fetcher: fetcher, voteProgramID: voteProgramID, log: log}
}

// Extract fetches up to limit descriptors for account (newest first,
// optionally strictly before the given signature), decodes each transaction
// sequentially, and accumulates vote metas plus the per-slot histogram.
// Non-vote shapes are skipped but still consume the fetch budget.
func (e *Extractor) Extract(ctx context.Context, account chain.Pubkey, limit int, before string) (*Extraction, error) {
	infos, err := e.fetcher.GetSignaturesForAddress(ctx, account, limit, before)
	if err != nil {
		return nil, errors.Wrap(err, "list signatures")
	}

	out := &Extraction{
		Histogram: make(map[chain.Slot]int),
		Fetched:   len(infos),
	}

	for _, info := range infos {
		signature, err := chain.ParseSignature(info.Signature)
		if err != nil {
			return nil, err
		}
		e.log.Debugf("fetching transaction %s", info.Signature)

		detail, err := e.fetcher.GetTransaction(ctx, info.Signature)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch transaction %s", info.Signature)
		}

		vote, ok := SimpleVote(&detail.Transaction, e.voteProgramID)
		if !ok {
			e.log.Debugf("skipping non-vote transaction %s", info.Signature)
			continue
		}
		if len(vote.Slots) == 0 {
			continue
		}

		voteSlots := make([]chain.Slot, len(vote.Slots))
		copy(voteSlots, vote.Slots)
		sort.Slice(voteSlots, func(i, j int) bool { return voteSlots[i] < voteSlots[j] })

		// The span closes one slot past the landing slot; the extra row is
		// the sentinel the table builder strips afterwards.
		for slot := voteSlots[0]; slot <= info.Slot+1; slot++ {
			out.Histogram[slot]++
		}

		out.Metas = append(out.Metas, VoteMeta{
			Signature:  signature,
			Success:    info.Succeeded(),
			VoteSlots:  voteSlots,
			LandedSlot: info.Slot,
		})
	}

	for _, n := range out.Histogram {
		if n > out.MaxDepth {
			out.MaxDepth = n
		}
	}
	return out, nil
}
