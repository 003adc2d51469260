package pubsub

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"vote-monitoring/internal/chain"
	"vote-monitoring/internal/correlator"
)

type slotNotification struct {
	Slot   chain.Slot `json:"slot"`
	Parent chain.Slot `json:"parent"`
}

type voteNotification struct {
	VotePubkey string       `json:"votePubkey"`
	Slots      []chain.Slot `json:"slots"`
	Hash       string       `json:"hash"`
	Timestamp  *int64       `json:"timestamp"`
}

// SubscribeSlots subscribes to the slot notification stream. The returned
// channel closes when the connection ends or the unsubscribe func runs; an
// unparsable payload is a hard failure that tears the connection down.
func (c *Client) SubscribeSlots(ctx context.Context) (<-chan correlator.SlotInfo, func(), error) {
	subID, raw, err := c.subscribe(ctx, "slotSubscribe")
	if err != nil {
		return nil, nil, err
	}
	c.log.Debugf("slot subscription %d established", subID)

	out := make(chan correlator.SlotInfo)
	go func() {
		defer close(out)
		for payload := range raw {
			var n slotNotification
			if err := json.Unmarshal(payload, &n); err != nil {
				c.fail(errors.Wrap(err, "decode slot notification"))
				return
			}
			select {
			case out <- correlator.SlotInfo{Slot: n.Slot, Parent: n.Parent}:
			case <-c.done:
				return
			}
		}
	}()
	return out, func() { c.unsubscribe("slotUnsubscribe", subID) }, nil
}

// SubscribeVotes subscribes to the vote notification stream. Identity and
// hash fields arrive base58-encoded; a parse failure is a hard failure.
func (c *Client) SubscribeVotes(ctx context.Context) (<-chan correlator.VoteObservation, func(), error) {
	subID, raw, err := c.subscribe(ctx, "voteSubscribe")
	if err != nil {
		return nil, nil, err
	}
	c.log.Debugf("vote subscription %d established", subID)

	out := make(chan correlator.VoteObservation)
	go func() {
		defer close(out)
		for payload := range raw {
			var n voteNotification
			if err := json.Unmarshal(payload, &n); err != nil {
				c.fail(errors.Wrap(err, "decode vote notification"))
				return
			}
			identity, err := chain.ParsePubkey(n.VotePubkey)
			if err != nil {
				c.fail(errors.Wrap(err, "vote notification"))
				return
			}
			hash, err := chain.ParseHash(n.Hash)
			if err != nil {
				c.fail(errors.Wrap(err, "vote notification"))
				return
			}
			select {
			case out <- correlator.VoteObservation{
				Identity: identity,
				Vote: chain.Vote{
					Slots:     n.Slots,
					Hash:      hash,
					Timestamp: n.Timestamp,
				},
			}:
			case <-c.done:
				return
			}
		}
	}()
	return out, func() { c.unsubscribe("voteUnsubscribe", subID) }, nil
}
