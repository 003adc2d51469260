// Package correlator merges the slot and vote notification streams, buffers
// votes until fork ancestry is deep enough to judge them, and drives tower
// lockout checks. A failed check is a protocol violation and ends the
// session with a diagnostic.
package correlator

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"vote-monitoring/internal/ancestry"
	"vote-monitoring/internal/chain"
	"vote-monitoring/internal/metrics"
	"vote-monitoring/internal/tower"
)

// SlotInfo is one slot notification.
type SlotInfo struct {
	Slot   chain.Slot
	Parent chain.Slot
}

// VoteObservation is one vote notification.
type VoteObservation struct {
	Identity chain.Pubkey
	Vote     chain.Vote
}

// SlotUpdate is published after each slot notification (TUI consumption).
type SlotUpdate struct {
	Slot         chain.Slot
	Parent       chain.Slot
	AncestrySize int
}

// TowerUpdate is published after a vote is applied (TUI consumption).
type TowerUpdate struct {
	Identity  chain.Pubkey
	Label     string
	Depth     int
	Credits   uint64
	LastVoted chain.Slot
}

// ViolationError is the fatal fork-switch diagnostic: applying the vote
// would leave lockout slots outside the target's ancestor set.
type ViolationError struct {
	Identity  chain.Pubkey
	Slot      chain.Slot
	Tower     []tower.Lockout
	Ancestors map[chain.Slot]struct{}
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("lockout violation: %s voted at slot %d with tower %v (%d ancestors resolved)",
		e.Identity, e.Slot, e.Tower, len(e.Ancestors))
}

// Config wires a correlator. Zero fields get working defaults.
type Config struct {
	Log      *logrus.Logger
	Ancestry *ancestry.Tracker
	Towers   tower.Capability
	Metrics  *metrics.Set
	// Updates receives SlotUpdate/TowerUpdate values, best-effort: a full
	// channel drops the update rather than stalling the loop.
	Updates chan<- interface{}
	// Labeler maps an identity to a display name for log lines.
	Labeler func(chain.Pubkey) string
}

type pendingVote struct {
	identity chain.Pubkey
	vote     chain.Vote
}

// Correlator owns all live-mode mutable state. Run is the only goroutine
// allowed to touch it.
type Correlator struct {
	cfg Config
	log *logrus.Logger

	ancestry *ancestry.Tracker
	towers   tower.Capability
	// pending buffers observations keyed by the vote's highest slot.
	pending map[chain.Slot][]pendingVote
}

// New builds a correlator from cfg.
func New(cfg Config) *Correlator {
	if cfg.Log == nil {
		cfg.Log = logrus.New()
	}
	if cfg.Ancestry == nil {
		cfg.Ancestry = ancestry.NewTracker(0)
	}
	if cfg.Towers == nil {
		cfg.Towers = tower.NewSet()
	}
	return &Correlator{
		cfg:      cfg,
		log:      cfg.Log,
		ancestry: cfg.Ancestry,
		towers:   cfg.Towers,
		pending:  make(map[chain.Slot][]pendingVote),
	}
}

// Run consumes both streams until each is closed and drained, handling one
// event at a time and running a maintenance pass to completion before
// waiting again. It returns a *ViolationError on a failed lockout check and
// ctx.Err() on cancellation.
func (c *Correlator) Run(ctx context.Context, slots <-chan SlotInfo, votes <-chan VoteObservation) error {
	for {
		if slots == nil && votes == nil {
			c.log.Info("notification sources exhausted")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case si, ok := <-slots:
			if !ok {
				slots = nil
				continue
			}
			c.handleSlot(si)
		case vo, ok := <-votes:
			if !ok {
				votes = nil
				continue
			}
			c.handleVote(vo)
		}
		if err := c.maintain(); err != nil {
			return err
		}
	}
}

func (c *Correlator) handleSlot(si SlotInfo) {
	c.log.Debugf("slot %d parent %d", si.Slot, si.Parent)
	c.ancestry.Insert(si.Slot, si.Parent)
	if m := c.cfg.Metrics; m != nil {
		m.SlotsObserved.Inc()
		m.AncestrySize.Set(float64(c.ancestry.Len()))
	}
	c.publish(SlotUpdate{Slot: si.Slot, Parent: si.Parent, AncestrySize: c.ancestry.Len()})
}

func (c *Correlator) handleVote(vo VoteObservation) {
	if m := c.cfg.Metrics; m != nil {
		m.VotesObserved.Inc()
	}
	target, ok := vo.Vote.LastSlot()
	if !ok {
		c.log.Debugf("ignoring empty vote from %s", c.label(vo.Identity))
		return
	}
	c.log.Debugf("vote from %s: slots %v hash %s", c.label(vo.Identity), vo.Vote.Slots, vo.Vote.Hash)
	c.pending[target] = append(c.pending[target], pendingVote{identity: vo.Identity, vote: vo.Vote})
}

// maintain runs the post-event pass: evict, drop unresolvable buckets, then
// judge every buffered vote whose slot the ancestry view has caught up with.
func (c *Correlator) maintain() error {
	if c.ancestry.Len() == 0 {
		return nil
	}

	evicted := c.ancestry.Evict()
	if m := c.cfg.Metrics; m != nil && len(evicted) > 0 {
		m.AncestryEvictions.Add(float64(len(evicted)))
		m.AncestrySize.Set(float64(c.ancestry.Len()))
	}

	lowest, _ := c.ancestry.Lowest()
	for slot, bucket := range c.pending {
		if slot >= lowest {
			continue
		}
		c.log.Warnf("dropping %d buffered vote(s) for slot %d: below ancestry window (lowest %d)",
			len(bucket), slot, lowest)
		if m := c.cfg.Metrics; m != nil {
			m.VotesLost.Add(float64(len(bucket)))
		}
		delete(c.pending, slot)
	}

	highest, _ := c.ancestry.Highest()
	var ready []chain.Slot
	for slot := range c.pending {
		if slot <= highest {
			ready = append(ready, slot)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
	if len(ready) > 0 {
		c.log.Debugf("vote slots to process: %v", ready)
	}

	for _, slot := range ready {
		bucket := c.pending[slot]
		delete(c.pending, slot)
		deferred, err := c.processBucket(slot, bucket)
		if err != nil {
			return err
		}
		if len(deferred) > 0 {
			c.pending[slot] = deferred
		}
	}

	if m := c.cfg.Metrics; m != nil {
		m.TowerCount.Set(float64(c.towers.Len()))
	}
	return nil
}

// processBucket judges the bucket's votes in arrival order. Votes whose
// preconditions are unmet stay eligible for a later pass and are returned.
func (c *Correlator) processBucket(slot chain.Slot, bucket []pendingVote) ([]pendingVote, error) {
	c.log.Debugf("processing %d vote(s) at slot %d", len(bucket), slot)

	var deferred []pendingVote
	for _, pv := range bucket {
		handle := c.towers.GetOrCreate(pv.identity)

		// Ancestry must reach both the tower's oldest pending lockout and
		// the vote's own lowest slot before the lockout check is sound.
		if low, ok := handle.LowestLockoutSlot(); ok && !c.ancestry.Contains(low) {
			c.deferVote(&deferred, pv, "lowest tower slot %d not in ancestry", low)
			continue
		}
		if first, ok := pv.vote.FirstSlot(); ok && !c.ancestry.Contains(first) {
			c.deferVote(&deferred, pv, "lowest vote slot %d not in ancestry", first)
			continue
		}

		target, _ := pv.vote.LastSlot()
		if !handle.IsRecent(target) {
			last, _ := handle.LastVotedSlot()
			c.log.Debugf("%s: vote for slot %d not newer than last voted slot %d, skipping",
				c.label(pv.identity), target, last)
			continue
		}

		ancestors := c.ancestry.AncestorsOf(target)
		if handle.IsLockedOut(target, ancestors) {
			if m := c.cfg.Metrics; m != nil {
				m.LockoutViolations.Inc()
			}
			return nil, &ViolationError{
				Identity:  pv.identity,
				Slot:      target,
				Tower:     handle.Lockouts(),
				Ancestors: ancestors,
			}
		}

		handle.Apply(&pv.vote)
		if m := c.cfg.Metrics; m != nil {
			m.VotesApplied.Inc()
		}
		last, _ := handle.LastVotedSlot()
		c.log.Infof("%s voted %d: tower depth %d, credits %d",
			c.label(pv.identity), target, handle.Depth(), handle.Credits())
		c.publish(TowerUpdate{
			Identity:  pv.identity,
			Label:     c.label(pv.identity),
			Depth:     handle.Depth(),
			Credits:   handle.Credits(),
			LastVoted: last,
		})
	}
	return deferred, nil
}

func (c *Correlator) deferVote(deferred *[]pendingVote, pv pendingVote, format string, args ...interface{}) {
	c.log.Warnf("%s: deferring vote: "+format, append([]interface{}{c.label(pv.identity)}, args...)...)
	if m := c.cfg.Metrics; m != nil {
		m.VotesDeferred.Inc()
	}
	*deferred = append(*deferred, pv)
}

// PendingVotes counts buffered observations across all buckets.
func (c *Correlator) PendingVotes() int {
	n := 0
	for _, bucket := range c.pending {
		n += len(bucket)
	}
	return n
}

func (c *Correlator) label(identity chain.Pubkey) string {
	if c.cfg.Labeler != nil {
		if name := c.cfg.Labeler(identity); name != "" {
			return name
		}
	}
	return identity.Short()
}

func (c *Correlator) publish(update interface{}) {
	if c.cfg.Updates == nil {
		return
	}
	select {
	case c.cfg.Updates <- update:
	default:
	}
}
