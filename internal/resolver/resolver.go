// Package resolver maps vote-account pubkeys to the node identities running
// them, for labeling validators in logs and the dashboard.
package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vote-monitoring/internal/chain"
	"vote-monitoring/internal/rpc"
)

// VoteAccountLister is the slice of the RPC client the resolver needs.
type VoteAccountLister interface {
	GetVoteAccounts(ctx context.Context) (*rpc.VoteAccountsResult, error)
}

const (
	cacheTTL     = 30 * time.Minute // the validator set changes rarely
	retryBackoff = 30 * time.Second
	fetchTimeout = 10 * time.Second
)

// Resolver caches the vote-account → node-identity mapping. Resolve never
// blocks: lookups are served from the cache and the mapping is fetched by a
// background goroutine, at most one in flight, with a backoff between failed
// attempts. The correlator loop calls Resolve per event, so it must not
// suspend on RPC.
type Resolver struct {
	client VoteAccountLister
	log    *logrus.Logger

	mu          sync.RWMutex
	cache       map[string]string // vote pubkey -> node pubkey
	refreshing  bool
	nextRefresh time.Time
}

// New returns a resolver over client. Returns nil when client is nil;
// a nil resolver resolves everything to "".
func New(client VoteAccountLister, log *logrus.Logger) *Resolver {
	if client == nil {
		return nil
	}
	return &Resolver{
		client: client,
		log:    log,
		cache:  map[string]string{},
	}
}

// Resolve returns the abbreviated node identity for a vote account, or ""
// when not cached yet. A due refresh is kicked off in the background.
func (r *Resolver) Resolve(votePubkey chain.Pubkey) string {
	if r == nil {
		return ""
	}
	r.maybeRefresh()

	r.mu.RLock()
	node := r.cache[votePubkey.String()]
	r.mu.RUnlock()
	return shorten(node)
}

// maybeRefresh starts one background fetch unless a fetch is already in
// flight or the next attempt is not due yet.
func (r *Resolver) maybeRefresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refreshing || time.Now().Before(r.nextRefresh) {
		return
	}
	r.refreshing = true
	go r.refresh()
}

func (r *Resolver) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	accounts, err := r.client.GetVoteAccounts(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshing = false
	if err != nil {
		r.nextRefresh = time.Now().Add(retryBackoff)
		r.log.Warnf("resolver: failed to fetch vote accounts: %v", err)
		return
	}

	mapping := make(map[string]string)
	for _, va := range accounts.Current {
		mapping[va.VotePubkey] = va.NodePubkey
	}
	for _, va := range accounts.Delinquent {
		mapping[va.VotePubkey] = va.NodePubkey
	}
	r.cache = mapping
	r.nextRefresh = time.Now().Add(cacheTTL)
	r.log.Debugf("resolver: cached %d vote accounts", len(mapping))
}

func shorten(pubkey string) string {
	if len(pubkey) > 8 {
		return pubkey[:8] + ".."
	}
	return pubkey
}
