// Package chain defines the primitive on-chain types the monitor observes:
// slots, public keys, hashes, signatures and votes. Text forms are base58,
// matching the node's RPC encoding.
package chain

import (
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// Slot is a monotonically increasing block height.
type Slot uint64

// Pubkey identifies an account (validator identity or vote account).
type Pubkey [32]byte

// Hash is a state-commitment hash carried inside a vote.
type Hash [32]byte

// Signature identifies a transaction.
type Signature [64]byte

// ParsePubkey decodes a base58 pubkey string.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	b, err := base58.Decode(s)
	if err != nil {
		return pk, errors.Wrapf(err, "parse pubkey %q", s)
	}
	if len(b) != len(pk) {
		return pk, errors.Errorf("parse pubkey %q: got %d bytes, want %d", s, len(b), len(pk))
	}
	copy(pk[:], b)
	return pk, nil
}

// ParseHash decodes a base58 hash string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := base58.Decode(s)
	if err != nil {
		return h, errors.Wrapf(err, "parse hash %q", s)
	}
	if len(b) != len(h) {
		return h, errors.Errorf("parse hash %q: got %d bytes, want %d", s, len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}

// ParseSignature decodes a base58 signature string.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	b, err := base58.Decode(s)
	if err != nil {
		return sig, errors.Wrapf(err, "parse signature %q", s)
	}
	if len(b) != len(sig) {
		return sig, errors.Errorf("parse signature %q: got %d bytes, want %d", s, len(b), len(sig))
	}
	copy(sig[:], b)
	return sig, nil
}

func (p Pubkey) String() string { return base58.Encode(p[:]) }

// Short returns an abbreviated form for log lines and table cells.
func (p Pubkey) Short() string {
	s := p.String()
	if len(s) <= 8 {
		return s
	}
	return s[:8] + ".."
}

func (h Hash) String() string { return base58.Encode(h[:]) }

func (s Signature) String() string { return base58.Encode(s[:]) }

// Vote is one validator vote: an ascending slot sequence, the bank hash the
// validator observed, and an optional wallclock timestamp.
type Vote struct {
	Slots     []Slot
	Hash      Hash
	Timestamp *int64
}

// LastSlot returns the vote's highest (target) slot.
func (v *Vote) LastSlot() (Slot, bool) {
	if len(v.Slots) == 0 {
		return 0, false
	}
	return v.Slots[len(v.Slots)-1], true
}

// FirstSlot returns the vote's lowest slot.
func (v *Vote) FirstSlot() (Slot, bool) {
	if len(v.Slots) == 0 {
		return 0, false
	}
	return v.Slots[0], true
}
