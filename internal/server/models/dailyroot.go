package models

import "time"

// Signature algorithms recorded on daily roots.
const (
	SigAlgEd25519  = "ed25519"
	SigAlgUnsigned = "unsigned"
)

// DailyRoot commits to one UTC calendar day's full event set plus the
// previous rooted day. Immutable once written; a differing recompute for an
// already-rooted day is an operator-visible discrepancy, never an overwrite.
type DailyRoot struct {
	// Day is the UTC calendar day, normalized to midnight.
	Day time.Time
	// RootHash folds the day's intra-day event chain, the previous day's
	// root (or the genesis sentinel) and the event count.
	RootHash string
	// PrevRootHash is the previous rooted day's RootHash, or the genesis
	// sentinel for the first rooted day.
	PrevRootHash string
	// Signature covers RootHash only. When SignatureAlg is "unsigned" it
	// holds the bare root hash and must never be presented as verified.
	Signature    string
	SignatureAlg string
	EventCount   int64
	CreatedAt    time.Time
}

// Signed reports whether the root carries a real signature.
func (r *DailyRoot) Signed() bool {
	return r.SignatureAlg != "" && r.SignatureAlg != SigAlgUnsigned
}
