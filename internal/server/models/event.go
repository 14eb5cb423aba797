// Package models defines server-side data models persisted in the database.
package models

import "time"

// Actor roles recorded on vault events.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
	RoleSystem = "system"
)

// Event types recorded in the ledger.
const (
	EventUpload        = "upload"
	EventView          = "view"
	EventReveal        = "reveal"
	EventApproval      = "approval"
	EventAdminOverride = "admin_override"
)

// VaultEvent is one audited action on a transaction's chain. Rows are
// append-only: once written an event is never updated or deleted.
type VaultEvent struct {
	// ID is the server-assigned event identifier (UUID).
	ID string
	// Seq is the global insertion sequence, used as the tie-breaker for
	// equal timestamps so verification replays events in append order.
	Seq int64

	TransactionID string
	AssetID       string
	ActorID       string
	ActorRole     string
	EventType     string

	// OccurredAt is the UTC timestamp hashed into the event descriptor.
	OccurredAt time.Time

	// Salted digests of request identifiers. Raw values are never stored.
	IPHash            string
	UserAgentHash     string
	SessionID         string
	DeviceFingerprint string

	// AssetHash is the content hash of the asset involved, when any.
	AssetHash string

	// PrevHash is the self-hash of the preceding event on this
	// transaction's chain, or empty for the chain head.
	PrevHash string
	// SelfHash commits to every other field including PrevHash.
	SelfHash string

	Metadata map[string]any
}

// Descriptor returns the canonical map hashed to produce SelfHash.
// The previous hash is folded in by the caller, not here.
func (e *VaultEvent) Descriptor() map[string]any {
	return map[string]any{
		"id":                 e.ID,
		"transaction_id":     e.TransactionID,
		"asset_id":           e.AssetID,
		"actor_id":           e.ActorID,
		"actor_role":         e.ActorRole,
		"event_type":         e.EventType,
		"occurred_at":        e.OccurredAt.UTC().Format(time.RFC3339Nano),
		"ip_hash":            e.IPHash,
		"user_agent_hash":    e.UserAgentHash,
		"session_id":         e.SessionID,
		"device_fingerprint": e.DeviceFingerprint,
		"asset_hash":         e.AssetHash,
		"metadata":           e.Metadata,
	}
}
