package events

import (
	"context"
	"time"

	"github.com/nav2424/rift-sub004/internal/server/models"
)

// Repository is the append-only store for vault events. Implementations must
// reject a second insert that reuses an existing (transaction, prev hash)
// pair with common.ErrChainConflict so concurrent appenders cannot fork a
// chain.
type Repository interface {
	// Append persists a fully-hashed event. Never updates existing rows.
	Append(ctx context.Context, event *models.VaultEvent) error

	// Head returns the most recently appended event of the transaction's
	// chain, or common.ErrorNotFound for an empty chain.
	Head(ctx context.Context, transactionID string) (*models.VaultEvent, error)

	// ListByTransaction returns the transaction's events ordered by
	// (occurred_at, seq).
	ListByTransaction(ctx context.Context, transactionID string) ([]*models.VaultEvent, error)

	// ListByDay returns all events system-wide with occurred_at inside the
	// UTC calendar day, ordered by (occurred_at, seq).
	ListByDay(ctx context.Context, day time.Time) ([]*models.VaultEvent, error)

	// ListByAsset returns all events referencing the asset, ordered by
	// (occurred_at, seq). Used to derive reveal state from the ledger.
	ListByAsset(ctx context.Context, assetID string) ([]*models.VaultEvent, error)
}
