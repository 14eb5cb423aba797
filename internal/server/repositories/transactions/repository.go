package transactions

import (
	"context"

	"github.com/nav2424/rift-sub004/internal/server/models"
)

// Repository looks up the party assignment the escrow service recorded for a
// transaction. The vault core reads it for authorization only.
type Repository interface {
	// GetParties returns the buyer/seller assignment, or
	// common.ErrorNotFound for an unknown transaction.
	GetParties(ctx context.Context, transactionID string) (*models.TransactionParties, error)

	// Upsert records or refreshes the party assignment pushed by the
	// escrow service.
	Upsert(ctx context.Context, parties *models.TransactionParties) error
}
