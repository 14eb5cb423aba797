// Package transactions provides the PostgreSQL-backed party directory.
package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nav2424/rift-sub004/internal/common"
	"github.com/nav2424/rift-sub004/internal/dbx"
	"github.com/nav2424/rift-sub004/internal/server/models"
)

// PostgresRepository implements the party directory over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetParties(ctx context.Context, transactionID string) (*models.TransactionParties, error) {
	query := `SELECT transaction_id, buyer_id, seller_id FROM transaction_parties WHERE transaction_id=$1`

	var parties models.TransactionParties
	err := r.db.QueryRowContext(ctx, query, transactionID).Scan(
		&parties.TransactionID, &parties.BuyerID, &parties.SellerID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &parties, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, parties *models.TransactionParties) error {
	query := `
		INSERT INTO transaction_parties (transaction_id, buyer_id, seller_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (transaction_id)
		DO UPDATE SET buyer_id = EXCLUDED.buyer_id, seller_id = EXCLUDED.seller_id;
	`
	_, err := r.db.ExecContext(ctx, query, parties.TransactionID, parties.BuyerID, parties.SellerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
