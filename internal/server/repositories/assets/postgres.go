// Package assets provides the PostgreSQL-backed asset metadata store.
package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nav2424/rift-sub004/internal/common"
	"github.com/nav2424/rift-sub004/internal/dbx"
	"github.com/nav2424/rift-sub004/internal/server/models"
)

// PostgresRepository implements asset storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, asset *models.VaultAsset) error {
	query := `
		INSERT INTO vault_assets (id, transaction_id, asset_type, sensitivity, content_hash,
			storage_key, encrypted_payload, payload_nonce, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err := r.db.ExecContext(ctx, query,
		asset.ID, asset.TransactionID, asset.AssetType, asset.Sensitivity, asset.ContentHash,
		asset.StorageKey, asset.EncryptedPayload, asset.PayloadNonce, asset.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.VaultAsset, error) {
	query := `SELECT id, transaction_id, asset_type, sensitivity, content_hash,
			storage_key, encrypted_payload, payload_nonce, created_at
		FROM vault_assets WHERE id=$1`

	var asset models.VaultAsset
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&asset.ID, &asset.TransactionID, &asset.AssetType, &asset.Sensitivity,
		&asset.ContentHash, &asset.StorageKey, &asset.EncryptedPayload,
		&asset.PayloadNonce, &asset.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &asset, nil
}
