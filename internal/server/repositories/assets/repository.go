package assets

import (
	"context"

	"github.com/nav2424/rift-sub004/internal/server/models"
)

// Repository stores asset metadata and sealed text-secret payloads. Raw
// file/image bytes live in object storage; only the storage key is kept here.
type Repository interface {
	// Create persists a new asset record.
	Create(ctx context.Context, asset *models.VaultAsset) error

	// GetByID returns the asset, or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.VaultAsset, error)
}
