package roots

import (
	"context"
	"time"

	"github.com/nav2424/rift-sub004/internal/server/models"
)

// Repository stores daily root commitments. Roots are written once per day
// and never updated; conflict handling for re-rooted days lives in the
// aggregator service, not here.
type Repository interface {
	// Insert persists a new daily root. A root for the same day must not
	// already exist.
	Insert(ctx context.Context, root *models.DailyRoot) error

	// GetByDay returns the root for the given UTC day, or
	// common.ErrorNotFound.
	GetByDay(ctx context.Context, day time.Time) (*models.DailyRoot, error)

	// LatestBefore returns the most recent root with day < the given day,
	// or common.ErrorNotFound when no earlier day was rooted.
	LatestBefore(ctx context.Context, day time.Time) (*models.DailyRoot, error)

	// ListAll returns every stored root ordered by day ascending.
	ListAll(ctx context.Context) ([]*models.DailyRoot, error)
}
