package repomanager

import (
	"context"
	"database/sql"

	"github.com/nav2424/rift-sub004/internal/dbx"
	"github.com/nav2424/rift-sub004/internal/server/repositories/assets"
	"github.com/nav2424/rift-sub004/internal/server/repositories/events"
	"github.com/nav2424/rift-sub004/internal/server/repositories/roots"
	"github.com/nav2424/rift-sub004/internal/server/repositories/transactions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Events(db dbx.DBTX) events.Repository
	Roots(db dbx.DBTX) roots.Repository
	Assets(db dbx.DBTX) assets.Repository
	Transactions(db dbx.DBTX) transactions.Repository
}
