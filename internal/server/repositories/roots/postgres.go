// Package roots provides the PostgreSQL-backed daily root store.
package roots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nav2424/rift-sub004/internal/common"
	"github.com/nav2424/rift-sub004/internal/dbx"
	"github.com/nav2424/rift-sub004/internal/server/models"
)

// PostgresRepository implements root storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const rootColumns = `day, root_hash, prev_root_hash, signature, signature_alg, event_count, created_at`

func (r *PostgresRepository) Insert(ctx context.Context, root *models.DailyRoot) error {
	query := `
		INSERT INTO daily_roots (day, root_hash, prev_root_hash, signature, signature_alg, event_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := r.db.ExecContext(ctx, query,
		root.Day, root.RootHash, root.PrevRootHash, root.Signature, root.SignatureAlg,
		root.EventCount, root.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByDay(ctx context.Context, day time.Time) (*models.DailyRoot, error) {
	query := `SELECT ` + rootColumns + ` FROM daily_roots WHERE day=$1`
	row := r.db.QueryRowContext(ctx, query, dateOnly(day))
	root, err := scanRoot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	return root, err
}

func (r *PostgresRepository) LatestBefore(ctx context.Context, day time.Time) (*models.DailyRoot, error) {
	query := `SELECT ` + rootColumns + ` FROM daily_roots WHERE day < $1 ORDER BY day DESC LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, dateOnly(day))
	root, err := scanRoot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	return root, err
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*models.DailyRoot, error) {
	query := `SELECT ` + rootColumns + ` FROM daily_roots ORDER BY day`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select roots: %w", err)
	}
	defer rows.Close()

	var result []*models.DailyRoot
	for rows.Next() {
		root, err := scanRoot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, root)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoot(row rowScanner) (*models.DailyRoot, error) {
	var root models.DailyRoot
	if err := row.Scan(
		&root.Day, &root.RootHash, &root.PrevRootHash, &root.Signature,
		&root.SignatureAlg, &root.EventCount, &root.CreatedAt,
	); err != nil {
		return nil, err
	}
	root.Day = root.Day.UTC()
	return &root, nil
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
