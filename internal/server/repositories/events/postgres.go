// Package events provides the PostgreSQL-backed append-only event store.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nav2424/rift-sub004/internal/common"
	"github.com/nav2424/rift-sub004/internal/dbx"
	"github.com/nav2424/rift-sub004/internal/server/models"
)

// PostgresRepository implements event storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const eventColumns = `id, seq, transaction_id, asset_id, actor_id, actor_role, event_type,
		occurred_at, ip_hash, user_agent_hash, session_id, device_fingerprint,
		asset_hash, prev_hash, self_hash, metadata`

// Append inserts the event conditionally on its prev_hash still naming the
// chain head. A concurrent append with the same prev_hash loses the unique
// index race, affects zero rows and yields ErrChainConflict.
func (r *PostgresRepository) Append(ctx context.Context, event *models.VaultEvent) error {
	query := `
		INSERT INTO vault_events (id, transaction_id, asset_id, actor_id, actor_role, event_type,
			occurred_at, ip_hash, user_agent_hash, session_id, device_fingerprint,
			asset_hash, prev_hash, self_hash, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (transaction_id, prev_hash) DO NOTHING;
	`
	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	res, err := r.db.ExecContext(ctx, query,
		event.ID, event.TransactionID, event.AssetID, event.ActorID, event.ActorRole, event.EventType,
		event.OccurredAt, event.IPHash, event.UserAgentHash, event.SessionID, event.DeviceFingerprint,
		event.AssetHash, event.PrevHash, event.SelfHash, metadata)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrChainConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) Head(ctx context.Context, transactionID string) (*models.VaultEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM vault_events
		WHERE transaction_id=$1 ORDER BY seq DESC LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, transactionID)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	return event, err
}

func (r *PostgresRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*models.VaultEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM vault_events
		WHERE transaction_id=$1 ORDER BY occurred_at, seq`
	return r.list(ctx, query, transactionID)
}

func (r *PostgresRepository) ListByDay(ctx context.Context, day time.Time) ([]*models.VaultEvent, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	query := `SELECT ` + eventColumns + ` FROM vault_events
		WHERE occurred_at >= $1 AND occurred_at < $2 ORDER BY occurred_at, seq`
	return r.list(ctx, query, start, end)
}

func (r *PostgresRepository) ListByAsset(ctx context.Context, assetID string) ([]*models.VaultEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM vault_events
		WHERE asset_id=$1 ORDER BY occurred_at, seq`
	return r.list(ctx, query, assetID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.VaultEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select events: %w", err)
	}
	defer rows.Close()

	var result []*models.VaultEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.VaultEvent, error) {
	var event models.VaultEvent
	var metadata []byte
	if err := row.Scan(
		&event.ID, &event.Seq, &event.TransactionID, &event.AssetID, &event.ActorID,
		&event.ActorRole, &event.EventType, &event.OccurredAt, &event.IPHash,
		&event.UserAgentHash, &event.SessionID, &event.DeviceFingerprint,
		&event.AssetHash, &event.PrevHash, &event.SelfHash, &metadata,
	); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	event.OccurredAt = event.OccurredAt.UTC()
	return &event, nil
}
