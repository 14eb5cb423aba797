package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nav2424/rift-sub004/internal/common"
	"github.com/nav2424/rift-sub004/internal/server/models"
)

// InMemoryRepository mirrors the postgres semantics (including the
// one-head-per-chain conflict rule) for tests and local runs.
type InMemoryRepository struct {
	mu      sync.Mutex
	events  []*models.VaultEvent
	nextSeq int64
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Append(ctx context.Context, event *models.VaultEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.events {
		if e.TransactionID == event.TransactionID && e.PrevHash == event.PrevHash {
			return common.ErrChainConflict
		}
	}

	r.nextSeq++
	clone := *event
	clone.Seq = r.nextSeq
	r.events = append(r.events, &clone)
	event.Seq = clone.Seq
	return nil
}

func (r *InMemoryRepository) Head(ctx context.Context, transactionID string) (*models.VaultEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].TransactionID == transactionID {
			clone := *r.events[i]
			return &clone, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *InMemoryRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*models.VaultEvent, error) {
	return r.filter(func(e *models.VaultEvent) bool {
		return e.TransactionID == transactionID
	}), nil
}

func (r *InMemoryRepository) ListByDay(ctx context.Context, day time.Time) ([]*models.VaultEvent, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	return r.filter(func(e *models.VaultEvent) bool {
		return !e.OccurredAt.Before(start) && e.OccurredAt.Before(end)
	}), nil
}

func (r *InMemoryRepository) ListByAsset(ctx context.Context, assetID string) ([]*models.VaultEvent, error) {
	return r.filter(func(e *models.VaultEvent) bool {
		return e.AssetID == assetID
	}), nil
}

// All exposes the stored events directly. Tests use it to corrupt persisted
// fields and exercise tamper detection.
func (r *InMemoryRepository) All() []*models.VaultEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events
}

func (r *InMemoryRepository) filter(keep func(*models.VaultEvent) bool) []*models.VaultEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.VaultEvent
	for _, e := range r.events {
		if keep(e) {
			clone := *e
			result = append(result, &clone)
		}
	}
	// Events are appended in (occurred_at, seq) order in practice, but sort
	// anyway to match the postgres ORDER BY contract.
	sort.Slice(result, func(i, j int) bool {
		if result[i].OccurredAt.Equal(result[j].OccurredAt) {
			return result[i].Seq < result[j].Seq
		}
		return result[i].OccurredAt.Before(result[j].OccurredAt)
	})
	return result
}
