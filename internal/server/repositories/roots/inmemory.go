package roots

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nav2424/rift-sub004/internal/common"
	"github.com/nav2424/rift-sub004/internal/server/models"
)

// InMemoryRepository is the test double for the root store.
type InMemoryRepository struct {
	mu    sync.Mutex
	byDay map[string]*models.DailyRoot
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{byDay: map[string]*models.DailyRoot{}}
}

func (r *InMemoryRepository) Insert(ctx context.Context, root *models.DailyRoot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := dayKey(root.Day)
	if _, ok := r.byDay[key]; ok {
		return fmt.Errorf("duplicate root for %s", key)
	}
	clone := *root
	r.byDay[key] = &clone
	return nil
}

func (r *InMemoryRepository) GetByDay(ctx context.Context, day time.Time) (*models.DailyRoot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if root, ok := r.byDay[dayKey(day)]; ok {
		clone := *root
		return &clone, nil
	}
	return nil, common.ErrorNotFound
}

func (r *InMemoryRepository) LatestBefore(ctx context.Context, day time.Time) (*models.DailyRoot, error) {
	all, _ := r.ListAll(ctx)
	cutoff := dateOnly(day)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Day.Before(cutoff) {
			return all[i], nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *InMemoryRepository) ListAll(ctx context.Context) ([]*models.DailyRoot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*models.DailyRoot, 0, len(r.byDay))
	for _, root := range r.byDay {
		clone := *root
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day.Before(result[j].Day) })
	return result, nil
}

func dayKey(t time.Time) string {
	return dateOnly(t).Format("2006-01-02")
}
