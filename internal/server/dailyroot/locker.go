package dailyroot

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/nav2424/rift-sub004/internal/dbx"
)

// PostgresDayLocker serializes root generation with a transaction-scoped
// advisory lock keyed on the day, so two instances triggered for the same
// date cannot commit differing roots.
type PostgresDayLocker struct {
	db *sql.DB
}

func NewPostgresDayLocker(db *sql.DB) *PostgresDayLocker {
	return &PostgresDayLocker{db: db}
}

// lockClass namespaces our advisory locks away from other users of the
// two-int32 advisory lock space.
const lockClass = 0x7661756c // "vaul"

func (l *PostgresDayLocker) WithDayLock(ctx context.Context, day time.Time, fn func(ctx context.Context) error) error {
	return dbx.WithTx(ctx, l.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		day = day.UTC()
		key := int32(day.Year()*10000 + int(day.Month())*100 + day.Day())
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, int32(lockClass), key); err != nil {
			return fmt.Errorf("acquire day lock: %w", err)
		}
		return fn(ctx)
	})
}

// MutexDayLocker is the in-process DayLocker used in tests and single
// instance runs.
type MutexDayLocker struct {
	mu sync.Mutex
}

func NewMutexDayLocker() *MutexDayLocker {
	return &MutexDayLocker{}
}

func (l *MutexDayLocker) WithDayLock(ctx context.Context, day time.Time, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}
