// Package dailyroot folds one UTC calendar day's events, across all
// transactions, into a single signed commitment chained to the prior day.
package dailyroot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nav2424/rift-sub004/internal/common"
	"github.com/nav2424/rift-sub004/internal/hashx"
	"github.com/nav2424/rift-sub004/internal/logging"
	"github.com/nav2424/rift-sub004/internal/server/ledger"
	"github.com/nav2424/rift-sub004/internal/server/models"
	"github.com/nav2424/rift-sub004/internal/server/repositories/events"
	"github.com/nav2424/rift-sub004/internal/server/repositories/roots"
	"github.com/nav2424/rift-sub004/internal/server/signing"
)

// DayLocker serializes root generation per calendar day across instances.
// The postgres implementation takes a transaction-scoped advisory lock; the
// in-memory one is a plain mutex for tests.
type DayLocker interface {
	WithDayLock(ctx context.Context, day time.Time, fn func(ctx context.Context) error) error
}

// Discrepancy reports a recompute for an already-rooted day that no longer
// matches the stored commitment (late backfill or tampering). The stored
// root is left untouched; resolution is an operator decision.
type Discrepancy struct {
	Day             time.Time
	StoredHash      string
	RecomputedHash  string
	StoredCount     int64
	RecomputedCount int64
}

func (d *Discrepancy) Error() string {
	return fmt.Sprintf("root backfill discrepancy for %s: stored %s (%d events), recomputed %s (%d events)",
		d.Day.Format("2006-01-02"), d.StoredHash, d.StoredCount, d.RecomputedHash, d.RecomputedCount)
}

func (d *Discrepancy) Unwrap() error { return common.ErrRootBackfillDiscrepancy }

// Service generates and verifies daily roots.
type Service struct {
	events events.Repository
	roots  roots.Repository
	signer *signing.Service
	locker DayLocker
	logger logging.Logger
	now    func() time.Time
}

func NewService(eventsRepo events.Repository, rootsRepo roots.Repository, signer *signing.Service, locker DayLocker, logger logging.Logger) *Service {
	return &Service{
		events: eventsRepo,
		roots:  rootsRepo,
		signer: signer,
		locker: locker,
		logger: logger.With("module", "dailyroot"),
		now:    time.Now,
	}
}

// Generate produces the daily root for the given UTC day. Returns (nil, nil)
// for a day with zero events. Re-running for an already-rooted day returns
// the stored root when the recompute matches, and a *Discrepancy otherwise.
func (s *Service) Generate(ctx context.Context, day time.Time) (*models.DailyRoot, error) {
	day = dateOnly(day)

	var result *models.DailyRoot
	err := s.locker.WithDayLock(ctx, day, func(ctx context.Context) error {
		root, err := s.generateLocked(ctx, day)
		result = root
		return err
	})
	return result, err
}

func (s *Service) generateLocked(ctx context.Context, day time.Time) (*models.DailyRoot, error) {
	dayEvents, err := s.events.ListByDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list events for day: %w", err)
	}

	existing, err := s.roots.GetByDay(ctx, day)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("read stored root: %w", err)
	}

	if len(dayEvents) == 0 && existing == nil {
		return nil, nil
	}

	eventRoot := foldDay(dayEvents)

	prevHash := common.GenesisRootHash
	prev, err := s.roots.LatestBefore(ctx, day)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("read previous root: %w", err)
	}
	if prev != nil {
		prevHash = prev.RootHash
	}

	finalRoot, err := finalHash(day, eventRoot, prevHash, int64(len(dayEvents)))
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if existing.RootHash == finalRoot {
			return existing, nil
		}
		disc := &Discrepancy{
			Day:             day,
			StoredHash:      existing.RootHash,
			RecomputedHash:  finalRoot,
			StoredCount:     existing.EventCount,
			RecomputedCount: int64(len(dayEvents)),
		}
		s.logger.Error(ctx, "root backfill discrepancy",
			"day", day.Format("2006-01-02"),
			"stored_hash", disc.StoredHash,
			"recomputed_hash", disc.RecomputedHash)
		return existing, disc
	}

	sig, err := s.signer.Sign(finalRoot)
	if err != nil {
		return nil, fmt.Errorf("sign root: %w", err)
	}
	if sig.Alg == models.SigAlgUnsigned {
		s.logger.Warn(ctx, "no signing key configured, root committed unsigned",
			"day", day.Format("2006-01-02"))
	}

	root := &models.DailyRoot{
		Day:          day,
		RootHash:     finalRoot,
		PrevRootHash: prevHash,
		Signature:    sig.Signature,
		SignatureAlg: sig.Alg,
		EventCount:   int64(len(dayEvents)),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.roots.Insert(ctx, root); err != nil {
		return nil, fmt.Errorf("persist root: %w", err)
	}

	s.logger.Info(ctx, "daily root committed",
		"day", day.Format("2006-01-02"),
		"root_hash", root.RootHash,
		"event_count", root.EventCount,
		"signature_alg", root.SignatureAlg)
	return root, nil
}

// foldDay chains the day's events: h_0 = leaf(e_0),
// h_i = sha256(h_{i-1} ‖ leaf(e_i)), where each leaf is the event's
// recomputed self-hash. Returns "" for an empty day.
func foldDay(dayEvents []*models.VaultEvent) string {
	acc := ""
	for _, event := range dayEvents {
		leaf, err := ledger.SelfHash(event)
		if err != nil {
			// Descriptor maps always marshal; treat as unreachable.
			leaf = hashx.Sum([]byte(event.ID))
		}
		if acc == "" {
			acc = leaf
			continue
		}
		acc = hashx.Sum([]byte(acc), []byte(leaf))
	}
	return acc
}

func finalHash(day time.Time, eventRoot, prevHash string, count int64) (string, error) {
	h, err := hashx.SumCanonical(map[string]any{
		"date":        day.Format("2006-01-02"),
		"event_root":  eventRoot,
		"prev_root":   prevHash,
		"event_count": count,
	})
	if err != nil {
		return "", fmt.Errorf("compute final root: %w", err)
	}
	return h, nil
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
