// Package ledger implements the append-only, hash-linked event chain kept
// per transaction, and its verifier.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nav2424/rift-sub004/internal/common"
	"github.com/nav2424/rift-sub004/internal/hashx"
	"github.com/nav2424/rift-sub004/internal/logging"
	"github.com/nav2424/rift-sub004/internal/server/models"
	"github.com/nav2424/rift-sub004/internal/server/repositories/events"
	"github.com/sethvargo/go-retry"
)

const (
	appendMaxRetries   = 5
	appendRetryBackoff = 10 * time.Millisecond
)

// AppendInput describes one audited action. Identifier fields carry raw
// request values; the service hashes them before anything is persisted.
type AppendInput struct {
	TransactionID string
	AssetID       string
	ActorID       string
	ActorRole     string
	EventType     string

	IPAddress         string
	UserAgent         string
	SessionID         string
	DeviceFingerprint string

	AssetHash string
	Metadata  map[string]any
}

// Service appends to and verifies transaction chains.
type Service struct {
	events events.Repository
	salt   string
	logger logging.Logger
	now    func() time.Time
}

func NewService(repo events.Repository, identifierSalt string, logger logging.Logger) *Service {
	return &Service{
		events: repo,
		salt:   identifierSalt,
		logger: logger.With("module", "ledger"),
		now:    time.Now,
	}
}

// Head returns the self-hash of the transaction's newest event, or the
// empty-string sentinel for an empty chain. Callers use it as the
// optimistic-concurrency token for AppendConditional.
func (s *Service) Head(ctx context.Context, transactionID string) (string, error) {
	head, err := s.events.Head(ctx, transactionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read chain head: %w", err)
	}
	return head.SelfHash, nil
}

// AppendConditional links a new event onto the chain iff the chain head is
// still expectedPrevHash. A moved head surfaces as common.ErrChainConflict
// with nothing written; the caller decides whether re-reading and retrying
// is safe for its event type.
func (s *Service) AppendConditional(ctx context.Context, in AppendInput, expectedPrevHash string) (*models.VaultEvent, error) {
	if in.TransactionID == "" {
		return nil, fmt.Errorf("transaction id is required")
	}

	event := &models.VaultEvent{
		ID:                uuid.NewString(),
		TransactionID:     in.TransactionID,
		AssetID:           in.AssetID,
		ActorID:           in.ActorID,
		ActorRole:         in.ActorRole,
		EventType:         in.EventType,
		OccurredAt:        s.now().UTC(),
		IPHash:            hashx.Identifier(in.IPAddress, s.salt),
		UserAgentHash:     hashx.Identifier(in.UserAgent, s.salt),
		SessionID:         in.SessionID,
		DeviceFingerprint: in.DeviceFingerprint,
		AssetHash:         in.AssetHash,
		PrevHash:          expectedPrevHash,
		Metadata:          in.Metadata,
	}

	var err error
	event.SelfHash, err = SelfHash(event)
	if err != nil {
		return nil, fmt.Errorf("compute self hash: %w", err)
	}

	if err := s.events.Append(ctx, event); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "event appended",
		"transaction_id", event.TransactionID,
		"event_id", event.ID,
		"event_type", event.EventType)
	return event, nil
}

// Append links a new event onto the transaction's chain. The chain head is
// re-read on every attempt; losing the conditional insert race retries with
// backoff so two concurrent appenders serialize instead of forking. Events
// whose admissibility depends on prior chain state (one-time reveals) must
// not go through this blind retry; use AppendConditional instead.
func (s *Service) Append(ctx context.Context, in AppendInput) (*models.VaultEvent, error) {
	if in.TransactionID == "" {
		return nil, fmt.Errorf("transaction id is required")
	}

	var appended *models.VaultEvent

	backoff := retry.WithMaxRetries(appendMaxRetries, retry.NewFibonacci(appendRetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		prevHash, err := s.Head(ctx, in.TransactionID)
		if err != nil {
			return err
		}

		event, err := s.AppendConditional(ctx, in, prevHash)
		if err != nil {
			if errors.Is(err, common.ErrChainConflict) {
				s.logger.Warn(ctx, "chain head moved, retrying append",
					"transaction_id", in.TransactionID)
				return retry.RetryableError(err)
			}
			return err
		}

		appended = event
		return nil
	})
	if err != nil {
		return nil, err
	}

	return appended, nil
}

// SelfHash computes the deterministic hash committing to all event fields
// plus the previous event's self-hash.
func SelfHash(event *models.VaultEvent) (string, error) {
	desc := event.Descriptor()
	desc["prev_hash"] = event.PrevHash
	return hashx.SumCanonical(desc)
}
