// Package disclosure is the controlled-disclosure gateway: every access to a
// vault asset is authorized against the transaction's parties, checked
// against the one-time-reveal state derived from the ledger, and logged to
// the chain before any content reference is handed out.
package disclosure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nav2424/rift-sub004/internal/common"
	"github.com/nav2424/rift-sub004/internal/cryptox"
	"github.com/nav2424/rift-sub004/internal/logging"
	"github.com/nav2424/rift-sub004/internal/server/ledger"
	"github.com/nav2424/rift-sub004/internal/server/models"
	"github.com/nav2424/rift-sub004/internal/server/repositories/assets"
	"github.com/nav2424/rift-sub004/internal/server/repositories/events"
	"github.com/nav2424/rift-sub004/internal/server/repositories/transactions"
)

// EventAppender appends to the transaction's hash chain. Append retries a
// moved head internally; AppendConditional writes iff the head still equals
// the given hash, so chain-state-dependent decisions stay atomic with their
// event.
type EventAppender interface {
	Append(ctx context.Context, in ledger.AppendInput) (*models.VaultEvent, error)
	AppendConditional(ctx context.Context, in ledger.AppendInput, expectedPrevHash string) (*models.VaultEvent, error)
	Head(ctx context.Context, transactionID string) (string, error)
}

// BlobStore is the slice of the object store the gateway needs.
type BlobStore interface {
	PresignGet(ctx context.Context, key string) (string, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Service mediates every read of vault content.
type Service struct {
	assets       assets.Repository
	transactions transactions.Repository
	events       events.Repository
	ledger       EventAppender
	tokens       *Tokens
	blobs        BlobStore
	vaultKey     []byte
	logger       logging.Logger
	now          func() time.Time
}

func NewService(
	assetRepo assets.Repository,
	txnRepo transactions.Repository,
	eventRepo events.Repository,
	appender EventAppender,
	tokens *Tokens,
	blobs BlobStore,
	vaultKey []byte,
	logger logging.Logger,
) *Service {
	return &Service{
		assets:       assetRepo,
		transactions: txnRepo,
		events:       eventRepo,
		ledger:       appender,
		tokens:       tokens,
		blobs:        blobs,
		vaultKey:     vaultKey,
		logger:       logger.With("module", "disclosure"),
		now:          time.Now,
	}
}

// Request is one disclosure attempt. Identifier fields carry raw request
// values; they are hashed by the ledger before persistence.
type Request struct {
	AssetID       string
	TransactionID string
	ViewerID      string

	IPAddress         string
	UserAgent         string
	SessionID         string
	DeviceFingerprint string
}

// Grant is a successful disclosure: a short-lived reference the viewer
// redeems for content.
type Grant struct {
	Reference string
	ExpiresAt time.Time
	AssetType string
}

// RevealState is derived by scanning the asset's events, never cached: each
// admin override extends the allowance by exactly one further reveal.
type RevealState struct {
	Reveals   int
	Overrides int
}

func (r RevealState) Allowed() bool {
	return r.Reveals < 1+r.Overrides
}

// Disclose authorizes, checks reveal state, logs the access to the chain and
// only then mints the content reference. The event append is the commit
// point: if it fails, no reference exists.
func (s *Service) Disclose(ctx context.Context, req Request) (*Grant, error) {
	asset, err := s.assets.GetByID(ctx, req.AssetID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAssetNotFound
		}
		return nil, fmt.Errorf("load asset: %w", err)
	}
	if asset.TransactionID != req.TransactionID {
		return nil, common.ErrAssetNotFound
	}

	parties, err := s.transactions.GetParties(ctx, asset.TransactionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("load parties: %w", err)
	}
	if req.ViewerID == "" || req.ViewerID != parties.EntitledViewer() {
		s.logger.Warn(ctx, "disclosure denied",
			"asset_id", asset.ID, "viewer_id", req.ViewerID)
		return nil, common.ErrorUnauthorized
	}

	eventType := models.EventView
	if asset.OneTimeReveal() {
		eventType = models.EventReveal
	}

	input := ledger.AppendInput{
		TransactionID:     asset.TransactionID,
		AssetID:           asset.ID,
		ActorID:           req.ViewerID,
		ActorRole:         models.RoleBuyer,
		EventType:         eventType,
		IPAddress:         req.IPAddress,
		UserAgent:         req.UserAgent,
		SessionID:         req.SessionID,
		DeviceFingerprint: req.DeviceFingerprint,
		AssetHash:         asset.ContentHash,
	}

	if asset.OneTimeReveal() {
		if err := s.appendReveal(ctx, asset, input); err != nil {
			return nil, err
		}
	} else if _, err := s.ledger.Append(ctx, input); err != nil {
		return nil, fmt.Errorf("log disclosure: %w", err)
	}

	reference, expiresAt, err := s.tokens.Mint(asset.ID, req.ViewerID, req.SessionID, s.now())
	if err != nil {
		return nil, fmt.Errorf("mint content reference: %w", err)
	}

	s.logger.Info(ctx, "disclosure granted",
		"asset_id", asset.ID,
		"transaction_id", asset.TransactionID,
		"event_type", eventType)
	return &Grant{Reference: reference, ExpiresAt: expiresAt, AssetType: asset.AssetType}, nil
}

const revealMaxAttempts = 5

// appendReveal commits a reveal event exactly once. The chain head is
// captured before the reveal-state scan and the append is conditional on it,
// so any event landing between scan and append fails the insert instead of
// committing a second reveal; on conflict the state is re-derived before
// deciding between retry and refusal.
func (s *Service) appendReveal(ctx context.Context, asset *models.VaultAsset, input ledger.AppendInput) error {
	for attempt := 0; attempt < revealMaxAttempts; attempt++ {
		prevHash, err := s.ledger.Head(ctx, asset.TransactionID)
		if err != nil {
			return err
		}

		state, err := s.revealState(ctx, asset.ID)
		if err != nil {
			return err
		}
		if !state.Allowed() {
			return common.ErrAlreadyRevealed
		}

		if _, err := s.ledger.AppendConditional(ctx, input, prevHash); err != nil {
			if errors.Is(err, common.ErrChainConflict) {
				s.logger.Warn(ctx, "chain moved during reveal, re-checking state",
					"asset_id", asset.ID)
				continue
			}
			return fmt.Errorf("log disclosure: %w", err)
		}
		return nil
	}
	return fmt.Errorf("log disclosure: %w", common.ErrChainConflict)
}

func (s *Service) revealState(ctx context.Context, assetID string) (RevealState, error) {
	list, err := s.events.ListByAsset(ctx, assetID)
	if err != nil {
		return RevealState{}, fmt.Errorf("scan reveal state: %w", err)
	}

	var state RevealState
	for _, e := range list {
		switch e.EventType {
		case models.EventReveal:
			state.Reveals++
		case models.EventAdminOverride:
			state.Overrides++
		}
	}
	return state, nil
}

// OverrideInput records an audited admin override that re-opens a consumed
// one-time reveal.
type OverrideInput struct {
	AssetID string
	AdminID string
	Reason  string

	IPAddress string
	UserAgent string
	SessionID string
}

// RecordOverride appends the override to the asset's transaction chain. The
// override is nothing but the event: reveal state is always recomputed from
// the ledger.
func (s *Service) RecordOverride(ctx context.Context, in OverrideInput) (*models.VaultEvent, error) {
	asset, err := s.assets.GetByID(ctx, in.AssetID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAssetNotFound
		}
		return nil, fmt.Errorf("load asset: %w", err)
	}

	event, err := s.ledger.Append(ctx, ledger.AppendInput{
		TransactionID: asset.TransactionID,
		AssetID:       asset.ID,
		ActorID:       in.AdminID,
		ActorRole:     models.RoleAdmin,
		EventType:     models.EventAdminOverride,
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		SessionID:     in.SessionID,
		AssetHash:     asset.ContentHash,
		Metadata:      map[string]any{"reason": in.Reason},
	})
	if err != nil {
		return nil, fmt.Errorf("log override: %w", err)
	}

	s.logger.Info(ctx, "admin override recorded",
		"asset_id", asset.ID, "admin_id", in.AdminID)
	return event, nil
}

// RegisterInput describes a new asset pushed by the escrow service. Secret
// carries the plaintext of a text secret; it is sealed before anything is
// stored.
type RegisterInput struct {
	TransactionID string
	AssetType     string
	Sensitivity   string
	ContentHash   string
	StorageKey    string
	Secret        string

	ActorID   string
	ActorRole string

	IPAddress string
	UserAgent string
	SessionID string
}

// RegisterAsset stores the asset record and appends the upload event.
func (s *Service) RegisterAsset(ctx context.Context, in RegisterInput) (*models.VaultAsset, error) {
	asset := &models.VaultAsset{
		ID:            uuid.NewString(),
		TransactionID: in.TransactionID,
		AssetType:     in.AssetType,
		Sensitivity:   in.Sensitivity,
		ContentHash:   in.ContentHash,
		StorageKey:    in.StorageKey,
		CreatedAt:     s.now().UTC(),
	}

	if in.Secret != "" {
		ciphertext, nonce, err := cryptox.Seal([]byte(in.Secret), s.vaultKey)
		if err != nil {
			return nil, fmt.Errorf("seal secret: %w", err)
		}
		asset.EncryptedPayload = ciphertext
		asset.PayloadNonce = nonce
	}

	if err := s.assets.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("create asset: %w", err)
	}

	if _, err := s.ledger.Append(ctx, ledger.AppendInput{
		TransactionID: in.TransactionID,
		AssetID:       asset.ID,
		ActorID:       in.ActorID,
		ActorRole:     in.ActorRole,
		EventType:     models.EventUpload,
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		SessionID:     in.SessionID,
		AssetHash:     in.ContentHash,
	}); err != nil {
		return nil, fmt.Errorf("log upload: %w", err)
	}

	s.logger.Info(ctx, "asset registered",
		"asset_id", asset.ID,
		"transaction_id", asset.TransactionID,
		"asset_type", asset.AssetType)
	return asset, nil
}
