package disclosure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nav2424/rift-sub004/internal/common"
	"github.com/nav2424/rift-sub004/internal/cryptox"
	"github.com/nav2424/rift-sub004/internal/server/blobstore"
	"github.com/nav2424/rift-sub004/internal/server/models"
	"github.com/nav2424/rift-sub004/internal/server/watermark"
)

// Tokens mints and parses short-lived content references. The token is a
// bearer of an already-authorized, already-logged disclosure; it never
// carries storage keys or content.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

type referenceClaims struct {
	AssetID   string `json:"asset_id"`
	ViewerID  string `json:"viewer_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Mint issues a reference for the asset/viewer pair.
func (t *Tokens) Mint(assetID, viewerID, sessionID string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(t.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, referenceClaims{
		AssetID:   assetID,
		ViewerID:  viewerID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt.UTC(), nil
}

// Parse validates the reference and returns its claims.
func (t *Tokens) Parse(reference string) (*referenceClaims, error) {
	claims := &referenceClaims{}
	_, err := jwt.ParseWithClaims(reference, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// Content is the redeemed payload: either inline bytes (text secrets) or a
// short-lived URL to fetch from object storage.
type Content struct {
	AssetType   string
	Body        []byte
	ContentType string
	RedirectURL string
}

// Redeem exchanges a valid reference for content. Text secrets are decrypted
// at serve time; images are run through the watermark pipeline and the
// rendered copy is what gets presigned. A failed watermark blocks
// disclosure for sensitive classes and degrades to the plain object for
// standard ones.
func (s *Service) Redeem(ctx context.Context, reference string) (*Content, error) {
	claims, err := s.tokens.Parse(reference)
	if err != nil {
		return nil, err
	}

	asset, err := s.assets.GetByID(ctx, claims.AssetID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAssetNotFound
		}
		return nil, fmt.Errorf("load asset: %w", err)
	}

	switch asset.AssetType {
	case models.AssetTypeSecret:
		plaintext, err := cryptox.Open(asset.EncryptedPayload, asset.PayloadNonce, s.vaultKey)
		if err != nil {
			return nil, fmt.Errorf("open secret payload: %w", err)
		}
		return &Content{
			AssetType:   asset.AssetType,
			Body:        plaintext,
			ContentType: "text/plain; charset=utf-8",
		}, nil

	case models.AssetTypeImage:
		url, err := s.renderImage(ctx, asset, claims)
		if err != nil {
			return nil, err
		}
		return &Content{AssetType: asset.AssetType, RedirectURL: url}, nil

	default:
		url, err := s.blobs.PresignGet(ctx, asset.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("presign %s: %w", asset.ID, err)
		}
		return &Content{AssetType: asset.AssetType, RedirectURL: url}, nil
	}
}

// renderImage produces the watermarked copy served in place of the original.
func (s *Service) renderImage(ctx context.Context, asset *models.VaultAsset, claims *referenceClaims) (string, error) {
	original, err := s.blobs.Fetch(ctx, asset.StorageKey)
	if err != nil {
		return "", fmt.Errorf("fetch original: %w", err)
	}

	rendered, renderErr := watermark.Render(original, watermark.Descriptor{
		TransactionID: asset.TransactionID,
		ViewerID:      claims.ViewerID,
		SessionID:     claims.SessionID,
		Timestamp:     s.now(),
	})
	if renderErr != nil {
		if asset.Sensitivity != models.SensitivityStandard {
			s.logger.Error(ctx, "watermark failed on sensitive asset",
				"asset_id", asset.ID, "error", renderErr)
			return "", fmt.Errorf("%w: %v", common.ErrWatermarkApply, renderErr)
		}
		s.logger.Warn(ctx, "watermark failed, serving plain render",
			"asset_id", asset.ID, "error", renderErr)
		return s.blobs.PresignGet(ctx, asset.StorageKey)
	}

	key := blobstore.RenderedCopyKey(asset.TransactionID)
	if err := s.blobs.Upload(ctx, key, rendered); err != nil {
		return "", fmt.Errorf("store rendered copy: %w", err)
	}
	return s.blobs.PresignGet(ctx, key)
}
