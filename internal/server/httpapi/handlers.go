package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nav2424/rift-sub004/internal/common"
	"github.com/nav2424/rift-sub004/internal/server/dailyroot"
	"github.com/nav2424/rift-sub004/internal/server/disclosure"
	"github.com/nav2424/rift-sub004/internal/server/ledger"
	"github.com/nav2424/rift-sub004/internal/server/models"
)

type appendEventRequest struct {
	TransactionID     string         `json:"transactionId"`
	AssetID           string         `json:"assetId"`
	ActorID           string         `json:"actorId"`
	ActorRole         string         `json:"actorRole"`
	EventType         string         `json:"eventType"`
	SessionID         string         `json:"sessionId"`
	DeviceFingerprint string         `json:"deviceFingerprint"`
	AssetHash         string         `json:"assetHash"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

type eventResponse struct {
	ID         string    `json:"id"`
	SelfHash   string    `json:"selfHash"`
	PrevHash   string    `json:"prevHash"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (a *API) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	var req appendEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TransactionID == "" || req.EventType == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELD", "transactionId and eventType are required")
		return
	}

	event, err := a.ledger.Append(r.Context(), ledger.AppendInput{
		TransactionID:     req.TransactionID,
		AssetID:           req.AssetID,
		ActorID:           req.ActorID,
		ActorRole:         req.ActorRole,
		EventType:         req.EventType,
		IPAddress:         clientIP(r),
		UserAgent:         r.UserAgent(),
		SessionID:         req.SessionID,
		DeviceFingerprint: req.DeviceFingerprint,
		AssetHash:         req.AssetHash,
		Metadata:          req.Metadata,
	})
	if err != nil {
		a.logger.Error(r.Context(), "append event failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not append event")
		return
	}

	writeJSON(w, http.StatusCreated, eventResponse{
		ID:         event.ID,
		SelfHash:   event.SelfHash,
		PrevHash:   event.PrevHash,
		OccurredAt: event.OccurredAt,
	})
}

type registerAssetRequest struct {
	TransactionID string `json:"transactionId"`
	AssetType     string `json:"assetType"`
	Sensitivity   string `json:"sensitivity"`
	ContentHash   string `json:"contentHash"`
	Secret        string `json:"secret,omitempty"`
	ActorID       string `json:"actorId"`
	ActorRole     string `json:"actorRole"`
	SessionID     string `json:"sessionId"`
}

type registerAssetResponse struct {
	ID        string `json:"id"`
	AssetType string `json:"assetType"`
	UploadURL string `json:"uploadUrl,omitempty"`
}

func (a *API) handleRegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req registerAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TransactionID == "" || req.AssetType == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELD", "transactionId and assetType are required")
		return
	}
	if req.AssetType == models.AssetTypeSecret && req.Secret == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELD", "secret payload is required for secret assets")
		return
	}

	// Non-secret payloads are uploaded by the caller through a presigned
	// PUT; the vault only keeps the storage key.
	var storageKey, uploadURL string
	if req.AssetType != models.AssetTypeSecret {
		var err error
		storageKey, uploadURL, err = a.uploader.PresignPut(r.Context(), req.TransactionID)
		if err != nil {
			a.logger.Error(r.Context(), "presign upload failed", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "could not prepare upload")
			return
		}
	}

	asset, err := a.disclosure.RegisterAsset(r.Context(), disclosure.RegisterInput{
		TransactionID: req.TransactionID,
		AssetType:     req.AssetType,
		Sensitivity:   req.Sensitivity,
		ContentHash:   req.ContentHash,
		StorageKey:    storageKey,
		Secret:        req.Secret,
		ActorID:       req.ActorID,
		ActorRole:     req.ActorRole,
		IPAddress:     clientIP(r),
		UserAgent:     r.UserAgent(),
		SessionID:     req.SessionID,
	})
	if err != nil {
		a.logger.Error(r.Context(), "register asset failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not register asset")
		return
	}

	writeJSON(w, http.StatusCreated, registerAssetResponse{
		ID:        asset.ID,
		AssetType: asset.AssetType,
		UploadURL: uploadURL,
	})
}

type discloseRequest struct {
	AssetID           string `json:"assetId"`
	TransactionID     string `json:"transactionId"`
	ViewerID          string `json:"viewerId"`
	SessionID         string `json:"sessionId"`
	DeviceFingerprint string `json:"deviceFingerprint"`
}

type discloseResponse struct {
	Reference string    `json:"reference"`
	ExpiresAt time.Time `json:"expiresAt"`
	AssetType string    `json:"assetType"`
}

func (a *API) handleDisclose(w http.ResponseWriter, r *http.Request) {
	var req discloseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	grant, err := a.disclosure.Disclose(r.Context(), disclosure.Request{
		AssetID:           req.AssetID,
		TransactionID:     req.TransactionID,
		ViewerID:          req.ViewerID,
		IPAddress:         clientIP(r),
		UserAgent:         r.UserAgent(),
		SessionID:         req.SessionID,
		DeviceFingerprint: req.DeviceFingerprint,
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrAssetNotFound):
			writeError(w, http.StatusNotFound, "ASSET_NOT_FOUND", "asset not found")
		case errors.Is(err, common.ErrorUnauthorized):
			writeError(w, http.StatusForbidden, "UNAUTHORIZED", "viewer is not entitled to this asset")
		case errors.Is(err, common.ErrAlreadyRevealed):
			writeError(w, http.StatusConflict, "ALREADY_REVEALED", "one-time reveal already consumed")
		default:
			a.logger.Error(r.Context(), "disclosure failed", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "disclosure failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, discloseResponse{
		Reference: grant.Reference,
		ExpiresAt: grant.ExpiresAt,
		AssetType: grant.AssetType,
	})
}

func (a *API) handleRedeem(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "MISSING_TOKEN", "token query parameter is required")
		return
	}

	content, err := a.disclosure.Redeem(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrTokenExpired):
			writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "content reference expired")
		case errors.Is(err, common.ErrInvalidToken):
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "content reference is not valid")
		case errors.Is(err, common.ErrAssetNotFound):
			writeError(w, http.StatusNotFound, "ASSET_NOT_FOUND", "asset not found")
		case errors.Is(err, common.ErrWatermarkApply):
			writeError(w, http.StatusInternalServerError, "WATERMARK_FAILED", "could not render a marked copy")
		default:
			a.logger.Error(r.Context(), "redeem failed", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "redeem failed")
		}
		return
	}

	if content.RedirectURL != "" {
		http.Redirect(w, r, content.RedirectURL, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", content.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content.Body)
}

type overrideRequest struct {
	AssetID   string `json:"assetId"`
	AdminID   string `json:"adminId"`
	Reason    string `json:"reason"`
	SessionID string `json:"sessionId"`
}

func (a *API) handleOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AssetID == "" || req.AdminID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELD", "assetId and adminId are required")
		return
	}

	event, err := a.disclosure.RecordOverride(r.Context(), disclosure.OverrideInput{
		AssetID:   req.AssetID,
		AdminID:   req.AdminID,
		Reason:    req.Reason,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		SessionID: req.SessionID,
	})
	if err != nil {
		if errors.Is(err, common.ErrAssetNotFound) {
			writeError(w, http.StatusNotFound, "ASSET_NOT_FOUND", "asset not found")
			return
		}
		a.logger.Error(r.Context(), "override failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not record override")
		return
	}

	writeJSON(w, http.StatusCreated, eventResponse{
		ID:         event.ID,
		SelfHash:   event.SelfHash,
		PrevHash:   event.PrevHash,
		OccurredAt: event.OccurredAt,
	})
}

type upsertPartiesRequest struct {
	BuyerID  string `json:"buyerId"`
	SellerID string `json:"sellerId"`
}

// handleUpsertParties takes the party assignment pushed by the escrow
// service; the transaction id in the path is the directory key.
func (a *API) handleUpsertParties(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "id")

	var req upsertPartiesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.BuyerID == "" || req.SellerID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELD", "buyerId and sellerId are required")
		return
	}

	err := a.parties.Upsert(r.Context(), &models.TransactionParties{
		TransactionID: transactionID,
		BuyerID:       req.BuyerID,
		SellerID:      req.SellerID,
	})
	if err != nil {
		a.logger.Error(r.Context(), "upsert parties failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not record parties")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "id")

	report, err := a.ledger.Verify(r.Context(), transactionID)
	if err != nil {
		a.logger.Error(r.Context(), "chain verification failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "verification failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type rootResponse struct {
	Day          string `json:"day"`
	RootHash     string `json:"rootHash"`
	PrevRootHash string `json:"prevRootHash"`
	Signature    string `json:"signature"`
	SignatureAlg string `json:"signatureAlg"`
	EventCount   int64  `json:"eventCount"`
}

type rootDiscrepancyResponse struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	Day             string `json:"day"`
	StoredHash      string `json:"storedHash"`
	RecomputedHash  string `json:"recomputedHash"`
	StoredCount     int64  `json:"storedCount"`
	RecomputedCount int64  `json:"recomputedCount"`
}

func (a *API) handleGenerateRoot(w http.ResponseWriter, r *http.Request) {
	day, err := time.Parse("2006-01-02", chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_DATE", "date must be YYYY-MM-DD")
		return
	}

	root, err := a.roots.Generate(r.Context(), day)
	if err != nil {
		var disc *dailyroot.Discrepancy
		if errors.As(err, &disc) {
			writeJSON(w, http.StatusConflict, rootDiscrepancyResponse{
				Code:            "ROOT_DISCREPANCY",
				Message:         "stored root no longer matches a recompute",
				Day:             disc.Day.Format("2006-01-02"),
				StoredHash:      disc.StoredHash,
				RecomputedHash:  disc.RecomputedHash,
				StoredCount:     disc.StoredCount,
				RecomputedCount: disc.RecomputedCount,
			})
			return
		}
		a.logger.Error(r.Context(), "root generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "root generation failed")
		return
	}
	if root == nil {
		// No events on that day, nothing to commit to.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusCreated, rootResponse{
		Day:          root.Day.Format("2006-01-02"),
		RootHash:     root.RootHash,
		PrevRootHash: root.PrevRootHash,
		Signature:    root.Signature,
		SignatureAlg: root.SignatureAlg,
		EventCount:   root.EventCount,
	})
}

func (a *API) handleVerifyRoots(w http.ResponseWriter, r *http.Request) {
	report, err := a.roots.VerifyAll(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), "root verification failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "verification failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
