// Package httpapi exposes the vault core over HTTP: event ingestion from the
// escrow service, the disclosure gateway, and the verification surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nav2424/rift-sub004/internal/logging"
	"github.com/nav2424/rift-sub004/internal/server/dailyroot"
	"github.com/nav2424/rift-sub004/internal/server/disclosure"
	"github.com/nav2424/rift-sub004/internal/server/ledger"
	"github.com/nav2424/rift-sub004/internal/server/repositories/transactions"
)

// Uploader hands out presigned PUT targets for original asset bytes.
type Uploader interface {
	PresignPut(ctx context.Context, transactionID string) (key string, url string, err error)
}

// API wires the vault services to their routes.
type API struct {
	ledger     *ledger.Service
	roots      *dailyroot.Service
	disclosure *disclosure.Service
	parties    transactions.Repository
	uploader   Uploader
	logger     logging.Logger
}

func New(
	ledgerSvc *ledger.Service,
	rootsSvc *dailyroot.Service,
	disclosureSvc *disclosure.Service,
	partiesRepo transactions.Repository,
	uploader Uploader,
	logger logging.Logger,
) *API {
	return &API{
		ledger:     ledgerSvc,
		roots:      rootsSvc,
		disclosure: disclosureSvc,
		parties:    partiesRepo,
		uploader:   uploader,
		logger:     logger.With("module", "httpapi"),
	}
}

// Router builds the chi route tree.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events", a.handleAppendEvent)
		r.Post("/assets", a.handleRegisterAsset)
		r.Post("/disclosures", a.handleDisclose)
		r.Get("/content", a.handleRedeem)
		r.Post("/overrides", a.handleOverride)
		r.Get("/transactions/{id}/verify", a.handleVerifyChain)
		r.Put("/transactions/{id}/parties", a.handleUpsertParties)
		r.Post("/roots/{date}", a.handleGenerateRoot)
		r.Get("/roots/verify", a.handleVerifyRoots)
	})

	return r
}

// apiError is the structured refusal body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid JSON body")
		return false
	}
	return true
}

// clientIP strips the port from the remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
