// Package httptransport is the thin HTTP layer. Handlers delegate to domain
// services and never embed business logic, so transport concerns stay
// isolated from the exchange engine.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	exchangemetrics "credex/internal/exchange/metrics"
	exchangemodels "credex/internal/exchange/models"
	offermodels "credex/internal/offer/models"
	"credex/internal/platform/health"
	"credex/internal/platform/middleware"
	"credex/internal/verification"
)

// ExchangeService drives the exchange lifecycle.
type ExchangeService interface {
	CreateWithInitialState(ctx context.Context, tenantID string, typ exchangemodels.Type, patch *exchangemodels.Patch, extraStates ...exchangemodels.State) (*exchangemodels.Exchange, error)
	Get(ctx context.Context, id string) (*exchangemodels.Exchange, error)
	AppendState(ctx context.Context, id string, to exchangemodels.State, patch *exchangemodels.Patch) (*exchangemodels.Exchange, error)
	CompleteWithError(ctx context.Context, id string, cause error)
	IssueChallenge(ctx context.Context, id string) (string, error)
	RedeemChallenge(ctx context.Context, id, presented string) error
}

// OfferService manages offer dispositions.
type OfferService interface {
	Create(ctx context.Context, exchangeID string, credentialTypes []string, claims map[string]any) (*offermodels.Offer, error)
	Get(ctx context.Context, id string) (*offermodels.Offer, error)
	Claim(ctx context.Context, id string) (*offermodels.Offer, error)
	Reject(ctx context.Context, id string) (*offermodels.Offer, error)
}

// FinalizeService folds settled offers into their exchange.
type FinalizeService interface {
	Finalize(ctx context.Context, exchangeID string, offerIDs []string) (*exchangemodels.Exchange, error)
}

// Verifier runs the credential verification pipeline.
type Verifier interface {
	Verify(ctx context.Context, rawJWS string) (verification.Result, *verification.Credential, error)
}

// HandlerOption configures optional handler capabilities.
type HandlerOption func(*Handler)

// Handler bundles the domain services behind the HTTP surface.
type Handler struct {
	exchanges ExchangeService
	offers    OfferService
	finalizer FinalizeService
	verifier  Verifier
	nonces    NonceService
	submitter SubmitService
	metrics   *exchangemetrics.Metrics
	logger    *slog.Logger
}

// WithMetrics enables per-check presentation counters on the verification
// endpoint.
func WithMetrics(m *exchangemetrics.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

func NewHandler(exchanges ExchangeService, offers OfferService, finalizer FinalizeService, verifier Verifier, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		exchanges: exchanges,
		offers:    offers,
		finalizer: finalizer,
		verifier:  verifier,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRouter wires all public endpoints with the middleware stack.
func NewRouter(h *Handler, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.WalletClient)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	r.Post("/exchanges", h.handleCreateExchange)
	r.Get("/exchanges/{id}", h.handleGetExchange)
	r.Post("/exchanges/{id}/challenge", h.handleIssueChallenge)
	r.Post("/exchanges/{id}/presentations", h.handleSubmitPresentation)

	r.Get("/offers/{id}", h.handleGetOffer)
	r.Post("/offers/{id}/claim", h.handleClaimOffer)
	r.Post("/offers/{id}/reject", h.handleRejectOffer)

	r.Post("/credentials/verify", h.handleVerifyCredential)

	if h.nonces != nil && h.submitter != nil {
		r.Post("/nonces/{address}", h.handleProvisionNonce)
		r.Get("/nonces/{address}", h.handleGetNonce)
		r.Post("/transactions", h.handleSubmitTransaction)
	}

	if healthHandler != nil {
		healthHandler.Register(r)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
