package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"credex/internal/offer/models"
	"credex/internal/transport/http/json"
	"credex/internal/transport/http/shared"
)

type offerResponse struct {
	ID              string         `json:"id"`
	ExchangeID      string         `json:"exchangeId"`
	CredentialTypes []string       `json:"credentialTypes"`
	Claims          map[string]any `json:"claims,omitempty"`
	ConsentedAt     *time.Time     `json:"consentedAt,omitempty"`
	RejectedAt      *time.Time     `json:"rejectedAt,omitempty"`
	ExpiresAt       *time.Time     `json:"expiresAt,omitempty"`
}

func toOfferResponse(offer *models.Offer) offerResponse {
	return offerResponse{
		ID:              offer.ID,
		ExchangeID:      offer.ExchangeID,
		CredentialTypes: offer.CredentialTypes,
		Claims:          offer.PublicClaims(),
		ConsentedAt:     offer.ConsentedAt,
		RejectedAt:      offer.RejectedAt,
		ExpiresAt:       offer.ExpiresAt,
	}
}

func (h *Handler) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := h.offers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, toOfferResponse(offer))
}

type offerDispositionResponse struct {
	Offer    offerResponse    `json:"offer"`
	Exchange exchangeResponse `json:"exchange"`
}

// handleClaimOffer records the holder's consent and folds the settled offer
// into its exchange. Finalization failures park the exchange; the consent
// itself stays recorded.
func (h *Handler) handleClaimOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := h.offers.Claim(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	h.settle(w, r, offer)
}

// handleRejectOffer records the holder's refusal. A rejected offer no longer
// blocks completion, so it finalizes the same way a claimed one does.
func (h *Handler) handleRejectOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := h.offers.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	h.settle(w, r, offer)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request, offer *models.Offer) {
	exchange, err := h.finalizer.Finalize(r.Context(), offer.ExchangeID, []string{offer.ID})
	if err != nil {
		h.exchanges.CompleteWithError(r.Context(), offer.ExchangeID, err)
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, offerDispositionResponse{
		Offer:    toOfferResponse(offer),
		Exchange: toExchangeResponse(exchange),
	})
}
