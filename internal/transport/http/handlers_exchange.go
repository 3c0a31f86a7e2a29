package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"credex/internal/exchange/models"
	"credex/internal/transport/http/json"
	"credex/internal/transport/http/shared"
	dErrors "credex/pkg/domain-errors"
)

type createExchangeRequest struct {
	TenantID string       `json:"tenantId"`
	Type     models.Type  `json:"type"`
	Offers   []offerInput `json:"offers,omitempty"`
}

type offerInput struct {
	CredentialTypes []string       `json:"credentialTypes"`
	Claims          map[string]any `json:"claims,omitempty"`
}

type exchangeResponse struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenantId"`
	Type              string    `json:"type"`
	State             string    `json:"state"`
	CreatedAt         time.Time `json:"createdAt"`
	OfferIDs          []string  `json:"offerIds,omitempty"`
	FinalizedOfferIDs []string  `json:"finalizedOfferIds,omitempty"`
	DisclosureID      string    `json:"disclosureId,omitempty"`
}

func toExchangeResponse(ex *models.Exchange) exchangeResponse {
	return exchangeResponse{
		ID:                ex.ID,
		TenantID:          ex.TenantID,
		Type:              string(ex.Type),
		State:             string(ex.CurrentState()),
		CreatedAt:         ex.CreatedAt(),
		OfferIDs:          ex.OfferIDs,
		FinalizedOfferIDs: ex.FinalizedOfferIDs,
		DisclosureID:      ex.DisclosureID,
	}
}

// handleCreateExchange creates an exchange, minting any offers listed in the
// request. An issuing exchange carrying offers moves straight to
// ISSUING_PENDING since the issuer side needs no identification walk.
func (h *Handler) handleCreateExchange(w http.ResponseWriter, r *http.Request) {
	var req createExchangeRequest
	if err := json.Decode(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	if len(req.Offers) > 0 && req.Type != models.TypeIssuing {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "offers require an issuing exchange"))
		return
	}

	exchange, err := h.exchanges.CreateWithInitialState(r.Context(), req.TenantID, req.Type, nil)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if len(req.Offers) > 0 {
		offerIDs := make([]string, 0, len(req.Offers))
		for _, in := range req.Offers {
			offer, err := h.offers.Create(r.Context(), exchange.ID, in.CredentialTypes, in.Claims)
			if err != nil {
				h.exchanges.CompleteWithError(r.Context(), exchange.ID, err)
				shared.WriteError(w, err)
				return
			}
			offerIDs = append(offerIDs, offer.ID)
		}
		updated, err := h.exchanges.AppendState(r.Context(), exchange.ID, models.StateIssuingPending, &models.Patch{OfferIDs: offerIDs})
		if err != nil {
			h.exchanges.CompleteWithError(r.Context(), exchange.ID, err)
			shared.WriteError(w, err)
			return
		}
		exchange = updated
	}

	json.WriteJSON(w, http.StatusCreated, toExchangeResponse(exchange))
}

func (h *Handler) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	exchange, err := h.exchanges.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, toExchangeResponse(exchange))
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
}

func (h *Handler) handleIssueChallenge(w http.ResponseWriter, r *http.Request) {
	nonce, err := h.exchanges.IssueChallenge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, challengeResponse{Challenge: nonce})
}

type presentationRequest struct {
	Challenge  string `json:"challenge"`
	Credential string `json:"credential"`
}

type presentationResponse struct {
	Exchange exchangeResponse  `json:"exchange"`
	Checks   map[string]string `json:"checks"`
}

// handleSubmitPresentation verifies a presented credential against the
// exchange's challenge. A trusted credential moves the exchange to
// IDENTIFIED; any verification shortfall parks it NOT_IDENTIFIED.
func (h *Handler) handleSubmitPresentation(w http.ResponseWriter, r *http.Request) {
	exchangeID := chi.URLParam(r, "id")

	var req presentationRequest
	if err := json.Decode(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	if req.Credential == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "credential is required"))
		return
	}

	if err := h.exchanges.RedeemChallenge(r.Context(), exchangeID, req.Challenge); err != nil {
		h.exchanges.CompleteWithError(r.Context(), exchangeID, err)
		shared.WriteError(w, err)
		return
	}

	result, credential, err := h.verifier.Verify(r.Context(), req.Credential)
	if err != nil {
		h.exchanges.CompleteWithError(r.Context(), exchangeID, err)
		shared.WriteError(w, err)
		return
	}
	if h.metrics != nil {
		for check, outcome := range checksMap(result) {
			h.metrics.IncrementPresentationChecks(check, outcome)
		}
	}

	var exchange *models.Exchange
	if result.Trusted() {
		exchange, err = h.exchanges.AppendState(r.Context(), exchangeID, models.StateIdentified, &models.Patch{
			DisclosureID: &credential.ID,
		})
	} else {
		exchange, err = h.exchanges.AppendState(r.Context(), exchangeID, models.StateNotIdentified, nil)
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	json.WriteJSON(w, http.StatusOK, presentationResponse{
		Exchange: toExchangeResponse(exchange),
		Checks:   checksMap(result),
	})
}
