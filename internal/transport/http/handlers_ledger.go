package httptransport

import (
	"context"
	"encoding/base64"
	stdjson "encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"credex/internal/ledger"
	noncemodels "credex/internal/nonce/models"
	"credex/internal/transport/http/json"
	"credex/internal/transport/http/shared"
	dErrors "credex/pkg/domain-errors"
)

// NonceService manages per-address transaction sequence numbers.
type NonceService interface {
	Provision(ctx context.Context, address, tenantID string, startAt int64) error
	Current(ctx context.Context, address string) (*noncemodels.Record, error)
}

// SubmitService sequences and submits signed ledger transactions.
type SubmitService interface {
	Submit(ctx context.Context, address, tenantID string, sign ledger.SignFunc) (*ledger.Receipt, error)
}

// WithLedger enables the nonce and transaction endpoints. Without it the
// routes stay unregistered, for deployments that run the engine without a
// ledger connection.
func WithLedger(nonces NonceService, submitter SubmitService) HandlerOption {
	return func(h *Handler) {
		h.nonces = nonces
		h.submitter = submitter
	}
}

type provisionNonceRequest struct {
	TenantID string `json:"tenantId"`
	StartAt  int64  `json:"startAt"`
}

func (h *Handler) handleProvisionNonce(w http.ResponseWriter, r *http.Request) {
	var req provisionNonceRequest
	if err := json.Decode(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	address := chi.URLParam(r, "address")
	if err := h.nonces.Provision(r.Context(), address, req.TenantID, req.StartAt); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type nonceResponse struct {
	Address   string    `json:"address"`
	Nonce     int64     `json:"nonce"`
	TenantID  string    `json:"tenantId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (h *Handler) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	record, err := h.nonces.Current(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, nonceResponse{
		Address:   record.Address,
		Nonce:     record.Nonce,
		TenantID:  record.TenantID,
		UpdatedAt: record.UpdatedAt,
	})
}

type submitTransactionRequest struct {
	Address     string `json:"address"`
	TenantID    string `json:"tenantId"`
	Transaction string `json:"transaction"`
}

type submitTransactionResponse struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
}

// sequencedTx is the envelope the engine wraps around a signed payload; the
// ledger node checks the nonce against the address's expected sequence.
type sequencedTx struct {
	Nonce   int64  `json:"nonce"`
	Payload []byte `json:"payload"`
}

// handleSubmitTransaction allocates the next nonce for the signing address
// and forwards the sequenced transaction to the ledger. A failed submission
// burns the nonce; the caller retries and gets a fresh one.
func (h *Handler) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req submitTransactionRequest
	if err := json.Decode(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	payload, err := base64.StdEncoding.DecodeString(req.Transaction)
	if err != nil || len(payload) == 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "transaction must be non-empty base64"))
		return
	}

	receipt, err := h.submitter.Submit(r.Context(), req.Address, req.TenantID, func(nonce int64) ([]byte, error) {
		return stdjson.Marshal(sequencedTx{Nonce: nonce, Payload: payload})
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	json.WriteJSON(w, http.StatusOK, submitTransactionResponse{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
	})
}
