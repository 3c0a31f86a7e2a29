package main

import (
	"context"
	"encoding/json"
	"log/slog"

	"credex/internal/cursor"
	exchangeservice "credex/internal/exchange/service"
	offermodels "credex/internal/offer/models"
	offerservice "credex/internal/offer/service"
)

// issuedEvent is the ledger's CredentialIssued payload.
type issuedEvent struct {
	ExchangeID string `json:"exchangeId"`
	OfferID    string `json:"offerId"`
	StatusID   string `json:"statusId"`
	StatusType string `json:"statusType"`
}

// issuanceHandler turns confirmed CredentialIssued events into offer status
// updates and finalization progress. It is idempotent: redelivered events
// rewrite the same status and the finalized set only grows.
func issuanceHandler(offers *offerservice.Service, finalizer *exchangeservice.Finalizer, log *slog.Logger) cursor.Handler {
	return func(ctx context.Context, events []cursor.Event) error {
		for _, ev := range events {
			var issued issuedEvent
			if err := json.Unmarshal(ev.Payload, &issued); err != nil {
				log.Error("malformed issuance event skipped",
					"block", ev.BlockNumber,
					"tx_hash", ev.TxHash,
					"error", err,
				)
				continue
			}

			if issued.StatusID != "" {
				err := offers.SetCredentialStatus(ctx, issued.OfferID, offermodels.CredentialStatus{
					ID:   issued.StatusID,
					Type: issued.StatusType,
				})
				if err != nil {
					return err
				}
			}

			if _, err := finalizer.Finalize(ctx, issued.ExchangeID, []string{issued.OfferID}); err != nil {
				return err
			}
		}
		return nil
	}
}
