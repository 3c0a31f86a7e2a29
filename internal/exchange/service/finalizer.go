package service

import (
	"context"
	"log/slog"
	"time"

	"credex/internal/exchange/models"
	offermodels "credex/internal/offer/models"
	dErrors "credex/pkg/domain-errors"
	"credex/pkg/platform/tracer"
)

// OfferCatalog is the slice of the offer store the finalizer consults for the
// completion rule.
type OfferCatalog interface {
	ListUnexpiredByIDs(ctx context.Context, ids []string, now time.Time) ([]*offermodels.Offer, error)
}

// Finalization outcomes recorded in metrics.
const (
	outcomeComplete = "complete"
	outcomePartial  = "partial"
)

// Finalizer folds newly finalized offers into an exchange and closes the
// exchange once nothing claimable remains. Finalized ids only ever grow; the
// same call twice converges on the same set and never completes twice.
type Finalizer struct {
	exchanges *Service
	offers    OfferCatalog
	logger    *slog.Logger
}

func NewFinalizer(exchanges *Service, offers OfferCatalog, logger *slog.Logger) *Finalizer {
	return &Finalizer{exchanges: exchanges, offers: offers, logger: logger}
}

// Finalize merges the given offer ids into the exchange's finalized set and
// transitions the exchange to COMPLETE when every offer is either finalized
// or no longer claimable. Anything short of that persists the grown set as
// partial progress.
func (f *Finalizer) Finalize(ctx context.Context, exchangeID string, offerIDs []string) (*models.Exchange, error) {
	ctx, span := f.exchanges.tracer.Start(ctx, tracer.SpanExchangeFinalize,
		tracer.String(tracer.AttrExchangeID, exchangeID),
		tracer.Int64(tracer.AttrOfferCount, int64(len(offerIDs))))
	var spanErr error
	defer func() { span.End(spanErr) }()

	exchange, err := f.exchanges.Get(ctx, exchangeID)
	if err != nil {
		spanErr = err
		return nil, err
	}

	// A completed exchange absorbs repeat finalizations without a second
	// transition. Other terminal states refuse further progress.
	if exchange.Terminal() {
		if exchange.CurrentState() == models.StateComplete {
			return exchange, nil
		}
		spanErr = dErrors.New(dErrors.CodeConflict, "exchange is in a terminal state")
		return nil, spanErr
	}

	union := exchange.UnionFinalized(offerIDs)
	candidate := exchange.Clone()
	candidate.FinalizedOfferIDs = union
	remaining := candidate.RemainingOfferIDs()

	done := len(remaining) == 0
	if !done {
		live, err := f.offers.ListUnexpiredByIDs(ctx, remaining, f.exchanges.now().UTC())
		if err != nil {
			spanErr = dErrors.Wrap(err, dErrors.CodeInternal, "failed to check remaining offers")
			return nil, spanErr
		}
		// Offers the holder never claimed may have expired or been pruned;
		// they no longer block completion.
		done = len(live) == 0
	}

	patch := &models.Patch{FinalizedOfferIDs: union}
	if !done {
		updated, err := f.exchanges.store.Patch(ctx, exchangeID, patch)
		if err != nil {
			spanErr = f.exchanges.translate(err, "exchange")
			return nil, spanErr
		}
		if f.exchanges.metrics != nil {
			f.exchanges.metrics.IncrementFinalizations(outcomePartial)
		}
		f.logger.Info("offer finalization recorded",
			"exchange_id", exchangeID,
			"finalized", len(union),
			"remaining", len(remaining),
		)
		return updated, nil
	}

	updated, err := f.exchanges.AppendState(ctx, exchangeID, models.StateComplete, patch)
	if err != nil {
		// A concurrent finalization may have closed the exchange first.
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			current, getErr := f.exchanges.Get(ctx, exchangeID)
			if getErr == nil && current.CurrentState() == models.StateComplete {
				return current, nil
			}
		}
		spanErr = err
		return nil, err
	}
	if f.exchanges.metrics != nil {
		f.exchanges.metrics.IncrementFinalizations(outcomeComplete)
	}
	f.logger.Info("exchange completed", "exchange_id", exchangeID, "finalized", len(union))
	return updated, nil
}
