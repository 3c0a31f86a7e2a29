package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"credex/internal/exchange/challenge"
	"credex/internal/exchange/events"
	"credex/internal/exchange/metrics"
	"credex/internal/exchange/models"
	"credex/internal/exchange/store"
	dErrors "credex/pkg/domain-errors"
	"credex/pkg/platform/sentinel"
	"credex/pkg/platform/tracer"
)

//go:generate mockgen -source=../store/store.go -destination=mocks/mock_store.go -package=mocks

const defaultChallengeTTL = 5 * time.Minute

type Option func(*Service)

// Service drives the exchange lifecycle. All state changes go through the
// store's atomic append so concurrent transitions on one exchange interleave
// without losing updates.
type Service struct {
	store        store.Store
	guard        challenge.Guard
	notifier     events.Notifier
	metrics      *metrics.Metrics
	logger       *slog.Logger
	tracer       tracer.Tracer
	challengeTTL time.Duration
	now          func() time.Time
	newID        func() string
}

func NewService(store store.Store, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:        store,
		guard:        challenge.NewMemoryGuard(),
		notifier:     events.NoopNotifier{},
		logger:       logger,
		tracer:       tracer.NewNoop(),
		challengeTTL: defaultChallengeTTL,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the tracer instance for the service.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithNotifier sets the lifecycle event notifier.
func WithNotifier(n events.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithChallengeGuard sets the anti-replay guard for presentation challenges.
func WithChallengeGuard(g challenge.Guard) Option {
	return func(s *Service) {
		s.guard = g
	}
}

// WithChallengeTTL configures how long an issued challenge stays redeemable.
func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.challengeTTL = ttl
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// CreateWithInitialState creates an exchange whose history starts at NEW,
// optionally followed by further states recorded at the same creation instant.
// Issuing exchanges created straight from a trusted backchannel skip the
// identification walk this way.
func (s *Service) CreateWithInitialState(ctx context.Context, tenantID string, typ models.Type, patch *models.Patch, extraStates ...models.State) (*models.Exchange, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanExchangeCreate,
		tracer.String(tracer.AttrTenantID, tenantID),
		tracer.String(tracer.AttrExchangeType, string(typ)))
	var spanErr error
	defer func() { span.End(spanErr) }()

	if tenantID == "" {
		spanErr = dErrors.New(dErrors.CodeValidation, "tenant id is required")
		return nil, spanErr
	}
	if !typ.IsValid() {
		spanErr = dErrors.New(dErrors.CodeValidation, "unknown exchange type")
		return nil, spanErr
	}

	now := s.now().UTC()
	exchange := &models.Exchange{
		ID:       s.newID(),
		TenantID: tenantID,
		Type:     typ,
		Events:   []models.StateEvent{{State: models.StateNew, Timestamp: now}},
	}
	current := models.StateNew
	for _, state := range extraStates {
		if !models.CanTransition(current, state) {
			spanErr = dErrors.New(dErrors.CodeValidation, "invalid initial state sequence")
			return nil, spanErr
		}
		exchange.Events = append(exchange.Events, models.StateEvent{State: state, Timestamp: now})
		current = state
	}
	patch.Apply(exchange)

	stored, err := s.store.Insert(ctx, exchange)
	if err != nil {
		spanErr = dErrors.Wrap(err, dErrors.CodeInternal, "failed to create exchange")
		return nil, spanErr
	}

	if s.metrics != nil {
		s.metrics.IncrementExchangesCreated(string(typ))
	}
	s.notifier.ExchangeCreated(ctx, stored)
	s.logger.Info("exchange created",
		"exchange_id", stored.ID,
		"tenant_id", tenantID,
		"type", typ,
		"state", current,
	)
	return stored, nil
}

// Get loads an exchange by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Exchange, error) {
	exchange, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, "exchange")
	}
	return exchange, nil
}

// AppendState validates the transition against the lifecycle graph and appends
// it atomically together with the optional patch. The transition check here is
// advisory; the store re-checks the terminal guard inside the same operation
// that performs the write.
func (s *Service) AppendState(ctx context.Context, id string, to models.State, patch *models.Patch) (*models.Exchange, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanExchangeAppend,
		tracer.String(tracer.AttrExchangeID, id),
		tracer.String(tracer.AttrState, string(to)))
	var spanErr error
	defer func() { span.End(spanErr) }()

	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		spanErr = s.translate(err, "exchange")
		return nil, spanErr
	}
	from := current.CurrentState()
	if !models.CanTransition(from, to) {
		if s.metrics != nil {
			s.metrics.IncrementTransitionsRejected(string(from), string(to))
		}
		spanErr = dErrors.New(dErrors.CodeConflict, "illegal state transition")
		return nil, spanErr
	}

	event := models.StateEvent{State: to, Timestamp: s.now().UTC()}
	updated, err := s.store.AppendState(ctx, id, event, patch)
	if err != nil {
		spanErr = s.translate(err, "exchange")
		return nil, spanErr
	}

	if s.metrics != nil {
		s.metrics.IncrementStateTransitions(string(from), string(to))
	}
	s.notifier.StateChanged(ctx, updated, from, to)
	s.logger.Info("exchange state appended",
		"exchange_id", id,
		"from", from,
		"to", to,
	)
	return updated, nil
}

// CompleteWithError parks an exchange after a processing failure. An
// unauthorized cause means the holder failed identification; anything else is
// an unexpected fault. The original error stays authoritative: failures here
// are logged and swallowed so they never mask the cause at the call site.
func (s *Service) CompleteWithError(ctx context.Context, id string, cause error) {
	to := models.StateUnexpectedError
	if dErrors.HasCode(cause, dErrors.CodeUnauthorized) {
		to = models.StateNotIdentified
	}

	_, err := s.AppendState(ctx, id, to, nil)
	switch {
	case err == nil:
	case dErrors.HasCode(err, dErrors.CodeConflict):
		// Already terminal, nothing left to park.
	default:
		s.logger.Error("failed to park exchange after error",
			"exchange_id", id,
			"target_state", to,
			"cause", cause,
			"error", err,
		)
	}
}

// IssueChallenge mints a fresh presentation challenge on the exchange. Issuing
// again replaces the previous challenge and restarts the expiry window.
func (s *Service) IssueChallenge(ctx context.Context, id string) (string, error) {
	nonce := s.newID()
	issuedAt := s.now().UTC()
	_, err := s.store.Patch(ctx, id, &models.Patch{
		Challenge:         &nonce,
		ChallengeIssuedAt: &issuedAt,
	})
	if err != nil {
		return "", s.translate(err, "exchange")
	}
	return nonce, nil
}

// RedeemChallenge checks a presented challenge against the exchange and
// consumes it. A mismatch, an expired window, and a replay all come back as
// unauthorized so the caller cannot distinguish them.
func (s *Service) RedeemChallenge(ctx context.Context, id, presented string) error {
	exchange, err := s.store.FindByID(ctx, id)
	if err != nil {
		return s.translate(err, "exchange")
	}
	if exchange.Challenge == "" || exchange.Challenge != presented {
		return dErrors.New(dErrors.CodeUnauthorized, "challenge mismatch")
	}
	if exchange.ChallengeIssuedAt == nil || s.now().After(exchange.ChallengeIssuedAt.Add(s.challengeTTL)) {
		return dErrors.New(dErrors.CodeUnauthorized, "challenge expired")
	}

	err = s.guard.Consume(ctx, presented, s.challengeTTL)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		if s.metrics != nil {
			s.metrics.IncrementChallengeReplays()
		}
		s.logger.Warn("challenge replay blocked", "exchange_id", id)
		return dErrors.New(dErrors.CodeUnauthorized, "challenge already redeemed")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to redeem challenge")
	}
}

// translate maps store sentinels onto the domain error taxonomy.
func (s *Service) translate(err error, entity string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, entity+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, entity+" is in a terminal state")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "storage failure")
	}
}
