package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ExchangesCreatedTotal    *prometheus.CounterVec
	StateTransitionsTotal    *prometheus.CounterVec
	TransitionsRejectedTotal *prometheus.CounterVec
	FinalizationsTotal       *prometheus.CounterVec
	ChallengeReplaysTotal    prometheus.Counter
	PresentationChecksTotal  *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		ExchangesCreatedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credex_exchanges_created_total",
			Help: "Total number of exchanges created",
		}, []string{"type"}),
		StateTransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credex_exchange_state_transitions_total",
			Help: "Total number of accepted exchange state transitions",
		}, []string{"from", "to"}),
		TransitionsRejectedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credex_exchange_transitions_rejected_total",
			Help: "Total number of rejected exchange state transitions",
		}, []string{"from", "to"}),
		FinalizationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credex_exchange_finalizations_total",
			Help: "Total number of offer finalizations by outcome",
		}, []string{"outcome"}),
		ChallengeReplaysTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credex_exchange_challenge_replays_total",
			Help: "Total number of presentations rejected for challenge reuse",
		}),
		PresentationChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credex_presentation_checks_total",
			Help: "Total number of credential verification checks by result",
		}, []string{"check", "result"}),
	}
}

func (m *Metrics) IncrementExchangesCreated(exchangeType string) {
	m.ExchangesCreatedTotal.WithLabelValues(exchangeType).Inc()
}

func (m *Metrics) IncrementStateTransitions(from, to string) {
	m.StateTransitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementTransitionsRejected(from, to string) {
	m.TransitionsRejectedTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementFinalizations(outcome string) {
	m.FinalizationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementChallengeReplays() {
	m.ChallengeReplaysTotal.Inc()
}

func (m *Metrics) IncrementPresentationChecks(check, result string) {
	m.PresentationChecksTotal.WithLabelValues(check, result).Inc()
}
