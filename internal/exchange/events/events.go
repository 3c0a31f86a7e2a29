// Package events publishes exchange lifecycle events to Kafka. Publication is
// best effort; a broker outage never fails the state transition that caused
// the event.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"credex/internal/exchange/models"
	"credex/internal/platform/kafka/producer"
)

// Event names carried in the payload.
const (
	EventExchangeCreated = "exchange.created"
	EventStateChanged    = "exchange.state_changed"
)

// Envelope is the wire shape of a lifecycle event.
type Envelope struct {
	Event      string    `json:"event"`
	ExchangeID string    `json:"exchangeId"`
	TenantID   string    `json:"tenantId"`
	Type       string    `json:"type"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Notifier publishes exchange lifecycle events.
type Notifier interface {
	ExchangeCreated(ctx context.Context, ex *models.Exchange)
	StateChanged(ctx context.Context, ex *models.Exchange, from, to models.State)
}

// KafkaNotifier publishes events keyed by exchange ID so consumers see
// transitions for one exchange in order.
type KafkaNotifier struct {
	producer *producer.Producer
	topic    string
	logger   *slog.Logger
}

func NewKafkaNotifier(p *producer.Producer, topic string, logger *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: p, topic: topic, logger: logger}
}

func (n *KafkaNotifier) ExchangeCreated(ctx context.Context, ex *models.Exchange) {
	n.publish(Envelope{
		Event:      EventExchangeCreated,
		ExchangeID: ex.ID,
		TenantID:   ex.TenantID,
		Type:       string(ex.Type),
		To:         string(models.StateNew),
		OccurredAt: time.Now().UTC(),
	})
}

func (n *KafkaNotifier) StateChanged(ctx context.Context, ex *models.Exchange, from, to models.State) {
	n.publish(Envelope{
		Event:      EventStateChanged,
		ExchangeID: ex.ID,
		TenantID:   ex.TenantID,
		Type:       string(ex.Type),
		From:       string(from),
		To:         string(to),
		OccurredAt: time.Now().UTC(),
	})
}

func (n *KafkaNotifier) publish(env Envelope) {
	value, err := json.Marshal(env)
	if err != nil {
		n.logger.Error("failed to encode exchange event", "event", env.Event, "error", err)
		return
	}
	err = n.producer.ProduceAsync(&producer.Message{
		Topic: n.topic,
		Key:   []byte(env.ExchangeID),
		Value: value,
	})
	if err != nil {
		n.logger.Error("failed to publish exchange event",
			"event", env.Event,
			"exchange_id", env.ExchangeID,
			"error", err,
		)
	}
}

// NoopNotifier discards all events. Used in tests and when Kafka is disabled.
type NoopNotifier struct{}

func (NoopNotifier) ExchangeCreated(context.Context, *models.Exchange)                  {}
func (NoopNotifier) StateChanged(context.Context, *models.Exchange, models.State, models.State) {}

var (
	_ Notifier = (*KafkaNotifier)(nil)
	_ Notifier = NoopNotifier{}
)
