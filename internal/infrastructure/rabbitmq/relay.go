package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	dominv "github.com/Zhima-Mochi/restaurant-pos/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/restaurant-pos/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/restaurant-pos/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/restaurant-pos/internal/domain/payment"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability/logctx"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/propagation"
)

const (
	DefaultExchange = "pos.events"
	peer            = "rabbitmq"
)

// EventNames are the domain events forwarded to the broker.
var EventNames = []string{
	domorder.OrderPlacedEvent{}.EventName(),
	domorder.OrderItemsAddedEvent{}.EventName(),
	domorder.OrderStatusChangedEvent{}.EventName(),
	dominv.StockChangedEvent{}.EventName(),
	dominv.LowStockEvent{}.EventName(),
	dominv.NegativeStockEvent{}.EventName(),
	domcoupon.CouponRedeemedEvent{}.EventName(),
	dompay.PaymentRecordedEvent{}.EventName(),
	dompay.PaymentRefundedEvent{}.EventName(),
}

// Channel is the part of *amqp.Channel the relay publishes through.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Envelope is the message body published for every event.
type Envelope struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Source     string          `json:"source"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Relay forwards in-process events to a topic exchange, routed by event name.
type Relay struct {
	ch       Channel
	exchange string
	source   string
	prop     propagation.TextMapPropagator
	log      observability.Logger
	requests observability.Counter
	latency  observability.Histogram
}

func NewRelay(ch Channel, exchange, source string, tel observability.Observability) *Relay {
	if tel == nil {
		tel = observability.Nop()
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Relay{
		ch:       ch,
		exchange: exchange,
		source:   source,
		prop:     propagation.TraceContext{},
		log:      tel.Logger().With(observability.F("component", "rabbitmq_relay")),
		requests: tel.Metrics().Counter(observability.MExternalRequests),
		latency:  tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

// Declare creates the durable topic exchange.
func (r *Relay) Declare() error {
	if err := r.ch.ExchangeDeclare(r.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare exchange %s: %w", r.exchange, err)
	}
	return nil
}

// Start subscribes the relay to every forwarded event.
func (r *Relay) Start(sub domoutbox.Subscriber) {
	for _, name := range EventNames {
		sub.Subscribe(name, r.forward)
	}
}

func (r *Relay) forward(ctx context.Context, e domoutbox.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("rabbitmq: encode %s: %w", e.EventName(), err)
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Name:       e.EventName(),
		Source:     r.source,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	if d, ok := outbox.DeliveryFrom(ctx); ok {
		env.ID = d.ID
		env.OccurredAt = d.EnqueuedAt
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("rabbitmq: encode envelope: %w", err)
	}

	carrier := propagation.MapCarrier{}
	r.prop.Inject(ctx, carrier)
	headers := amqp.Table{"x-source": r.source}
	for k, v := range carrier {
		headers[k] = v
	}

	start := time.Now()
	err = r.ch.PublishWithContext(ctx, r.exchange, env.Name, false, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Timestamp:    env.OccurredAt,
		Type:         env.Name,
		Body:         body,
	})
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.requests.Add(1, observability.L("peer", peer), observability.L("endpoint", env.Name), observability.L("outcome", outcome))
	r.latency.Observe(time.Since(start).Seconds(), observability.L("peer", peer), observability.L("endpoint", env.Name))
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", env.Name, err)
	}
	logctx.FromOr(ctx, r.log).Debug("event_relayed", observability.F("message_id", env.ID))
	return nil
}
