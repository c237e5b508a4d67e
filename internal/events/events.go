package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tg_shop/internal/config"
	"tg_shop/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Type string

const (
	OrderCreated   Type = "order.created"
	OrderPaid      Type = "order.paid"
	OrderShipped   Type = "order.shipped"
	OrderRefunded  Type = "order.refunded"
	OrderCancelled Type = "order.cancelled"
)

// TypeFor возвращает тип события для нового статуса заказа
func TypeFor(status models.OrderStatus) Type {
	switch status {
	case models.StatusPaid:
		return OrderPaid
	case models.StatusShipped:
		return OrderShipped
	case models.StatusRefunded:
		return OrderRefunded
	case models.StatusCancelled:
		return OrderCancelled
	}
	return OrderCreated
}

// Event - изменение жизненного цикла заказа
type Event struct {
	ID      string             `json:"id"`
	Type    Type               `json:"type"`
	OrderID string             `json:"order_id"`
	OutNo   string             `json:"out_no"`
	UserID  string             `json:"user_id"`
	Status  models.OrderStatus `json:"status"`
	Amount  decimal.Decimal    `json:"amount"`
	At      time.Time          `json:"at"`
}

func NewOrderEvent(t Type, o *models.Order) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    t,
		OrderID: o.ID.String(),
		OutNo:   o.OutNo,
		UserID:  o.UserID.String(),
		Status:  o.Status,
		Amount:  o.TotalAmount,
		At:      time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// New выбирает реализацию по EVENTS_DRIVER
func New(cfg *config.Config, log *zap.Logger) (Publisher, error) {
	switch cfg.EventsDriver {
	case config.EventsKafka:
		return NewKafkaPublisher(splitBrokers(cfg.KafkaBrokers), cfg.KafkaTopic, log), nil
	case config.EventsRabbitMQ:
		return NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	case config.EventsNone, "":
		return Noop{}, nil
	}
	return nil, fmt.Errorf("unknown events driver %q", cfg.EventsDriver)
}

func splitBrokers(csv string) []string {
	var brokers []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Recorder хранит события в памяти
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types - типы событий в порядке публикации
func (r *Recorder) Types() []Type {
	var types []Type
	for _, e := range r.Events() {
		types = append(types, e.Type)
	}
	return types
}
