// Package rabbitmq publishes domain events to a durable RabbitMQ queue.
package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-auth/internal/domain/event"
)

// JSONPublisher is satisfied by helpers.RabbitPublisher.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, body any) error
}

type EventPublisher struct {
	pub     JSONPublisher
	timeout time.Duration
	logger  *logrus.Logger
}

func NewEventPublisher(pub JSONPublisher, logger *logrus.Logger) *EventPublisher {
	return &EventPublisher{pub: pub, timeout: 5 * time.Second, logger: logger}
}

// Publish sends e as JSON. The call is bounded by the publisher timeout so a
// stalled broker cannot hold a login request.
func (p *EventPublisher) Publish(ctx context.Context, e event.Event) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.pub.PublishJSON(ctx, e); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	p.logger.WithFields(logrus.Fields{
		"event_id": e.ID,
		"type":     e.Type,
		"user_id":  e.UserID,
	}).Debug("event published")
	return nil
}

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, event.Event) error { return nil }
