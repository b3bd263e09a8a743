package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-auth/pkg/helpers"
)

// HandlerFunc processes a message body.
type HandlerFunc func(ctx context.Context, body []byte) error

// RetryPolicy bounds redelivery of messages whose handler failed.
type RetryPolicy struct {
	// MaxDeliveries is the number of attempts before a message is
	// dead-lettered.
	MaxDeliveries int64
	// Backoff is multiplied by the attempt number and waited out before a
	// failed message is requeued.
	Backoff time.Duration
}

// DefaultRetryPolicy matches the delivery limit the queues are declared with.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxDeliveries: helpers.QueueDeliveryLimit, Backoff: time.Second}
}

// attempt returns the 1-based delivery attempt of d. Quorum queues count
// returns in x-delivery-count; without it a redelivery only tells us the
// message has been seen before.
func attempt(d amqp.Delivery) (n int64, known bool) {
	switch v := d.Headers["x-delivery-count"].(type) {
	case int64:
		return v + 1, true
	case int32:
		return int64(v) + 1, true
	case int:
		return int64(v) + 1, true
	}
	if d.Redelivered {
		return 2, false
	}
	return 1, true
}

// Dispatch runs fn for d and settles the delivery: ack on success, drop on
// ErrMalformed, requeue other failures after a backoff until the policy's
// attempts are used up, then dead-letter.
func Dispatch(ctx context.Context, d amqp.Delivery, fn HandlerFunc, policy RetryPolicy, logger *logrus.Logger) {
	err := fn(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}
	entry := logger.WithError(err).WithField("queue", d.RoutingKey)
	if errors.Is(err, ErrMalformed) {
		entry.Warn("dropping bad message")
		_ = d.Nack(false, false)
		return
	}

	n, known := attempt(d)
	entry = entry.WithField("attempt", n)
	if !known || n >= policy.MaxDeliveries {
		entry.Error("processing failed; giving up")
		_ = d.Nack(false, false)
		return
	}
	if policy.Backoff > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(n) * policy.Backoff):
		}
	}
	entry.Warn("processing failed; requeue")
	_ = d.Nack(false, true)
}

// Consume declares queue and feeds its deliveries to fn until ctx is done or
// the channel closes.
func Consume(ctx context.Context, ch *amqp.Channel, queue string, fn HandlerFunc, policy RetryPolicy, logger *logrus.Logger) error {
	if err := helpers.DeclareQueue(ch, queue); err != nil {
		return err
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}
	logger.WithField("queue", queue).Info("worker listening")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consume %s: delivery channel closed", queue)
			}
			Dispatch(ctx, d, fn, policy, logger)
		}
	}
}
