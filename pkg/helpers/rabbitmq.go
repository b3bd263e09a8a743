package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ErrPublisherClosed is returned by PublishJSON once the broker connection is gone.
var ErrPublisherClosed = errors.New("rabbitmq publisher closed")

// RabbitPublisher publishes JSON messages to one durable queue through the
// default exchange. An amqp.Channel must not be shared between goroutines, so
// publishes are serialized.
type RabbitPublisher struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
	Queue  string
}

// QueueDeliveryLimit is how many times the broker hands out a message before
// dead-lettering it.
const QueueDeliveryLimit = 5

// DeadLetterQueue names the queue that collects messages rejected from queue.
func DeadLetterQueue(queue string) string { return queue + ".dead" }

// DeclareQueue declares queue as a durable quorum queue with a delivery limit,
// plus its dead-letter queue. Publishers and consumers must declare with the
// same arguments.
func DeclareQueue(ch *amqp.Channel, queue string) error {
	quorum := amqp.Table{"x-queue-type": "quorum"}
	if _, err := ch.QueueDeclare(DeadLetterQueue(queue), true, false, false, false, quorum); err != nil {
		return fmt.Errorf("declare %s: %w", DeadLetterQueue(queue), err)
	}
	args := amqp.Table{
		"x-queue-type":              "quorum",
		"x-delivery-limit":          int64(QueueDeliveryLimit),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadLetterQueue(queue),
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare %s: %w", queue, err)
	}
	return nil
}

func NewRabbitPublisher(url, queue string, logger *logrus.Logger) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err = DeclareQueue(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p := &RabbitPublisher{conn: conn, ch: ch, Queue: queue}

	closes := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if amqpErr, ok := <-closes; ok && amqpErr != nil && logger != nil {
			logger.WithField("queue", queue).WithField("reason", amqpErr.Reason).Error("rabbitmq connection lost")
		}
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
	}()
	return p, nil
}

// Healthy reports whether the broker connection is still open.
func (p *RabbitPublisher) Healthy() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

func (p *RabbitPublisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// PublishJSON publishes body as a persistent JSON message.
func (p *RabbitPublisher) PublishJSON(ctx context.Context, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	return p.ch.PublishWithContext(ctx, "", p.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         b,
	})
}
