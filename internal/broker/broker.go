// Package broker wraps a single AMQP channel per process around
// github.com/rabbitmq/amqp091-go, the official successor to streadway/amqp.
// It declares SEQUENCE_TOPIC as a durable queue with a companion
// dead-letter queue, and exposes the small surface the Pump and Worker
// need: Publish, Consume, Retries. Ack and Reject are called on each
// Delivery itself.
package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RetriesHeader is the AMQP header carrying the worker's redelivery count.
const RetriesHeader = "x-retries"

// dlqSuffix names the dead-letter queue declared alongside SEQUENCE_TOPIC.
const dlqSuffix = ".dlq"

// Delivery is the message type Consume yields; an alias keeps callers from
// importing amqp091-go directly.
type Delivery = amqp.Delivery

// Channel owns exactly one AMQP connection and channel: one broker channel
// per process, singleton, prefetch configurable at Connect time.
type Channel struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Connect dials the broker and opens a single channel with the given
// prefetch count.
func Connect(url string, prefetchCount int) (*Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()   //nolint:errcheck
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Channel{conn: conn, ch: ch}, nil
}

// DeclareTopic declares queue as a durable queue whose dead-letter target is
// queue+".dlq", and declares that DLQ as a durable queue too, so the DLQ is
// explicit and self-provisioned rather than relying on broker defaults.
func (c *Channel) DeclareTopic(queue string) error {
	dlq := queue + dlqSuffix

	if _, err := c.ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq %s: %w", dlq, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}
	if _, err := c.ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return nil
}

// Publish sends body to queue as a persistent message, carrying the given
// x-retries count for redelivery-safe worker retries.
func (c *Channel) Publish(ctx context.Context, queue string, body []byte, retries int) error {
	return c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Headers: amqp.Table{
			RetriesHeader: int32(retries),
		},
	})
}

// Consume returns a channel of deliveries for queue with manual acknowledgement.
func (c *Channel) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	return c.ch.Consume(queue, consumerTag, false, false, false, false, nil)
}

// Retries extracts the x-retries header from a delivery, defaulting to 0
// when absent.
func Retries(d amqp.Delivery) int {
	v, ok := d.Headers[RetriesHeader]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// Close closes the channel and the underlying connection.
func (c *Channel) Close() error {
	if err := c.ch.Close(); err != nil {
		c.conn.Close() //nolint:errcheck
		return err
	}
	return c.conn.Close()
}

// IsOpen reports whether the underlying connection is still usable, for the
// /ready readiness check.
func (c *Channel) IsOpen() bool {
	return !c.conn.IsClosed()
}
